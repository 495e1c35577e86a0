package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"scihub-client/preview"
	"scihub-client/scihub"
	"scihub-client/util"
)

func topLevelContext() context.Context {
	ctx, cancelf := context.WithCancel(context.Background())
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Warnf("Caught signal %q, shutting down.", sig)
		cancelf()
	}()
	return ctx
}

var (
	userFlag = &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Catalog account name",
		Value:   util.EnvOrDefault("SENTINEL_USER", ""),
	}
	passwordFlag = &cli.StringFlag{
		Name:    "password",
		Aliases: []string{"p"},
		Usage:   "Catalog account password",
		Value:   util.EnvOrDefault("SENTINEL_PASSWORD", ""),
	}
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "Catalog base URL",
		Value: util.EnvOrDefault("SENTINEL_URL", scihub.DefaultAPIURL),
	}
	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Log wire-level detail",
	}
	rateFlag = &cli.FloatFlag{
		Name:  "rate",
		Usage: "Max catalog requests per second, 0 disables pacing",
	}
	pathFlag = &cli.StringFlag{
		Name:  "path",
		Usage: "Directory for downloaded files",
		Value: ".",
	}
	md5Flag = &cli.BoolFlag{
		Name:  "md5",
		Usage: "Verify the MD5 digest of every downloaded file",
	}
	attemptsFlag = &cli.IntFlag{
		Name:  "max-attempts",
		Usage: "Attempts per product before giving up",
		Value: scihub.DefaultMaxAttempts,
	}
	concurrencyFlag = &cli.IntFlag{
		Name:  "concurrency",
		Usage: "Parallel downloads",
		Value: util.EnvOrDefaultInt("SENTINEL_CONCURRENCY", 1),
	}
)

func newClient(cmd *cli.Command) (*scihub.Client, error) {
	user := cmd.String("user")
	password := cmd.String("password")
	if user == "" || password == "" {
		return nil, errors.New("missing credentials: set --user/--password or SENTINEL_USER/SENTINEL_PASSWORD")
	}
	c := scihub.New(user, password, cmd.String("url"))
	if r := cmd.Float("rate"); r > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(r), 1)
	}
	return c, nil
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search the catalog and optionally download every match",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "geometry", Aliases: []string{"g"}, Usage: "GeoJSON file with the area of interest"},
			&cli.StringFlag{Name: "start", Aliases: []string{"s"}, Usage: "Start of the sensing window (20150101, 2015-01-01, full timestamp or NOW)"},
			&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "End of the sensing window"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Raw query string, bypasses all other filters"},
			&cli.StringSliceFlag{Name: "attr", Usage: "Extra key=value filter, repeatable, order preserved"},
			&cli.BoolFlag{Name: "sentinel1", Usage: "Limit to Sentinel-1 products"},
			&cli.BoolFlag{Name: "sentinel2", Usage: "Limit to Sentinel-2 products"},
			&cli.IntFlag{Name: "cloud", Usage: "Max cloud cover percentage", Value: -1},
			&cli.StringFlag{Name: "footprints", Usage: "Write the matched footprints to this GeoJSON file"},
			&cli.StringFlag{Name: "map", Usage: "Write a footprint overview image to this PNG file"},
			&cli.BoolFlag{Name: "download", Aliases: []string{"d"}, Usage: "Download every matched product"},
			&cli.BoolFlag{Name: "quicklooks", Usage: "Download a preview image per matched product"},
			pathFlag, md5Flag, attemptsFlag, concurrencyFlag,
		},
		Action: runSearch,
	}
}

func runSearch(ctx context.Context, cmd *cli.Command) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	var result *scihub.SearchResult
	if raw := cmd.String("query"); raw != "" {
		result, err = client.QueryRaw(ctx, raw)
	} else {
		var area string
		if g := cmd.String("geometry"); g != "" {
			area, err = util.GetCoordinates(g)
			if err != nil {
				return err
			}
		}
		var begin, end scihub.Date
		if s := cmd.String("start"); s != "" {
			if begin, err = scihub.ParseDate(s); err != nil {
				return err
			}
		}
		if e := cmd.String("end"); e != "" {
			if end, err = scihub.ParseDate(e); err != nil {
				return err
			}
		}
		attrs, aerr := searchAttrs(cmd)
		if aerr != nil {
			return aerr
		}
		result, err = client.Query(ctx, area, begin, end, attrs...)
	}
	if err != nil {
		return err
	}

	for _, p := range result.Products() {
		fmt.Printf("%s  %s  %s\n", p.ID, scihub.FormatDate(p.Date), p.Title)
	}
	fmt.Printf("%d products found, %.2f MiB total\n", result.Len(), result.ProductsSize())

	if out := cmd.String("footprints"); out != "" {
		data, err := result.Footprints().MarshalJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		log.Infof("Wrote footprints to %s", out)
	}
	if out := cmd.String("map"); out != "" {
		img := preview.Render(result.Footprints(), 1024, 768, result.Query())
		if err := preview.WritePNG(out, img); err != nil {
			return err
		}
	}

	if cmd.Bool("quicklooks") {
		for _, id := range result.IDs() {
			if _, err := client.DownloadQuicklook(ctx, id, cmd.String("path")); err != nil {
				log.Errorf("Quicklook %s: %v", id, err)
			}
		}
	}
	if cmd.Bool("download") {
		return downloadBatch(ctx, client, cmd, result.IDs())
	}
	return nil
}

func searchAttrs(cmd *cli.Command) ([]scihub.Attr, error) {
	var attrs []scihub.Attr
	if cmd.Bool("sentinel1") {
		attrs = append(attrs, scihub.Attr{Key: "platformname", Value: "Sentinel-1"})
	}
	if cmd.Bool("sentinel2") {
		attrs = append(attrs, scihub.Attr{Key: "platformname", Value: "Sentinel-2"})
	}
	if cc := cmd.Int("cloud"); cc >= 0 {
		attrs = append(attrs, scihub.Attr{Key: "cloudcoverpercentage", Value: fmt.Sprintf("[0 TO %d]", cc)})
	}
	for _, a := range cmd.StringSlice("attr") {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --attr %q, want key=value", a)
		}
		attrs = append(attrs, scihub.Attr{Key: key, Value: value})
	}
	return attrs, nil
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download products by identifier",
		ArgsUsage: "ID [ID...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "check-existing", Usage: "Verify and repair files already on disk"},
			pathFlag, md5Flag, attemptsFlag, concurrencyFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				return errors.New("no product identifiers given")
			}
			for _, id := range ids {
				if _, err := uuid.Parse(id); err != nil {
					return fmt.Errorf("invalid product id %q: %v", id, err)
				}
			}
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			return downloadBatch(ctx, client, cmd, ids)
		},
	}
}

func downloadBatch(ctx context.Context, client *scihub.Client, cmd *cli.Command, ids []string) error {
	outcomes, err := client.DownloadAll(ctx, ids, cmd.String("path"), scihub.BatchOptions{
		MaxAttempts:    cmd.Int("max-attempts"),
		CheckExisting:  cmd.Bool("check-existing"),
		VerifyChecksum: cmd.Bool("md5"),
		Concurrency:    cmd.Int("concurrency"),
	})
	if err != nil {
		return err
	}
	var failed int
	for path, p := range outcomes {
		if p == nil {
			failed++
			log.Errorf("Failed: %s", path)
			continue
		}
		fmt.Printf("%s  %d bytes\n", path, p.Size)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(outcomes))
	}
	return nil
}

func main() {
	// Credentials commonly live in a local .env during development.
	godotenv.Load()

	cmd := &cli.Command{
		Name:  "scihub-client",
		Usage: "Search and retrieve Copernicus satellite products",
		Flags: []cli.Flag{userFlag, passwordFlag, urlFlag, verboseFlag, rateFlag},
		Commands: []*cli.Command{
			searchCommand(),
			downloadCommand(),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
			return ctx, nil
		},
	}
	if err := cmd.Run(topLevelContext(), os.Args); err != nil {
		log.Fatal(err)
	}
}
