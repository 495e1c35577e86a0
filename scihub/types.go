package scihub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Product is one discoverable catalog entity. Search results populate what
// the feed carries; ProductInfo fills the rest (notably MD5). Footprint is
// the "lon lat" pair string shared with the query grammar.
type Product struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Footprint string    `json:"footprint,omitempty"`
	Size      int64     `json:"size"`
	MD5       string    `json:"md5,omitempty"`
	URL       string    `json:"url"`
}

type searchResponse struct {
	Feed *searchFeed `json:"feed"`
}

type searchFeed struct {
	Total string    `json:"opensearch:totalResults"`
	Entry entryList `json:"entry"`
}

// The catalog collapses a single-entry result to a bare object instead of a
// one-element array.
type entryList []*searchEntry

func (l *entryList) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(b, (*[]*searchEntry)(l))
	}
	e := &searchEntry{}
	if err := json.Unmarshal(b, e); err != nil {
		return err
	}
	*l = entryList{e}
	return nil
}

type searchEntry struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Link  []entryLink  `json:"link"`
	Str   []entryFacet `json:"str"`
	Date  []entryFacet `json:"date"`
}

type entryLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type entryFacet struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func facet(fs []entryFacet, name string) string {
	for _, f := range fs {
		if f.Name == name {
			return f.Content
		}
	}
	return ""
}

// downloadLink is the entry link with no rel qualifier.
func (e *searchEntry) downloadLink() string {
	for _, l := range e.Link {
		if l.Rel == "" {
			return l.Href
		}
	}
	return ""
}

type errorEnvelope struct {
	Error *catalogFault `json:"error"`
}

type catalogFault struct {
	Code    json.RawMessage `json:"code"`
	Message struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"message"`
}

type odataEnvelope struct {
	D *odataProduct `json:"d"`
}

// Entity metadata document. ContentLength is an Edm.Int64 and arrives as a
// quoted string.
type odataProduct struct {
	ID            string      `json:"Id"`
	Name          string      `json:"Name"`
	ContentLength int64String `json:"ContentLength"`
	IngestionDate string      `json:"IngestionDate"`
	Footprint     string      `json:"Footprint"`
	Checksum      struct {
		Algorithm string `json:"Algorithm"`
		Value     string `json:"Value"`
	} `json:"Checksum"`
}

type int64String int64

func (n *int64String) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("int64 %q: %v", s, err)
	}
	*n = int64String(v)
	return nil
}

// parseHumanSize converts the feed's display sizes ("577.87 MB", "1.09 GB")
// into bytes using binary units.
func parseHumanSize(s string) (int64, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, fmt.Errorf("unsupported size %q", s)
	}
	v, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("unsupported size %q: %v", s, err)
	}
	var unit float64
	switch parts[1] {
	case "B":
		unit = 1
	case "KB":
		unit = 1 << 10
	case "MB":
		unit = 1 << 20
	case "GB":
		unit = 1 << 30
	case "TB":
		unit = 1 << 40
	default:
		return 0, fmt.Errorf("unsupported size unit %q", parts[1])
	}
	return int64(v * unit), nil
}
