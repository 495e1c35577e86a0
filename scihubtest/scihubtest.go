// Package scihubtest runs an in-process catalog double: the OpenSearch
// endpoint with paging, the OData entity endpoint, and range-aware binary
// serving, wired the way the real hub routes them.
package scihubtest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// Product is one fixture entity served by the fake catalog.
type Product struct {
	ID        string
	Title     string
	Ingested  time.Time
	Footprint string // WKT
	Content   []byte

	// MD5 overrides the digest advertised by the entity endpoint. Empty
	// advertises the real digest of Content.
	MD5 string
	// Length overrides the ContentLength advertised by the entity endpoint.
	Length int
	// SizeText overrides the human-readable size facet in search entries.
	SizeText string
	// Quicklook is the preview image body; nil responds 404.
	Quicklook []byte
}

func (p *Product) digest() string {
	if p.MD5 != "" {
		return p.MD5
	}
	sum := md5.Sum(p.Content)
	return hex.EncodeToString(sum[:])
}

// Server is the running catalog double.
type Server struct {
	*httptest.Server

	// Match filters search hits by query string. Nil matches everything.
	Match func(query string, p *Product) bool

	mu         sync.Mutex
	products   []*Product
	ranges     map[string][]string
	truncate   map[string]int
	searches   int
	infos      int
	quicklooks int
}

// New starts a catalog double serving the given products. It shuts down with
// the test.
func New(t *testing.T, products ...*Product) *Server {
	t.Helper()
	s := &Server{
		products: products,
		ranges:   make(map[string][]string),
		truncate: make(map[string]int),
	}
	r := mux.NewRouter()
	r.HandleFunc("/search", s.handleSearch).Methods("POST")
	r.HandleFunc("/odata/v1/Products('{id}')/", s.handleInfo).Methods("GET")
	r.HandleFunc("/odata/v1/Products('{id}')/$value", s.handleValue).Methods("GET")
	r.HandleFunc("/odata/v1/Products('{id}')/Products('Quicklook')/$value", s.handleQuicklook).Methods("GET")
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) product(id string) *Product {
	for _, p := range s.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Ranges reports the Range header of every binary request for id, in order.
// Requests without a Range header report an empty string.
func (s *Server) Ranges(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ranges[id]...)
}

// Searches reports how many search pages were served.
func (s *Server) Searches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
}

// Infos reports how many entity metadata documents were served.
func (s *Server) Infos() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infos
}

// Quicklooks reports how many preview images were served.
func (s *Server) Quicklooks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quicklooks
}

// TruncateOnce makes the next binary request for id stop after n bytes while
// still advertising the full length, simulating a dropped connection.
func (s *Server) TruncateOnce(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate[id] = n
}

type linkDoc struct {
	Rel  string `json:"rel,omitempty"`
	Href string `json:"href"`
}

type facetDoc struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type entryDoc struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Link  []linkDoc  `json:"link"`
	Str   []facetDoc `json:"str"`
	Date  []facetDoc `json:"date"`
}

func (s *Server) entry(p *Product) *entryDoc {
	size := p.SizeText
	if size == "" {
		size = humanSize(len(p.Content))
	}
	return &entryDoc{
		ID:    p.ID,
		Title: p.Title,
		Link: []linkDoc{
			{Href: fmt.Sprintf("%s/odata/v1/Products('%s')/$value", s.URL, p.ID)},
			{Rel: "alternative", Href: fmt.Sprintf("%s/odata/v1/Products('%s')/", s.URL, p.ID)},
			{Rel: "icon", Href: fmt.Sprintf("%s/odata/v1/Products('%s')/Products('Quicklook')/$value", s.URL, p.ID)},
		},
		Str: []facetDoc{
			{Name: "size", Content: size},
			{Name: "footprint", Content: p.Footprint},
		},
		Date: []facetDoc{
			{Name: "ingestiondate", Content: p.Ingested.UTC().Format(time.RFC3339Nano)},
		},
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	query := r.PostForm.Get("q")
	rows, _ := strconv.Atoi(r.URL.Query().Get("rows"))
	if rows <= 0 {
		rows = len(s.products)
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))

	s.mu.Lock()
	s.searches++
	s.mu.Unlock()

	var hits []*Product
	for _, p := range s.products {
		if s.Match == nil || s.Match(query, p) {
			hits = append(hits, p)
		}
	}

	var page []*entryDoc
	for i := start; i < len(hits) && i < start+rows; i++ {
		page = append(page, s.entry(hits[i]))
	}

	feed := map[string]interface{}{
		"opensearch:totalResults": strconv.Itoa(len(hits)),
	}
	// A single-entry page collapses to a bare object, like the real feed.
	// An empty page omits the key entirely.
	switch len(page) {
	case 0:
	case 1:
		feed["entry"] = page[0]
	default:
		feed["entry"] = page
	}

	doc := map[string]interface{}{"feed": feed}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p := s.product(id)
	if p == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"error":{"code":null,"message":{"lang":"en","value":"No Products found with key '%s' "}}}`, id)
		return
	}

	s.mu.Lock()
	s.infos++
	s.mu.Unlock()

	length := len(p.Content)
	if p.Length > 0 {
		length = p.Length
	}
	doc := map[string]interface{}{
		"d": map[string]interface{}{
			"Id":            p.ID,
			"Name":          p.Title,
			"ContentLength": strconv.Itoa(length),
			"IngestionDate": fmt.Sprintf("/Date(%d)/", p.Ingested.UnixMilli()),
			"Footprint":     p.Footprint,
			"Checksum": map[string]string{
				"Algorithm": "MD5",
				"Value":     p.digest(),
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p := s.product(id)
	if p == nil {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.ranges[id] = append(s.ranges[id], r.Header.Get("Range"))
	cut, truncated := s.truncate[id]
	delete(s.truncate, id)
	s.mu.Unlock()

	content := p.Content
	status := http.StatusOK
	var offset int
	if rng := r.Header.Get("Range"); rng != "" {
		if _, err := fmt.Sscanf(rng, "bytes=%d-", &offset); err != nil || offset > len(content) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(content)-1, len(content)))
		status = http.StatusPartialContent
	}
	body := content[offset:]
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if truncated && cut < len(body) {
		body = body[:cut]
	}
	w.Write(body)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleQuicklook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p := s.product(id)
	if p == nil || p.Quicklook == nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	s.quicklooks++
	s.mu.Unlock()
	w.Header().Set("Content-Type", "image/png")
	w.Write(p.Quicklook)
}

func humanSize(n int) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	default:
		return fmt.Sprintf("%.2f KB", float64(n)/(1<<10))
	}
}
