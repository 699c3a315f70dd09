// Package upstreamtest serves a scriptable fake of the marketplace API.
package upstreamtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/rs/zerolog"

	"opswatch/internal/upstream"
)

// Server answers the default endpoint paths from in-memory fixtures.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	products []map[string]any
	orders   []map[string]any
	riders   []map[string]any
	digest   map[string]any
	failures map[string]int
}

// New starts a server with a small healthy marketplace.
func New() *Server {
	s := &Server{
		products: []map[string]any{
			{"id": "p1", "name": "Tea", "price": "4.50", "image_url": "https://cdn.example.com/tea.jpg"},
			{"id": "p2", "name": "Coffee", "price": 3, "image_url": "https://cdn.example.com/coffee.jpg"},
		},
		orders: []map[string]any{
			{"id": "o1", "status": "preparing"},
			{"id": "o2", "status": "ready", "driver_id": "d1"},
		},
		riders: []map[string]any{
			{"id": "d1", "active": true},
			{"id": "d2", "active": false},
		},
		digest: map[string]any{
			"ordersToday": 40, "ordersLastHour": 6, "readyWithoutDriverCount": 1, "cancelledTodayCount": 1,
		},
		failures: map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Client returns an upstream client pointed at the server.
func (s *Server) Client() *upstream.Client {
	return upstream.New(upstream.Options{BaseURL: s.URL, Token: "test"}, zerolog.Nop())
}

// SetProducts replaces the catalog.
func (s *Server) SetProducts(products ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
}

// SetDigest replaces the KPI digest.
func (s *Server) SetDigest(digest map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest = digest
}

// Fail makes path answer with code. Zero restores normal responses.
func (s *Server) Fail(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = code
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	code, failing := s.failures[r.URL.Path]
	var body any
	switch r.URL.Path {
	case "/health":
		body = map[string]string{"status": "ok"}
	case "/products":
		body = map[string]any{"items": s.products}
	case "/admin/orders":
		body = s.orders
	case "/admin/riders":
		body = map[string]any{"drivers": s.riders}
	case "/admin/digest":
		body = map[string]any{"data": s.digest}
	default:
		failing, code = true, http.StatusNotFound
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": http.StatusText(code)})
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
