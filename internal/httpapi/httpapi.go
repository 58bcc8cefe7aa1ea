// Package httpapi exposes a lightweight HTTP control API over the pool, for
// a host program that wants to drive rotation or inspect state remotely
// instead of through the in-process Control Surface directly.
//
// Endpoints
//
//	GET  /api/pool      List every entry currently in the pool.
//	GET  /api/current   Return the currently selected entry.
//	POST /api/advance   Advance current_index by one and return the result.
//	POST /api/select    Select {"n": <1-based index>} and return the result.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/relaypool/socks5pool/internal/pool"
)

// Server is the admin HTTP API server.
type Server struct {
	pool   *pool.Pool
	server *http.Server
}

// New creates and configures the API server bound to addr.
func New(addr string, p *pool.Pool) *Server {
	s := &Server{pool: p}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/pool", s.handlePool)
	mux.HandleFunc("/api/current", s.handleCurrent)
	mux.HandleFunc("/api/advance", s.handleAdvance)
	mux.HandleFunc("/api/select", s.handleSelect)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error { return s.server.ListenAndServe() }

// Stop shuts down the server.
func (s *Server) Stop() error { return s.server.Close() }

// entryInfo is a serialisable snapshot of one pool entry.
type entryInfo struct {
	Address   string `json:"address"`
	LatencyMS int64  `json:"latency_ms"`
	FailCount uint32 `json:"fail_count"`
}

func toEntryInfo(e pool.Entry) entryInfo {
	return entryInfo{
		Address:   e.Address,
		LatencyMS: e.Latency.Milliseconds(),
		FailCount: e.FailCount,
	}
}

// handlePool returns every entry currently in the pool.
//
//	GET /api/pool
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := s.pool.List()
	infos := make([]entryInfo, len(entries))
	for i, e := range entries {
		infos[i] = toEntryInfo(e)
	}
	jsonOK(w, infos)
}

// handleCurrent returns the currently selected entry.
//
//	GET /api/current
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cur, ok := s.pool.GetCurrent()
	if !ok {
		http.Error(w, "pool is empty", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, toEntryInfo(cur))
}

// handleAdvance moves current_index forward by one.
//
//	POST /api/advance
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entry, ok := s.pool.Advance()
	if !ok {
		http.Error(w, "pool is empty", http.StatusServiceUnavailable)
		return
	}
	log.Printf("[httpapi] advanced to %s", entry.Address)
	jsonOK(w, toEntryInfo(entry))
}

// selectRequest is the payload for POST /api/select.
type selectRequest struct {
	N int `json:"n"`
}

// handleSelect jumps current_index to a 1-based position.
//
//	POST /api/select
//	Body: {"n": 3}
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req selectRequest
	if n, err := strconv.Atoi(r.URL.Query().Get("n")); err == nil && r.URL.Query().Has("n") {
		req.N = n
	} else if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	entry, ok := s.pool.Select(req.N)
	if !ok {
		http.Error(w, "pool is empty", http.StatusServiceUnavailable)
		return
	}
	log.Printf("[httpapi] selected #%d -> %s", req.N, entry.Address)
	jsonOK(w, toEntryInfo(entry))
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] encode response: %v", err)
	}
}
