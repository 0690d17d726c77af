package mediastub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Options describes how the fake media API should behave.
type Options struct {
	// AssetID, PlaybackID and Duration describe the asset every upload
	// eventually resolves to.
	AssetID    string
	PlaybackID string
	Duration   float64

	// UploadPendingPolls is how many upload polls report "waiting" before the
	// upload flips to "asset_created". AssetPendingPolls likewise delays the
	// asset's "ready" status behind "preparing" responses.
	UploadPendingPolls int
	AssetPendingPolls  int

	// OmitDuration makes the ready asset report a zero duration.
	// OmitPlaybackID makes it report no playback ids.
	OmitDuration   bool
	OmitPlaybackID bool

	// FailSlotCreates causes the first N slot create requests to return HTTP
	// 503. FailTransfers does the same for direct uploads.
	FailSlotCreates int
	FailTransfers   int

	// FailUploadPolls causes the first N upload status polls to return HTTP
	// 500. FailAssetPolls does the same for asset status polls.
	FailUploadPolls int
	FailAssetPolls  int

	// TokenID and TokenSecret, when set, are enforced via basic auth on the
	// control endpoints.
	TokenID     string
	TokenSecret string
}

// Operation records one interaction with the stub.
type Operation struct {
	Kind      string
	UploadID  string
	AssetID   string
	Attempt   int
	Status    int
	Body      []byte
	Timestamp time.Time
}

// Server hosts a single httptest.Server that serves all media endpoints.
type Server struct {
	server *httptest.Server
	opts   Options

	mu          sync.Mutex
	operations  []Operation
	uploads     int
	transfers   int
	uploadPolls map[string]int
	assetPolls  map[string]int
	uploaded    map[string][]byte
}

// Start spins up a new media API stub using the provided options.
func Start(opts Options) *Server {
	if opts.AssetID == "" {
		opts.AssetID = "asset-1"
	}
	if opts.PlaybackID == "" {
		opts.PlaybackID = "playback-1"
	}
	s := &Server{
		opts:        opts,
		uploadPolls: make(map[string]int),
		assetPolls:  make(map[string]int),
		uploaded:    make(map[string][]byte),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Close shuts down the underlying HTTP server.
func (s *Server) Close() {
	if s.server != nil {
		s.server.Close()
	}
}

// BaseURL returns the HTTP base URL for the control endpoints.
func (s *Server) BaseURL() string {
	return s.server.URL
}

// Operations returns a copy of all recorded operations in order.
func (s *Server) Operations() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Operation, len(s.operations))
	copy(out, s.operations)
	return out
}

// UploadedBytes returns the body received for the given upload id, if any.
func (s *Server) UploadedBytes(uploadID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.uploaded[uploadID]
	return data, ok
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/uploads":
		s.handleCreateSlot(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/files/"):
		s.handleTransfer(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/uploads/"):
		s.handlePollUpload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/assets/"):
		s.handlePollAsset(w, r)
	default:
		http.Error(w, "unexpected request", http.StatusNotFound)
	}
}

func (s *Server) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	if !s.expectBasicAuth(w, r) {
		return
	}
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.uploads++
	attempt := s.uploads
	s.mu.Unlock()

	uploadID := fmt.Sprintf("upload-%d", attempt)
	op := Operation{
		Kind:      "slot-create",
		UploadID:  uploadID,
		Attempt:   attempt,
		Status:    http.StatusCreated,
		Body:      body,
		Timestamp: time.Now(),
	}
	if attempt <= s.opts.FailSlotCreates {
		op.Status = http.StatusServiceUnavailable
		s.record(op)
		http.Error(w, "media service unavailable", http.StatusServiceUnavailable)
		return
	}
	s.record(op)

	writeData(w, http.StatusCreated, map[string]interface{}{
		"id":     uploadID,
		"url":    fmt.Sprintf("%s/files/%s", s.server.URL, uploadID),
		"status": "waiting",
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	uploadID := strings.TrimPrefix(r.URL.Path, "/files/")
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.transfers++
	attempt := s.transfers
	s.mu.Unlock()

	op := Operation{
		Kind:      "transfer",
		UploadID:  uploadID,
		Attempt:   attempt,
		Status:    http.StatusOK,
		Timestamp: time.Now(),
	}
	if attempt <= s.opts.FailTransfers {
		op.Status = http.StatusBadGateway
		s.record(op)
		http.Error(w, "upload target unavailable", http.StatusBadGateway)
		return
	}
	s.record(op)

	s.mu.Lock()
	s.uploaded[uploadID] = body
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePollUpload(w http.ResponseWriter, r *http.Request) {
	if !s.expectBasicAuth(w, r) {
		return
	}
	uploadID := strings.TrimPrefix(r.URL.Path, "/uploads/")

	s.mu.Lock()
	s.uploadPolls[uploadID]++
	attempt := s.uploadPolls[uploadID]
	s.mu.Unlock()

	op := Operation{
		Kind:      "upload-poll",
		UploadID:  uploadID,
		Attempt:   attempt,
		Status:    http.StatusOK,
		Timestamp: time.Now(),
	}
	if attempt <= s.opts.FailUploadPolls {
		op.Status = http.StatusInternalServerError
		s.record(op)
		http.Error(w, "media service hiccup", http.StatusInternalServerError)
		return
	}
	s.record(op)

	status := "asset_created"
	assetID := s.opts.AssetID
	if attempt <= s.opts.UploadPendingPolls {
		status = "waiting"
		assetID = ""
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"id":       uploadID,
		"status":   status,
		"asset_id": assetID,
	})
}

func (s *Server) handlePollAsset(w http.ResponseWriter, r *http.Request) {
	if !s.expectBasicAuth(w, r) {
		return
	}
	assetID := strings.TrimPrefix(r.URL.Path, "/assets/")

	s.mu.Lock()
	s.assetPolls[assetID]++
	attempt := s.assetPolls[assetID]
	s.mu.Unlock()

	op := Operation{
		Kind:      "asset-poll",
		AssetID:   assetID,
		Attempt:   attempt,
		Status:    http.StatusOK,
		Timestamp: time.Now(),
	}
	if attempt <= s.opts.FailAssetPolls {
		op.Status = http.StatusInternalServerError
		s.record(op)
		http.Error(w, "media service hiccup", http.StatusInternalServerError)
		return
	}
	s.record(op)

	payload := map[string]interface{}{
		"id":     assetID,
		"status": "ready",
	}
	if attempt <= s.opts.AssetPendingPolls {
		payload["status"] = "preparing"
	} else {
		if !s.opts.OmitDuration {
			payload["duration"] = s.opts.Duration
		}
		if !s.opts.OmitPlaybackID {
			payload["playback_ids"] = []map[string]string{
				{"id": s.opts.PlaybackID, "policy": "public"},
			}
		}
	}
	writeData(w, http.StatusOK, payload)
}

func (s *Server) expectBasicAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.TokenID == "" && s.opts.TokenSecret == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != s.opts.TokenID || pass != s.opts.TokenSecret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) record(op Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations = append(s.operations, op)
}

func writeData(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": payload})
}
