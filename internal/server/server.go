package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/five82/mochiyoru/internal/gateway"
	"github.com/five82/mochiyoru/internal/model"
	"github.com/five82/mochiyoru/internal/server/store"
)

const (
	defaultPingInterval = 20 * time.Second
	maxBodyBytes        = 64 << 10
)

// Options configures a Server.
type Options struct {
	Store        store.Store
	Logger       *log.Logger
	PingInterval time.Duration
	// Registry receives the server metrics. Nil creates a private registry
	// with the Go and process collectors.
	Registry *prometheus.Registry
	Hub      *Hub
}

// Server serves the storage API and the change feed.
type Server struct {
	store        store.Store
	logger       *log.Logger
	hub          *Hub
	pingInterval time.Duration
	registry     *prometheus.Registry
	metrics      *metrics
}

// New builds a Server. A nil Store is a programming error.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = newRegistry()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub()
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}

	s := &Server{
		store:        opts.Store,
		logger:       logger,
		hub:          hub,
		pingInterval: ping,
		registry:     reg,
		metrics:      newMetrics(reg),
	}
	hub.onPublish = func(kind string) { s.metrics.events.WithLabelValues(kind).Inc() }
	hub.onCount = func(n int) { s.metrics.subscribers.Set(float64(n)) }
	return s, nil
}

// Hub returns the server's change feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler with CORS and request metrics applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/groups", s.handleCreateGroup)
	mux.HandleFunc("GET /api/groups/{id}", s.handleGetGroup)
	mux.HandleFunc("POST /api/groups/{id}", s.handleUpdateGroup)
	mux.HandleFunc("GET /api/groups/{id}/items", s.handleListItems)
	mux.HandleFunc("POST /api/groups/{id}/items", s.handleUpsertItem)
	mux.HandleFunc("DELETE /api/groups/{id}/items", s.handleDeleteItem)
	mux.HandleFunc("GET /api/groups/{id}/feed", s.handleFeed)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return s.withMiddleware(mux)
}

func (s *Server) withMiddleware(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		setCORSHeaders(w.Header(), allowedMethods(r.URL.Path))
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.observe(route, rec.status, started)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status,
			"duration", time.Since(started).Round(time.Millisecond))
	})
}

func (s *Server) observe(route string, status int, started time.Time) {
	s.metrics.requests.WithLabelValues(route, fmt.Sprint(status)).Inc()
	s.metrics.duration.WithLabelValues(route).Observe(time.Since(started).Seconds())
}

func allowedMethods(path string) string {
	if strings.HasSuffix(path, "/items") {
		return "GET, POST, DELETE, OPTIONS"
	}
	if strings.HasPrefix(path, "/api/groups/") {
		return "GET, POST, OPTIONS"
	}
	return "POST, OPTIONS"
}

func setCORSHeaders(header http.Header, methods string) {
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Headers", "Content-Type, "+gateway.OriginHeader)
	header.Set("Access-Control-Allow-Methods", methods)
}

type groupPayload struct {
	GroupName string          `json:"groupName"`
	Members   json.RawMessage `json:"members"`
}

// decode validates the payload: a non-empty name and a members array.
func (p groupPayload) decode() (string, []string, bool) {
	name := strings.TrimSpace(p.GroupName)
	raw := bytes.TrimSpace(p.Members)
	if name == "" || len(raw) == 0 || raw[0] != '[' {
		return "", nil, false
	}
	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return "", nil, false
	}
	return name, members, true
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var payload groupPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	name, members, ok := payload.decode()
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	g, err := s.store.CreateGroup(r.Context(), name, members)
	if err != nil {
		s.logger.Error("create group failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to save group")
		return
	}
	s.logger.Info("group created", "group", g.ID, "members", len(g.Members))
	writeJSON(w, http.StatusOK, gateway.CreateGroupResponse{GroupID: g.ID})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.GetGroup(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if err != nil {
		s.logger.Error("get group failed", "group", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, gateway.GroupRecord{
		GroupID:   g.ID,
		GroupName: g.Name,
		Members:   g.Members,
		CreatedAt: g.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload groupPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	name, members, ok := payload.decode()
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	err := s.store.UpdateGroup(r.Context(), id, name, members)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if err != nil {
		s.logger.Error("update group failed", "group", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to update group")
		return
	}
	s.logger.Info("group updated", "group", id, "members", len(members))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Group updated successfully",
		"groupId":   id,
		"groupName": name,
		"members":   members,
	})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	items, err := s.store.ListItems(r.Context(), id)
	if err != nil {
		s.logger.Error("list items failed", "group", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	out := make([]gateway.ItemRecord, 0, len(items))
	for _, it := range items {
		out = append(out, gateway.ItemRecord{
			ItemName: it.Name,
			Assignee: it.Assignee,
			Quantity: gateway.Quantity(it.Quantity),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// itemPayload accepts item_name or its short alias name.
type itemPayload struct {
	ItemName string           `json:"item_name"`
	Name     string           `json:"name"`
	Assignee string           `json:"assignee"`
	Quantity gateway.Quantity `json:"quantity"`
}

func (p itemPayload) itemName() string {
	if name := strings.TrimSpace(p.ItemName); name != "" {
		return name
	}
	return strings.TrimSpace(p.Name)
}

func (s *Server) handleUpsertItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload itemPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	name := payload.itemName()
	if name == "" {
		writeError(w, http.StatusBadRequest, "item_name required")
		return
	}

	it := store.Item{
		GroupID:  id,
		Name:     name,
		Assignee: model.NormalizeAssignee(payload.Assignee),
		Quantity: strings.TrimSpace(string(payload.Quantity)),
	}
	prev, err := s.store.UpsertItem(r.Context(), it)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if err != nil {
		s.logger.Error("upsert item failed", "group", id, "item", name, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}

	after := recordOf(it)
	msg := gateway.FeedMessage{
		Type:   gateway.FeedChange,
		Kind:   string(model.ChangeInsert),
		After:  &after,
		Origin: r.Header.Get(gateway.OriginHeader),
	}
	if prev != nil {
		before := recordOf(*prev)
		msg.Kind = string(model.ChangeUpdate)
		msg.Before = &before
	}
	s.hub.Publish(id, msg)
	writeJSON(w, http.StatusOK, map[string]string{"message": "saved", "item_name": name})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload itemPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	name := payload.itemName()
	if name == "" {
		writeError(w, http.StatusBadRequest, "item_name required")
		return
	}

	deleted, err := s.store.DeleteItem(r.Context(), id, name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Group not found")
		return
	}
	if err != nil {
		s.logger.Error("delete item failed", "group", id, "item", name, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}
	if deleted != nil {
		before := recordOf(*deleted)
		s.hub.Publish(id, gateway.FeedMessage{
			Type:   gateway.FeedChange,
			Kind:   string(model.ChangeDelete),
			Before: &before,
			Origin: r.Header.Get(gateway.OriginHeader),
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted", "item_name": name})
}

func recordOf(it store.Item) gateway.ItemRecord {
	return gateway.ItemRecord{
		GroupID:  it.GroupID,
		ItemName: it.Name,
		Assignee: it.Assignee,
		Quantity: gateway.Quantity(it.Quantity),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, gateway.ErrorBody{Error: message})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the feed upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
