package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/backpressure"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/batch"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/filter"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/stream"
	"github.com/AbdalrahmanWael/StreamWeaver/pkg/log"
)

type Server struct {
	svc    *stream.Service
	logger log.Logger
	srv    *http.Server
	lis    net.Listener
}

func New(svc *stream.Service, logger log.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		svc:    svc,
		logger: logger.With(log.Component("http")),
		srv:    &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/sessions/register", s.handleRegister)
	mux.HandleFunc("/v1/sessions/close", s.handleClose)
	mux.HandleFunc("/v1/sessions/stats", s.handleStats)
	mux.HandleFunc("/v1/publish", s.handlePublish)
	mux.HandleFunc("/v1/stream", s.handleStreamSSE)
	mux.HandleFunc("/v1/ws", s.handleStreamWS)
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", log.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, stream.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, stream.ErrCapacity):
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"sessions":      s.svc.SessionCount(),
		"activeStreams": s.svc.ActiveStreams(),
	})
}

type registerReq struct {
	SessionID   string         `json:"sessionId"`
	UserRequest string         `json:"userRequest"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if err := s.svc.Register(r.Context(), req.SessionID, req.UserRequest, req.Metadata); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": req.SessionID})
}

type closeReq struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req closeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}
	if err := s.svc.CloseSession(r.Context(), req.SessionID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	// Bodies that don't mention success mean it, matching event.New.
	ev := event.Event{Success: true}
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event body"})
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if !ev.Type.Valid() || ev.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event requires sessionId and a known type"})
		return
	}
	if err := s.svc.Publish(r.Context(), &ev); err != nil {
		if errors.Is(err, stream.ErrSessionNotFound) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"eventId": ev.ID, "seq": ev.Seq})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

// attachOptions builds the stream attachment from query parameters. SSE
// reconnects also carry the cursor in the Last-Event-ID header, which
// wins over the query.
func attachOptions(r *http.Request) (stream.AttachOptions, error) {
	q := r.URL.Query()
	opts := stream.AttachOptions{LastEventID: q.Get("last_event_id")}
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		opts.LastEventID = id
	}

	var preds []filter.Predicate
	if vis := q.Get("visibility"); vis != "" {
		var levels []event.Visibility
		for _, part := range splitList(vis) {
			v := event.Visibility(part)
			if !v.Valid() {
				return opts, errors.New("unknown visibility " + part)
			}
			levels = append(levels, v)
		}
		preds = append(preds, filter.Visibility(levels...))
	}
	if typesParam := q.Get("types"); typesParam != "" {
		var types []event.Type
		for _, part := range splitList(typesParam) {
			t := event.Type(part)
			if !t.Valid() {
				return opts, errors.New("unknown event type " + part)
			}
			types = append(types, t)
		}
		preds = append(preds, filter.Types(types...))
	}
	if expr := q.Get("filter"); expr != "" {
		pred, err := filter.CEL(expr)
		if err != nil {
			return opts, err
		}
		preds = append(preds, pred)
	}
	if len(preds) > 0 {
		opts.Filter = filter.And(preds...)
	}

	if policyParam := q.Get("policy"); policyParam != "" {
		policy, err := backpressure.ParsePolicy(policyParam)
		if err != nil {
			return opts, err
		}
		opts.Policy = policy
	}
	if batchParam := q.Get("batch"); batchParam != "" {
		enabled, err := strconv.ParseBool(batchParam)
		if err != nil {
			return opts, errors.New("batch must be a boolean")
		}
		cfg := batch.DefaultConfig()
		cfg.Enabled = enabled
		opts.Batch = &cfg
	}
	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
