package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/stream"
	"github.com/AbdalrahmanWael/StreamWeaver/pkg/log"
)

// sseSink frames stream items as Server-Sent Events. Events with an ID
// carry it in the id: field so EventSource reconnects resume from the
// right cursor; synthetic events (heartbeats, markers) omit it.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

func (s sseSink) Send(item stream.Item) error {
	if item.Batch != nil {
		data, err := json.Marshal(item.Batch)
		if err != nil {
			return err
		}
		// The cursor advances to the newest event in the batch.
		for i := len(item.Batch) - 1; i >= 0; i-- {
			if id := item.Batch[i].ID; id != "" {
				if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
					return err
				}
				break
			}
		}
		_, err = fmt.Fprintf(s.w, "event: batch\ndata: %s\n\n", data)
		return err
	}
	ev := item.Event
	if ev.ID != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "event: message\ndata: %s\n\n", data)
	return err
}

func (s sseSink) Context() context.Context { return s.r.Context() }

func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (s *Server) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session is required"})
		return
	}
	opts, err := attachOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	st, err := s.svc.Attach(r.Context(), sessionID, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if err := st.Run(r.Context(), sseSink{w: w, r: r}); err != nil && r.Context().Err() == nil {
		s.logger.Debug("sse stream ended with error",
			log.Str("session", sessionID), log.Err(err))
	}
}
