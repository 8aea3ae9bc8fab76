package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/stream"
	"github.com/AbdalrahmanWael/StreamWeaver/pkg/log"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The REST surface is already wide open to any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsFrame is the JSON envelope written to WebSocket clients: exactly one
// of event or batch is set.
type wsFrame struct {
	Event any `json:"event,omitempty"`
	Batch any `json:"batch,omitempty"`
}

// wsSink frames stream items as JSON text messages. Only the generator
// writes, so no write lock is needed.
type wsSink struct {
	conn *websocket.Conn
	ctx  context.Context
}

func (s wsSink) Send(item stream.Item) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	frame := wsFrame{}
	if item.Batch != nil {
		frame.Batch = item.Batch
	} else {
		frame.Event = item.Event
	}
	return s.conn.WriteJSON(frame)
}

func (s wsSink) Context() context.Context { return s.ctx }

func (s wsSink) Flush() error { return nil }

func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
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

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		st.Close()
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Read pump: the client sends nothing meaningful, but reading is how
	// close frames and connection drops surface.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = st.Run(ctx, wsSink{conn: conn, ctx: ctx})
	if err != nil && ctx.Err() == nil {
		s.logger.Debug("websocket stream ended with error",
			log.Str("session", sessionID), log.Err(err))
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
