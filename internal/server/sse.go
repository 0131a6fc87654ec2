package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oxide-run/oxide/internal/event"
	"github.com/oxide-run/oxide/internal/logging"
)

// sseHeartbeatInterval keeps idle intermediaries (proxies, load
// balancers) from closing a quiet connection.
const sseHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for Server-Sent Events framing.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) writeEvent(data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: message\ndata: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// allEvents handles GET /event. An optional ?sessionID= query parameter
// restricts the stream to events carrying that session ID; without it,
// every event on the bus is forwarded.
func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	sessionFilter := r.URL.Query().Get("sessionID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	events := make(chan event.Event, 16)
	unsub := event.SubscribeAll(func(e event.Event) {
		if sessionFilter != "" && eventSessionID(e) != sessionFilter {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().Str("eventType", string(e.Type)).Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent(e); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventSessionID extracts the session ID carried by an event's payload,
// or "" for session-agnostic events (e.g. vcs.branch.updated).
func eventSessionID(e event.Event) string {
	switch data := e.Data.(type) {
	case event.SessionCreatedData:
		return data.Metadata.SessionID
	case event.SessionUpdatedData:
		return data.Metadata.SessionID
	case event.SessionDeletedData:
		return data.SessionID
	case event.MessageCreatedData:
		return data.SessionID
	case event.MessagePartUpdatedData:
		return data.SessionID
	case event.ToolCallStartedData:
		return data.SessionID
	case event.ToolCallCompletedData:
		return data.SessionID
	case event.PermissionRequiredData:
		return data.SessionID
	case event.PermissionResolvedData:
		return data.SessionID
	case event.TodoUpdatedData:
		return data.SessionID
	}
	return ""
}
