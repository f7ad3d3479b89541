package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jonathan/content-pipeline/internal/pipeline"
	"github.com/jonathan/content-pipeline/internal/types"
)

const (
	wsBriefTimeout = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleJobWebSocket starts a run over a WebSocket. The first client message
// is the content brief; every pipeline event is sent back as one
// {"event", "data"} JSON message and the server closes when the run ends.
func (s *Server) handleJobWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := uuid.NewString()
	conn, err := s.upgrader.Upgrade(w, r, http.Header{"X-Job-ID": []string{jobID}})
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(wsBriefTimeout))
	var brief types.ContentBrief
	if err := conn.ReadJSON(&brief); err != nil {
		s.wsClose(conn, websocket.CloseUnsupportedData, "first message must be a content brief")
		return
	}
	if err := brief.Validate(); err != nil {
		_ = s.wsWrite(conn, pipeline.Event{Name: pipeline.EventError, Data: errorBody(err)})
		s.wsClose(conn, websocket.ClosePolicyViolation, "invalid content brief")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	s.cleanupExpired(r.Context())
	s.log.Info("run accepted", "job_id", jobID, "transport", "websocket")
	stream := s.startRun(r, jobID, func(ctx context.Context, obs pipeline.Observer) error {
		_, err := s.orch.Run(ctx, jobID, brief, obs)
		return err
	})

	// Reads only serve to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	events := stream.Events()
	for {
		select {
		case <-gone:
			s.log.Info("client left the websocket, run continues", "job_id", jobID)
			return
		case e, ok := <-events:
			if !ok {
				s.wsClose(conn, websocket.CloseNormalClosure, "run finished")
				return
			}
			if err := s.wsWrite(conn, e); err != nil {
				s.log.Warn("failed to write event", "job_id", jobID, "error", err)
				return
			}
		}
	}
}

func (s *Server) wsWrite(conn *websocket.Conn, e pipeline.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(e)
}

func (s *Server) wsClose(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
