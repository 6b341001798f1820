package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/MrWong99/textfix/internal/correction"
	"github.com/MrWong99/textfix/internal/corrector"
	"github.com/MrWong99/textfix/internal/observe"
)

// liveFrame is one request on the live socket.
type liveFrame struct {
	ID     string  `json:"id"`
	Text   *string `json:"text"`
	Mode   string  `json:"mode"`
	Marker string  `json:"marker"`
}

// liveReply answers exactly one liveFrame. Exactly one of Result and Error is
// set.
type liveReply struct {
	ID     string    `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}

// handleLive upgrades the connection and answers frames in order until the
// client goes away. A malformed frame is answered with an error and does not
// close the socket.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.liveOrigins,
	})
	if err != nil {
		observe.Logger(r.Context()).Debug("live: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxBodyBytes)

	ctx := r.Context()
	sessionID := uuid.NewString()
	log := observe.Logger(ctx).With("live_session", sessionID)

	s.metrics.ActiveLiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveLiveSessions.Add(context.WithoutCancel(ctx), -1)
	log.Info("live: session opened", "remote", r.RemoteAddr)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				log.Info("live: session closed")
			case errors.Is(err, context.Canceled):
				log.Debug("live: session cancelled")
			default:
				log.Warn("live: read failed", "err", err)
				conn.Close(websocket.StatusPolicyViolation, "read failed")
			}
			return
		}

		var reply liveReply
		var frame liveFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			reply.Error = &apiError{Code: "invalid_request", Message: "frame is not valid JSON"}
		} else {
			reply = s.answer(ctx, frame)
		}
		if err := s.writeLive(ctx, conn, reply); err != nil {
			log.Debug("live: write failed", "err", err)
			return
		}
	}
}

// answer runs one frame through the service.
func (s *Server) answer(ctx context.Context, frame liveFrame) liveReply {
	reply := liveReply{ID: frame.ID}
	if frame.Text == nil {
		ae := toAPIError(errMissingText)
		reply.Error = &ae
		return reply
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	res, err := s.svc.Check(ctx, correction.Request{
		Text:   *frame.Text,
		Mode:   corrector.Mode(frame.Mode),
		Marker: frame.Marker,
	})
	if err != nil {
		ae := toAPIError(err)
		reply.Error = &ae
		observe.Logger(ctx).Debug("live: frame failed", "id", frame.ID, "code", ae.Code, "err", err)
		return reply
	}
	reply.Result = resultBody(res)
	return reply
}

func (s *Server) writeLive(ctx context.Context, conn *websocket.Conn, reply liveReply) error {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, reply); err != nil {
		return fmt.Errorf("live: write reply %q: %w", reply.ID, err)
	}
	return nil
}
