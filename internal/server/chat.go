package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/graphdesk/server/internal/agent/session"
	logx "github.com/graphdesk/server/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard and chat widget are served from other origins in
	// development; auth happens on the token, not the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type chatHandler struct {
	auth *authHandler
	deps session.Deps
}

type inboundMessage struct {
	Text string `json:"text"`
}

type outboundMessage struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// ServeHTTP upgrades the connection, authenticates the token passed in the
// query string, then runs the per-connection conversation loop until the
// customer disconnects.
func (h *chatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	claims, err := h.auth.parseToken(r.URL.Query().Get("token"))
	if err != nil {
		logx.Warn().Err(err).Msg("websocket connection rejected: bad token")
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"), deadline)
		return
	}

	sess := session.New(r.Context(), h.deps, claims.CustomerID)
	defer sess.Close(r.Context())

	logx.Info().Str("customerID", claims.CustomerID).Msg("chat session opened")

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logx.Warn().Err(err).Msg("chat connection dropped")
			}
			break
		}
		if in.Text == "" {
			continue
		}

		reply := sess.HandleMessage(r.Context(), in.Text)

		out := outboundMessage{ID: time.Now().UnixMilli(), Text: reply, Sender: "bot"}
		if err := conn.WriteJSON(out); err != nil {
			logx.Error().Err(err).Msg("failed to write chat reply")
			break
		}
	}

	logx.Info().Str("customerID", claims.CustomerID).Msg("chat session closed")
}
