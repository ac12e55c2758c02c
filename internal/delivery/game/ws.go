package game

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rps_arena/internal/httpresponse"
	gameuc "rps_arena/internal/usecase/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 << 10
	outboxSize     = 16
	presenceWait   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Reply answers one WebSocket command.
type Reply struct {
	Type  string        `json:"type"`
	Op    string        `json:"op"`
	Game  *GameResponse `json:"game,omitempty"`
	Error string        `json:"error,omitempty"`
}

// HandleWS streams the player's game events and accepts commands in the
// Command format. Several sockets of one user share a single client.
func (g *GameHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := g.authHandler.GetUserID(w, r)
	if userID == "" {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warnf("ws upgrade for %s failed: %v", userID, err)
		return
	}
	defer conn.Close()

	client, first := g.registry.Connect(userID)
	if first {
		g.setPresence(userID, true)
	}
	defer func() {
		if g.registry.Disconnect(userID) {
			g.setPresence(userID, false)
		}
	}()

	events, stopListening := client.Listen()
	defer stopListening()

	outbox := make(chan any, outboxSize)
	stopped := make(chan struct{})
	go g.writeLoop(conn, events, outbox, stopped)

	ctx := r.Context()
	if resp, err := g.Execute(ctx, client, Command{Type: opResume}); err == nil {
		send(outbox, stopped, Reply{Type: "reply", Op: opResume, Game: &resp})
	}

	g.readLoop(ctx, conn, client, outbox, stopped)
}

func (g *GameHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *gameuc.Client, outbox chan<- any, stopped <-chan struct{}) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Warnf("ws read for %s: %v", client.UserID(), err)
			}
			return
		}

		reply := Reply{Type: "reply", Op: cmd.Type}
		resp, err := g.Execute(ctx, client, cmd)
		if err != nil {
			reply.Error = httpresponse.Describe(err)
		} else if resp.Game.ID != "" {
			reply.Game = &resp
		}
		if !send(outbox, stopped, reply) {
			return
		}
	}
}

// writeLoop is the only writer of conn.
func (g *GameHandler) writeLoop(conn *websocket.Conn, events <-chan gameuc.Event, outbox <-chan any, stopped chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(stopped)
		conn.Close()
	}()

	for {
		var msg any
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			msg = ev
		case msg = <-outbox:
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			g.log.Debugf("ws write: %v", err)
			return
		}
	}
}

func send(outbox chan<- any, stopped <-chan struct{}, msg any) bool {
	select {
	case outbox <- msg:
		return true
	case <-stopped:
		return false
	}
}

func (g *GameHandler) setPresence(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWait)
	defer cancel()
	if err := g.profileUC.SetPresence(ctx, userID, online); err != nil {
		g.log.Warnf("presence of %s: %v", userID, err)
	}
}
