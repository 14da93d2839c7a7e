package httpapi

import (
	"net/http"
	"time"

	"crm-calls/internal/calls"
	"crm-calls/internal/presence"
	"crm-calls/internal/rtc"
	"crm-calls/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsReadLimit    = 4096
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// clientMessage is the only thing clients send on the event socket.
type clientMessage struct {
	Type    string `json:"type"`
	Visible *bool  `json:"visible,omitempty"`
}

// Events streams call events to the client. The connection is the client's
// tab: it marks the user online for its lifetime and offline when it closes.
func (h Handlers) Events(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromGin(c)

	events, cancel, err := h.Calls.Subscribe(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer cancel()

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	var tracker *presence.Tracker
	if h.Presence != nil {
		tracker = presence.NewTracker(h.Presence, h.Heartbeat, log)
		tracker.Start(ctx)
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg clientMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Debug("ignoring malformed client message", "err", err)
				continue
			}
			if msg.Type == "visibility" && msg.Visible != nil && tracker != nil {
				tracker.SetVisible(*msg.Visible)
			}
		}
	}()

	defer func() {
		_ = conn.Close()
		<-done
		// offline must be the last write, after the reader is gone
		if tracker != nil {
			tracker.Stop()
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			trackCall(tracker, ev)
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Error("encode event", "type", ev.Type, "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// trackCall mirrors the user's own call state into presence.
func trackCall(t *presence.Tracker, ev rtc.Event) {
	if t == nil {
		return
	}
	switch {
	case ev.Type == rtc.EventSession && ev.Session != nil && ev.Session.Status == calls.StatusActive:
		t.SetStatus(presence.StatusInCall)
	case ev.Type == rtc.EventEnded:
		t.ClearStatus(presence.StatusInCall)
	}
}
