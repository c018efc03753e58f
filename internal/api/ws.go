package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"palletroute/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage frames every websocket message. Run events travel as "next"
// with ID set to the event type; "complete" ends the stream.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunEventsWSHandler streams the events of run over a websocket.
func (s *Server) RunEventsWSHandler(w http.ResponseWriter, r *http.Request, run model.Run) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(run.ID)
	defer s.Broker.Unsubscribe(run.ID, ch)

	var wmu sync.Mutex
	write := func(v wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	complete := func() {
		_ = write(wsMessage{Type: "complete", ID: run.ID})
		wmu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		wmu.Unlock()
	}

	// Read loop: answers pings and detects the client going away.
	closed := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })
	go func() {
		defer close(closed)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			switch msg.Type {
			case "connection_init":
				_ = write(wsMessage{Type: "connection_ack"})
			case "ping":
				_ = write(wsMessage{Type: "pong"})
			}
		}
	}()

	if latest, err := s.Store.GetRun(r.Context(), run.ID); err == nil {
		run = latest
	}
	if evt, done := finishedEvent(run); done {
		_ = write(wsMessage{Type: "next", ID: evt.Type, Payload: evt.Data})
		complete()
		return
	}

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(wsMessage{Type: "next", ID: evt.Type, Payload: evt.Data}); err != nil {
				return
			}
			if terminalEvent(evt.Type) {
				complete()
				return
			}
		case <-ticker.C:
			wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
