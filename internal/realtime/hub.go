package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The HTTP surface fronts trusted tools; origin policy belongs to the
	// deployment proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// subscribeRequest is the first message a client sends:
// {"action":"subscribe","project":"p","topics":["job_progress"]}.
type subscribeRequest struct {
	Action  string   `json:"action"`
	Project string   `json:"project"`
	Topics  []string `json:"topics"`
}

// Hub upgrades websocket clients and relays bus messages matching their
// subscription. One goroutine per client; slow clients are disconnected.
type Hub struct {
	bus *Bus
}

func NewHub(bus *Bus) *Hub { return &Hub{bus: bus} }

// ServeWS handles one websocket client. The optional ?project= query
// parameter pre-scopes the subscription; a subscribe frame refines it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	project := r.URL.Query().Get("project")
	if project == "" {
		project = ProjectAll
	}

	// Wait briefly for an explicit subscribe frame; fall back to the query
	// parameter scope if none arrives.
	var topics []Topic
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var req subscribeRequest
	if err := conn.ReadJSON(&req); err == nil && req.Action == "subscribe" {
		if req.Project != "" {
			project = req.Project
		}
		for _, t := range req.Topics {
			topics = append(topics, Topic(t))
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	ch, cancel := h.bus.Subscribe(project, topics)
	defer cancel()

	// Drain client frames so pings/pongs and closes are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("websocket write failed, dropping client")
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		}
	}
}
