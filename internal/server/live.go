package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"traceviz/internal/state"
)

const (
	liveWriteTimeout = 5 * time.Second
	livePingInterval = 30 * time.Second
)

var liveUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// liveMessage is pushed to websocket clients. Timeline is nil when no trace
// is loaded.
type liveMessage struct {
	Event    string        `json:"event"`
	Loaded   bool          `json:"loaded"`
	Timeline *timelineView `json:"timeline,omitempty"`
	SentAt   time.Time     `json:"sentAt"`
}

func newLiveMessage(event string, evt state.Event) liveMessage {
	msg := liveMessage{Event: event, SentAt: time.Now().UTC()}
	if evt.Trace != nil {
		view := buildTimelineView(*evt.Trace)
		msg.Loaded = true
		msg.Timeline = &view
	}
	return msg
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveLiveConnection(conn)
}

func (s *Server) serveLiveConnection(conn *websocket.Conn) {
	defer conn.Close()

	// Only the newest pending event matters; older ones are dropped when a
	// client falls behind.
	events := make(chan state.Event, 1)
	unsubscribe := s.store.Subscribe(func(evt state.Event) {
		for {
			select {
			case events <- evt:
				return
			default:
			}
			select {
			case <-events:
			default:
			}
		}
	})
	defer unsubscribe()

	snapshot := state.Event{}
	if trace, ok := s.store.Current(); ok {
		snapshot.Trace = &trace
	}
	if err := writeLivePayload(conn, newLiveMessage("snapshot", snapshot)); err != nil {
		return
	}

	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-events:
			if err := writeLivePayload(conn, newLiveMessage(string(evt.Kind), evt)); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeLivePayload(conn *websocket.Conn, payload liveMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return conn.WriteJSON(payload)
}
