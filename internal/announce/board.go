package announce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrEmptyMessage is returned when an announcement has no message
var ErrEmptyMessage = errors.New("message is required")

const (
	writeTimeout   = 10 * time.Second
	subscriberSize = 8
)

// Announcement is the latest status line shown by web clients
type Announcement struct {
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Board holds the latest announcement and streams updates to WebSocket subscribers
type Board struct {
	log      zerolog.Logger
	defaults Announcement
	now      func() time.Time
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	current Announcement
	subs    map[*subscriber]struct{}
}

// NewBoard creates a board showing defaults until the first update
func NewBoard(defaults Announcement, log zerolog.Logger) *Board {
	b := &Board{
		log:      log.With().Str("component", "announce").Logger(),
		defaults: defaults,
		now:      time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
	b.current = defaults
	b.current.Timestamp = b.now()
	return b
}

// Latest returns the current announcement
func (b *Board) Latest() Announcement {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Set replaces the announcement. Empty username or avatar fall back to the defaults.
// The timestamp is the time of the update.
func (b *Board) Set(a Announcement) (Announcement, error) {
	if strings.TrimSpace(a.Message) == "" {
		return Announcement{}, ErrEmptyMessage
	}
	if a.Username == "" {
		a.Username = b.defaults.Username
	}
	if a.Avatar == "" {
		a.Avatar = b.defaults.Avatar
	}
	a.Timestamp = b.now()

	payload, err := json.Marshal(a)
	if err != nil {
		return Announcement{}, fmt.Errorf("failed to marshal announcement: %w", err)
	}

	b.mu.Lock()
	b.current = a
	var dropped []*subscriber
	for s := range b.subs {
		select {
		case s.send <- payload:
		default:
			dropped = append(dropped, s)
		}
	}
	for _, s := range dropped {
		b.removeLocked(s)
	}
	b.mu.Unlock()

	if len(dropped) > 0 {
		b.log.Warn().Int("dropped", len(dropped)).Msg("Dropped slow announcement subscribers")
	}
	b.log.Info().Str("username", a.Username).Str("message", a.Message).Msg("Announcement updated")
	return a, nil
}

// Status sets a timestamped status line, "[HH:MM:SS] text", authored by username
func (b *Board) Status(username, avatar, text string) (Announcement, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Announcement{}, ErrEmptyMessage
	}
	msg := fmt.Sprintf("[%s] %s", b.now().Format("15:04:05"), text)
	return b.Set(Announcement{Username: username, Avatar: avatar, Message: msg})
}

// Subscribers returns the number of connected WebSocket clients
func (b *Board) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// ServeWS upgrades the request and streams the current and every later announcement
func (b *Board) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, subscriberSize)}

	b.mu.Lock()
	initial, err := json.Marshal(b.current)
	if err == nil {
		s.send <- initial
	}
	b.subs[s] = struct{}{}
	total := len(b.subs)
	b.mu.Unlock()

	b.log.Debug().Str("remote", r.RemoteAddr).Int("total", total).Msg("Announcement subscriber connected")

	go b.writeLoop(s)
	b.readLoop(s)
}

// readLoop discards client frames and unregisters the subscriber when the connection ends
func (b *Board) readLoop(s *subscriber) {
	defer func() {
		b.mu.Lock()
		b.removeLocked(s)
		b.mu.Unlock()
	}()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Board) writeLoop(s *subscriber) {
	defer s.conn.Close()
	for payload := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.log.Debug().Err(err).Msg("Announcement write failed")
			return
		}
	}
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// removeLocked unregisters s once. Caller holds b.mu.
func (b *Board) removeLocked(s *subscriber) {
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.send)
}

// Close disconnects every subscriber
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		b.removeLocked(s)
	}
}
