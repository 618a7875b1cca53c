package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/websocket"

	"github.com/neoprompts/neoprompts/internal/errors"
	"github.com/neoprompts/neoprompts/internal/storage"
)

const (
	realtimePath    = "/realtime/v1/websocket"
	realtimeVersion = "1.0.0"
	topicPrefix     = "realtime:neoprompts-"

	heartbeatInterval = 25 * time.Second
	joinTimeout       = 10 * time.Second
)

// Channel events.
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
)

// watchedTables are the tables whose changes are reported.
var watchedTables = []string{tableCollections, tablePrompts, tableTags}

// outMessage is a channel frame sent to the service.
type outMessage struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref"`
}

// inMessage is a channel frame received from the service.
type inMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type replyPayload struct {
	Status   string         `json:"status"`
	Response map[string]any `json:"response"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func joinPayload(key string) map[string]any {
	filters := make([]changeFilter, len(watchedTables))
	for i, t := range watchedTables {
		filters[i] = changeFilter{Event: "*", Schema: "public", Table: t}
	}
	return map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": filters,
		},
		"access_token": key,
	}
}

// subscription is one joined channel on its own socket.
type subscription struct {
	conn  *websocket.Conn
	topic string
	log   *slog.Logger

	onLost func(error)

	mu   sync.Mutex
	ref  int
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// SubscribeToChanges joins a realtime channel and calls onChange for every
// change to collections, prompts, or tags, including this adapter's own writes.
// The subscription ends when Unsubscribe is called, ctx is cancelled, or the
// adapter is closed. onChange runs on the reader goroutine and must not call
// Unsubscribe itself.
func (a *Adapter) SubscribeToChanges(ctx context.Context, onChange func()) (storage.Unsubscribe, error) {
	return a.SubscribeUntilLost(ctx, onChange, nil)
}

// SubscribeUntilLost is SubscribeToChanges plus a callback for a feed the
// service ended: onLost gets a STORE_FAILURE and the subscription is removed.
func (a *Adapter) SubscribeUntilLost(ctx context.Context, onChange func(), onLost func(error)) (storage.Unsubscribe, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, errors.NewInvalidRequest("remote store is closed")
	}

	cfg, err := websocket.NewConfig(a.wsURL, a.origin)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("realtime config: %w", err))
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("subscribe")
		}
		return nil, errors.NewStoreFailure("realtime connect", err)
	}

	s := &subscription{
		conn:   conn,
		topic:  topicPrefix + ulid.Make().String(),
		log:    a.log,
		onLost: onLost,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := s.join(a.c.key); err != nil {
		conn.Close()
		return nil, err
	}

	go s.read(onChange)
	go s.heartbeat()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		s.close()
		return nil, errors.NewInvalidRequest("remote store is closed")
	}
	a.subs[s] = struct{}{}
	a.mu.Unlock()

	unsubscribe := storage.Once(func() {
		s.close()
		a.mu.Lock()
		delete(a.subs, s)
		a.mu.Unlock()
	})
	// A reader that stops on its own leaves the subscription dead; drop it.
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		unsubscribe()
	}()

	a.log.Info("realtime subscribed", "topic", s.topic)
	return unsubscribe, nil
}

func (s *subscription) send(topic, event string, payload any) error {
	s.mu.Lock()
	s.ref++
	ref := fmt.Sprint(s.ref)
	s.mu.Unlock()
	return websocket.JSON.Send(s.conn, outMessage{Topic: topic, Event: event, Payload: payload, Ref: ref})
}

// join sends phx_join and waits for an ok reply.
func (s *subscription) join(key string) error {
	if err := s.send(s.topic, eventJoin, joinPayload(key)); err != nil {
		return errors.NewStoreFailure("realtime join", err)
	}

	_ = s.conn.SetReadDeadline(time.Now().Add(joinTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		var msg inMessage
		if err := websocket.JSON.Receive(s.conn, &msg); err != nil {
			return errors.NewStoreFailure("realtime join", err)
		}
		if msg.Topic != s.topic || msg.Event != eventReply {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return errors.NewRemoteFailure("realtime join", 0, "", fmt.Sprintf("decode reply: %v", err))
		}
		if reply.Status != "ok" {
			return errors.NewRemoteFailure("realtime join", 0, "", fmt.Sprintf("join refused: %v", reply.Response))
		}
		return nil
	}
}

func (s *subscription) read(onChange func()) {
	defer close(s.done)
	for {
		var msg inMessage
		if err := websocket.JSON.Receive(s.conn, &msg); err != nil {
			select {
			case <-s.stop:
			default:
				s.log.Warn("realtime connection lost", "topic", s.topic, "error", err)
				if s.onLost != nil {
					s.onLost(errors.NewStoreFailure("realtime connection lost", err))
				}
			}
			return
		}
		if msg.Topic == s.topic && msg.Event == eventChanges {
			onChange()
		}
	}
}

func (s *subscription) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.send("phoenix", eventHeartbeat, map[string]any{}); err != nil {
				s.log.Warn("realtime heartbeat failed", "topic", s.topic, "error", err)
			}
		}
	}
}

// close leaves the channel, closes the socket, and waits for the reader.
func (s *subscription) close() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.send(s.topic, eventLeave, map[string]any{})
		_ = s.conn.Close()
		<-s.done
		s.log.Info("realtime unsubscribed", "topic", s.topic)
	})
}
