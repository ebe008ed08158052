package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/synx/pkg/domain"
)

// Event is one server-sent lifecycle notification.
type Event struct {
	Type     domain.EventType `json:"type"`
	ObjectID uint32           `json:"object_id,omitempty"`
	Domain   domain.DomainID  `json:"domain,omitempty"`
	Status   domain.Status    `json:"status,omitempty"`
	Payload  any              `json:"payload,omitempty"`
}

const streamBuffer = 16

// StreamManager fans lifecycle events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan<- Event]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		subscribers: make(map[chan<- Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel. The returned func unsubscribes and
// closes it.
func (sm *StreamManager) Subscribe() (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, streamBuffer)
	sm.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

// Len returns the number of subscribers.
func (sm *StreamManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Broadcast never blocks. Slow subscribers lose events.
func (sm *StreamManager) Broadcast(ev Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- ev:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping event", "type", ev.Type, "id", ev.ObjectID)
		}
	}
}

// Hooks returns hooks that broadcast signal, destroy and recovery events.
func (sm *StreamManager) Hooks() domain.Hooks {
	object := func(_ context.Context, e *domain.ObjectEvent) {
		sm.Broadcast(Event{Type: e.Type, ObjectID: e.ObjectID, Domain: e.Owner, Status: e.Status})
	}
	return domain.Hooks{
		OnSignal:  object,
		OnDestroy: object,
		OnRecover: func(_ context.Context, e *domain.RecoveryEvent) {
			sm.Broadcast(Event{
				Type:    e.Type,
				Domain:  e.Domain,
				Payload: map[string]int{"local": e.Local, "directory": e.Directory},
			})
		},
	}
}

// filter selects events by type and owning domain.
type filter struct {
	types  map[domain.EventType]bool
	domain domain.DomainID
}

func parseFilter(r *http.Request) (filter, error) {
	var f filter
	if watch := r.URL.Query().Get("watch"); watch != "" {
		f.types = make(map[domain.EventType]bool)
		for _, t := range strings.Split(watch, ",") {
			f.types[domain.EventType(strings.TrimSpace(t))] = true
		}
	}
	if raw := r.URL.Query().Get("domain"); raw != "" {
		d, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return f, fmt.Errorf("bad domain %q: %w", raw, domain.ErrInvalid)
		}
		f.domain = domain.DomainID(d)
	}
	return f, nil
}

func (f filter) keep(ev Event) bool {
	if f.types != nil && !f.types[ev.Type] {
		return false
	}
	return f.domain == 0 || ev.Domain == f.domain
}

// SubscribeEvents handles GET /events?watch=signal,recover&domain=N (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !f.keep(ev) {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("SSE: encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
