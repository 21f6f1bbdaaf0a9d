// Package bus provides an in-process SignalBus used in paper mode and in
// tests, where no Redis is available. It mirrors the Redis bus semantics:
// fire-and-forget pub/sub plus bounded streams.
package bus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// subscriberBuffer is the per-subscriber channel capacity. Slow subscribers
// drop messages rather than block publishers, matching Redis pub/sub.
const subscriberBuffer = 256

// defaultStreamMaxLen bounds in-memory stream growth.
const defaultStreamMaxLen = 10000

// Memory is an in-process implementation of domain.SignalBus.
type Memory struct {
	mu      sync.RWMutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
	seq     uint64
	maxLen  int
}

var _ domain.SignalBus = (*Memory)(nil)

// NewMemory creates an empty in-process signal bus.
func NewMemory() *Memory {
	return &Memory{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  defaultStreamMaxLen,
	}
}

// Publish delivers payload to every current subscriber of channel. Slow
// subscribers are skipped.
func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber for channel. The returned channel is
// closed when ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		subs := m.subs[channel]
		for i, c := range subs {
			if c == ch {
				m.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// StreamAppend appends payload to the named stream, trimming to the maximum
// length.
func (m *Memory) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	entries := append(m.streams[stream], domain.StreamMessage{
		ID:      fmt.Sprintf("%d-0", m.seq),
		Payload: payload,
	})
	if len(entries) > m.maxLen {
		entries = entries[len(entries)-m.maxLen:]
	}
	m.streams[stream] = entries
	return nil
}

// StreamRead returns up to count entries with IDs greater than lastID. An
// empty lastID reads from the start.
func (m *Memory) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.streams[stream]
	last := parseStreamID(lastID)
	var out []domain.StreamMessage
	for _, e := range entries {
		if lastID != "" && parseStreamID(e.ID) <= last {
			continue
		}
		out = append(out, e)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// parseStreamID extracts the numeric sequence from a "seq-0" stream ID.
func parseStreamID(id string) uint64 {
	if i := strings.IndexByte(id, '-'); i >= 0 {
		id = id[:i]
	}
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}
