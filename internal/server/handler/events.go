package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// EventSource is the stream-reading surface the events handler needs from
// the signal bus.
type EventSource interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler serves the durable event history recorded alongside the live
// pub/sub fan-out, so clients can catch up after a missed websocket session.
type EventsHandler struct {
	bus    EventSource
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler over the given event source.
func NewEventsHandler(bus EventSource, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger}
}

// eventEntryView pairs a stream ID with the stored event envelope. Payloads
// are the JSON published on the bus, passed through untouched.
type eventEntryView struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns events from a channel's history stream, oldest first.
// The "after" cursor is the last stream ID the client has seen.
// GET /api/events?channel=trades&after=<id>&limit=100
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	channel := q.Get("channel")
	if channel == "" {
		channel = domain.ChannelMarkets
	}
	if !validChannel(channel) {
		writeError(w, http.StatusBadRequest, "unknown channel "+channel)
		return
	}

	after := q.Get("after")
	if after == "" {
		after = "0"
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	msgs, err := h.bus.StreamRead(r.Context(), channel, after, limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list events")
		return
	}

	entries := make([]eventEntryView, len(msgs))
	for i, m := range msgs {
		entries[i] = eventEntryView{ID: m.ID, Event: json.RawMessage(m.Payload)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"events":  entries,
	})
}

func validChannel(c string) bool {
	switch c {
	case domain.ChannelMarkets, domain.ChannelTrades, domain.ChannelLiquidity, domain.ChannelResolutions:
		return true
	}
	return false
}
