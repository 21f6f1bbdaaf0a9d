package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/bus"
	"github.com/alanyoungcy/predictpool/internal/domain"
)

func newEventsMux(mem *bus.Memory) *http.ServeMux {
	h := NewEventsHandler(mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", h.ListEvents)
	return mux
}

func appendEvents(t *testing.T, mem *bus.Memory, channel string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf(`{"type":"trade_executed","market_id":%d}`, i+1)
		require.NoError(t, mem.StreamAppend(context.Background(), channel, []byte(payload)))
	}
}

func TestListEventsHandler(t *testing.T) {
	mem := bus.NewMemory()
	appendEvents(t, mem, domain.ChannelTrades, 3)
	mux := newEventsMux(mem)

	req := httptest.NewRequest(http.MethodGet, "/api/events?channel=trades", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Channel string `json:"channel"`
		Events  []struct {
			ID    string          `json:"id"`
			Event json.RawMessage `json:"event"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "trades", body.Channel)
	require.Len(t, body.Events, 3)
	assert.Equal(t, "1-0", body.Events[0].ID)
	assert.JSONEq(t, `{"type":"trade_executed","market_id":1}`, string(body.Events[0].Event))
}

func TestListEventsHandlerCursor(t *testing.T) {
	mem := bus.NewMemory()
	appendEvents(t, mem, domain.ChannelTrades, 5)
	mux := newEventsMux(mem)

	req := httptest.NewRequest(http.MethodGet, "/api/events?channel=trades&after=3-0&limit=1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []struct {
			ID string `json:"id"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "4-0", body.Events[0].ID)
}

func TestListEventsHandlerValidation(t *testing.T) {
	mux := newEventsMux(bus.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "/api/events?channel=gossip", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events?limit=zero", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
