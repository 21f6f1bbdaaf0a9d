package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/shopspring/decimal"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a domain error to an HTTP status and writes it. The
// error message is exposed to the client for mapped errors; unknown errors
// are logged and masked behind a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, op string) {
	status := domainStatus(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// domainStatus translates the domain error taxonomy to HTTP status codes.
func domainStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrState),
		errors.Is(err, domain.ErrSlippage),
		errors.Is(err, domain.ErrPaused),
		errors.Is(err, domain.ErrNoLiquidity),
		errors.Is(err, domain.ErrNoWinnings):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransfer):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseMarketID extracts and parses the {id} path parameter.
func parseMarketID(r *http.Request) (uint64, error) {
	raw := pathParam(r, "id")
	if raw == "" {
		return 0, errors.New("missing market id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid market id")
	}
	return id, nil
}

// parseBigInt parses a decimal-string token amount from a request field.
func parseBigInt(field, raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errors.New("missing " + field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("invalid " + field + ": not a decimal integer")
	}
	return v, nil
}

// parseSide parses a "yes"/"no" side selector.
func parseSide(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	default:
		return false, errors.New(`side must be "yes" or "no"`)
	}
}

// formatPrice renders a 1e18 fixed-point price as a decimal probability
// string, e.g. 500000000000000000 -> "0.5".
func formatPrice(p *big.Int) string {
	if p == nil {
		return "0"
	}
	return decimal.NewFromBigInt(p, -18).String()
}

// bigString renders a big integer amount, treating nil as zero.
func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
