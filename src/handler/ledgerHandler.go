package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"paperledger/src/ledger"
	"paperledger/src/model"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const internalErrorMessage = "Internal error"

// LedgerService is the subset of *ledger.Engine the HTTP layer needs.
type LedgerService interface {
	OpenPosition(ctx context.Context, user string, side model.Side, symbol string, amount decimal.Decimal) (*ledger.OpenResult, error)
	ClosePosition(ctx context.Context, user, positionID string) (*ledger.CloseResult, error)
	ListOpenPositions(ctx context.Context, user string) ([]ledger.OpenPositionRow, error)
	AccountSummary(ctx context.Context, user string) (*ledger.Summary, error)
	CheckPrice(ctx context.Context, symbol string) (string, decimal.Decimal, error)
}

// Amount accepts both "1.5" and 1.5.
type openPositionPayload struct {
	Side   string          `json:"side"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

type priceResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// OpenPositionHandler handles POST /users/{user}/positions.
func OpenPositionHandler(svc LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := chi.URLParam(r, "user")

		var payload openPositionPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid open position payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		side, err := model.ParseSide(payload.Side)
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := svc.OpenPosition(r.Context(), user, side, payload.Symbol, payload.Amount)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

// ClosePositionHandler handles POST /users/{user}/positions/{id}/close.
func ClosePositionHandler(svc LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.ClosePosition(r.Context(), chi.URLParam(r, "user"), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ListOpenPositionsHandler handles GET /users/{user}/positions.
func ListOpenPositionsHandler(svc LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListOpenPositions(r.Context(), chi.URLParam(r, "user"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, rows)
	}
}

// AccountSummaryHandler handles GET /users/{user}/summary. A newly created
// account answers 201 so the caller can show a "new user" notice.
func AccountSummaryHandler(svc LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.AccountSummary(r.Context(), chi.URLParam(r, "user"))
		if err != nil {
			writeError(w, err)
			return
		}

		status := http.StatusOK
		if summary.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, summary)
	}
}

// CheckPriceHandler handles GET /prices/{symbol}.
func CheckPriceHandler(svc LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol, price, err := svc.CheckPrice(r.Context(), chi.URLParam(r, "symbol"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, priceResponse{Symbol: symbol, Price: price})
	}
}

// statusFor maps the error taxonomy to HTTP statuses; 0 means unclassified.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidPositionID):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return 0
	}
}

// writeError shows caller-correctable errors verbatim and hides everything
// else behind a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch {
	case model.IsUserError(err):
		http.Error(w, err.Error(), status)
	case status != 0:
		logger.WithError(err).Error("ledger dependency unavailable")
		http.Error(w, http.StatusText(status), status)
	default:
		logger.WithError(err).Error("unexpected ledger error")
		http.Error(w, internalErrorMessage, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
