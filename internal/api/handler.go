package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/internal/protocol"
	"github.com/Fi44er/casino_ledger/internal/service"
	"github.com/Fi44er/casino_ledger/utils"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// Metrics
var (
	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_callbacks_total",
		Help: "Aggregator callbacks processed, by request type and outcome",
	}, []string{"type", "outcome"})

	callbackLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_callback_duration_seconds",
		Help:    "Latency distribution of aggregator callbacks",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"type"})

	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total admin HTTP requests",
	}, []string{"method", "endpoint", "status"})
)

// Dispatcher answers one signed callback body.
type Dispatcher interface {
	Handle(ctx context.Context, body []byte) protocol.Reply
}

// Accounts are the account operations exposed to the rest of the platform.
type Accounts interface {
	CreateAccount(ctx context.Context, userID int64, code string) (*models.Account, error)
	CreditDeposit(ctx context.Context, userID int64, amount decimal.Decimal, code string) (decimal.Decimal, error)
	DebitOrRefundWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	GetBalance(ctx context.Context, userID int64, code string) (decimal.Decimal, error)
}

type Handler struct {
	dispatcher Dispatcher
	accounts   Accounts
	logger     *utils.Logger
}

func NewHandler(dispatcher Dispatcher, accounts Accounts, logger *utils.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, accounts: accounts, logger: logger}
}

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/callback", h.Callback).Methods("POST")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/balance", h.GetBalance).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/deposits", h.Deposit).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/withdrawals", h.Withdraw).Methods("POST")
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

// Callback is the aggregator's single endpoint. The body is passed through
// untouched because the MAC covers its exact member order.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warnf("Failed to read callback body: %v", err)
		callbacksTotal.WithLabelValues("", "malformed").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"` + protocol.CodeMalformed + `"}`))
		return
	}

	start := time.Now()
	reply := h.dispatcher.Handle(r.Context(), body)
	callbackLatency.WithLabelValues(reply.Type).Observe(time.Since(start).Seconds())
	callbacksTotal.WithLabelValues(reply.Type, reply.Outcome).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	w.Write(reply.Body)
}

type accountRequest struct {
	UserID   int64  `json:"user_id"`
	Currency string `json:"currency"`
}

type amountRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type balanceResponse struct {
	UserID   int64           `json:"user_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency,omitempty"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), req.UserID, req.Currency)
	if err != nil {
		h.logger.Errorf("Failed to create account %d: %v", req.UserID, err)
		h.respondError(w, http.StatusConflict, "Account could not be created", "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, account, "POST", endpoint)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/balance"
	userID, ok := h.userID(w, r, "GET", endpoint)
	if !ok {
		return
	}
	code := r.URL.Query().Get("currency")

	balance, err := h.accounts.GetBalance(r.Context(), userID, code)
	if err != nil {
		h.respondServiceError(w, err, "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance, Currency: code}, "GET", endpoint)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/deposits"
	userID, ok := h.userID(w, r, "POST", endpoint)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}

	balance, err := h.accounts.CreditDeposit(r.Context(), userID, req.Amount, req.Currency)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance, Currency: req.Currency}, "POST", endpoint)
}

// Withdraw reserves a withdrawal; a negative amount refunds a rejected one.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/withdrawals"
	userID, ok := h.userID(w, r, "POST", endpoint)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}

	balance, err := h.accounts.DebitOrRefundWithdrawal(r.Context(), userID, req.Amount)
	if err != nil {
		h.respondServiceError(w, err, "POST", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance}, "POST", endpoint)
}

// Helpers
func (h *Handler) userID(w http.ResponseWriter, r *http.Request, method, endpoint string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid account id", method, endpoint)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, service.ErrUnknownAccount):
		h.respondError(w, http.StatusNotFound, "Account not found", method, endpoint)
	case errors.Is(err, service.ErrInsufficientFunds):
		h.respondError(w, http.StatusUnprocessableEntity, "Insufficient funds", method, endpoint)
	case errors.Is(err, service.ErrInvalidAmount):
		h.respondError(w, http.StatusUnprocessableEntity, "Invalid amount", method, endpoint)
	case errors.Is(err, currency.ErrUnknownCurrency):
		h.respondError(w, http.StatusUnprocessableEntity, "Unsupported currency", method, endpoint)
	default:
		h.logger.Errorf("%s %s failed: %v", method, endpoint, err)
		h.respondError(w, http.StatusInternalServerError, "System error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
