package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"intentLedger/internal/balance"
	"intentLedger/internal/intent"
	"intentLedger/internal/model"
)

// Balances refreshes ledger balances.
type Balances interface {
	Refresh(ctx context.Context, account common.Address) (model.Balance, error)
}

type Handler struct {
	balances Balances
	intents  intent.Reader
	decimals uint8
	logger   *zap.Logger

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewHandler registers its request metrics on reg.
func NewHandler(balances Balances, intents intent.Reader, decimals uint8, reg prometheus.Registerer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	return &Handler{
		balances: balances,
		intents:  intents,
		decimals: decimals,
		logger:   logger,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intentctl_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intentctl_http_request_duration_seconds",
			Help:    "Request latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "endpoint"}),
	}
}

// NewRouter wires the read API, health check and metrics endpoint.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts/{address}/balance", h.GetBalance).Methods("GET")
	apiV1.HandleFunc("/accounts/{address}/intents", h.ListIntents).Methods("GET")
	return r
}

type balanceResponse struct {
	Account        string    `json:"account"`
	Available      string    `json:"available"`
	Locked         string    `json:"locked"`
	Total          string    `json:"total"`
	AvailableUnits string    `json:"available_units"`
	LockedUnits    string    `json:"locked_units"`
	RefreshedAt    time.Time `json:"refreshed_at"`
}

type intentResponse struct {
	Index       uint64            `json:"index"`
	Amount      string            `json:"amount"`
	AmountUnits string            `json:"amount_units"`
	IntentType  string            `json:"intent_type"`
	State       model.IntentState `json:"state"`
	Timestamp   uint64            `json:"timestamp"`
	Metadata    string            `json:"metadata"`
	Decoded     *metadataResponse `json:"decoded,omitempty"`
	DecodeError string            `json:"decode_error,omitempty"`
}

type metadataResponse struct {
	Symbol     string `json:"symbol"`
	OptionType string `json:"option_type"`
	Quantity   string `json:"quantity"`
	Price      string `json:"price"`
	Expiry     string `json:"expiry"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{address}/balance"
	timer := prometheus.NewTimer(h.latency.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	account, ok := h.account(w, r, endpoint)
	if !ok {
		return
	}
	b, err := h.balances.Refresh(r.Context(), account)
	if err != nil {
		h.logger.Warn("balance read failed", zap.String("account", account.Hex()), zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "balance unavailable", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, balanceResponse{
		Account:        b.Account.Hex(),
		Available:      b.Available.String(),
		Locked:         b.Locked.String(),
		Total:          b.Total().String(),
		AvailableUnits: balance.FormatUnits(b.Available, h.decimals),
		LockedUnits:    balance.FormatUnits(b.Locked, h.decimals),
		RefreshedAt:    b.RefreshedAt,
	}, "GET", endpoint)
}

func (h *Handler) ListIntents(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{address}/intents"
	timer := prometheus.NewTimer(h.latency.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	account, ok := h.account(w, r, endpoint)
	if !ok {
		return
	}
	listed, err := intent.ListIntents(r.Context(), h.intents, account)
	if err != nil {
		h.logger.Warn("intent read failed", zap.String("account", account.Hex()), zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "intents unavailable", "GET", endpoint)
		return
	}

	out := make([]intentResponse, 0, len(listed))
	for _, in := range listed {
		resp := intentResponse{
			Index:       in.Index,
			Amount:      in.Amount.String(),
			AmountUnits: balance.FormatUnits(in.Amount, h.decimals),
			IntentType:  in.IntentType,
			State:       in.State,
			Timestamp:   in.Timestamp,
			Metadata:    "0x" + common.Bytes2Hex(in.Metadata),
			DecodeError: in.DecodeError,
		}
		if in.Decoded != nil {
			resp.Decoded = &metadataResponse{
				Symbol:     in.Decoded.Symbol,
				OptionType: in.Decoded.OptionType,
				Quantity:   in.Decoded.Quantity.String(),
				Price:      in.Decoded.Price.String(),
				Expiry:     in.Decoded.Expiry.String(),
			}
		}
		out = append(out, resp)
	}
	h.respondJSON(w, http.StatusOK, out, "GET", endpoint)
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request, endpoint string) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		h.respondError(w, http.StatusBadRequest, "invalid address", "GET", endpoint)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	h.requests.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
