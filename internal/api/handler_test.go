package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"intentLedger/internal/balance"
	"intentLedger/internal/contracts"
	"intentLedger/internal/contracts/contractstest"
	"intentLedger/internal/intent"
	"intentLedger/internal/model"
)

func newTestRouter(t *testing.T) (http.Handler, *contractstest.Sim, *contractstest.Wallet) {
	t.Helper()
	sim := contractstest.New(common.HexToAddress("0xaa"))
	w := contractstest.NewWallet(sim)
	ledger, err := contracts.NewLedger(sim, sim.Contracts)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	h := NewHandler(balance.NewView(ledger, nil), ledger, 6, reg, nil)
	return NewRouter(h, reg), sim, w
}

func TestGetBalance(t *testing.T) {
	router, sim, w := newTestRouter(t)
	sim.Credit(w.Address(), 1_500_000, 250_000)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/"+w.Address().Hex()+"/balance", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "1500000", got.Available)
	require.Equal(t, "1.5", got.AvailableUnits)
	require.Equal(t, "0.25", got.LockedUnits)
	require.Equal(t, "1750000", got.Total)
}

func TestGetBalanceRejectsBadAddress(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/not-an-address/balance", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListIntents(t *testing.T) {
	router, sim, w := newTestRouter(t)
	sim.Credit(w.Address(), 100, 0)

	ledger, err := contracts.NewLedger(sim, sim.Contracts)
	require.NoError(t, err)
	meta, err := intent.EncodeMetadata(model.OrderMetadata{
		Symbol: "ETH-20241108-2800C", OptionType: "CALL",
		Quantity: big.NewInt(1), Price: big.NewInt(2), Expiry: big.NewInt(3),
	})
	require.NoError(t, err)
	call, err := ledger.SubmitIntentCall(big.NewInt(40), "BUY", meta, 0)
	require.NoError(t, err)
	_, err = w.SendTransaction(context.Background(), call)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/"+w.Address().Hex()+"/intents", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []intentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, model.IntentSubmitted, got[0].State)
	require.Equal(t, "0.00004", got[0].AmountUnits)
	require.NotNil(t, got[0].Decoded)
	require.Equal(t, "CALL", got[0].Decoded.OptionType)
}

func TestHealthAndMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts/0x01/balance", nil))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "intentctl_http_requests_total")
}
