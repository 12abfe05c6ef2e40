package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Fi44er/casino_ledger/internal/ledgertest"
	"github.com/Fi44er/casino_ledger/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *ledgertest.Fixture, *protocol.Signer) {
	fx := ledgertest.New(t)
	signer := protocol.NewSigner("api-secret")
	dispatcher := protocol.NewDispatcher(fx.Service, signer, fx.Service.Notifier(), fx.Logger)
	srv := httptest.NewServer(NewRouter(NewHandler(dispatcher, fx.Service, fx.Logger)))
	t.Cleanup(srv.Close)
	return srv, fx, signer
}

func post(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var sb strings.Builder
	_, err = io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	return resp, sb.String()
}

func TestCallbackRoundTrip(t *testing.T) {
	srv, fx, signer := newServer(t)
	fx.Account(t, 1, "RUB", "1000", "0")

	signed, err := signer.Sign(protocol.Fields{}.
		MustSet("type", "debit").
		MustSet("userid", "1").
		MustSet("amount", 300).
		MustSet("tid", "t1"))
	require.NoError(t, err)
	body, err := signed.MarshalJSON()
	require.NoError(t, err)

	resp, out := post(t, srv.URL+"/callback", string(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	fields, err := protocol.ParseFields([]byte(out))
	require.NoError(t, err)
	require.NoError(t, signer.Verify(fields))
	balance, _ := fields.GetString("balance")
	assert.Equal(t, "700.00", balance)
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, out := post(t, srv.URL+"/callback", `{"type":"ping","hmac":"deadbeef"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"HMAC_MISMATCH"}`, out)
}

func TestAccountEndpoints(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, _ := post(t, srv.URL+"/api/v1/accounts", `{"user_id":9,"currency":"RUB"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, out := post(t, srv.URL+"/api/v1/accounts/9/deposits", `{"amount":"500"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"user_id":9,"balance":"500"}`, out)

	resp, _ = post(t, srv.URL+"/api/v1/accounts/9/withdrawals", `{"amount":"600"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, out = post(t, srv.URL+"/api/v1/accounts/9/withdrawals", `{"amount":"200"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"user_id":9,"balance":"300"}`, out)

	get, err := http.Get(srv.URL + "/api/v1/accounts/9/balance?currency=USD")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)

	unknown, err := http.Get(srv.URL + "/api/v1/accounts/9/balance?currency=XYZ")
	require.NoError(t, err)
	defer unknown.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, unknown.StatusCode)

	missing, err := http.Get(srv.URL + "/api/v1/accounts/10/balance")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := newServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
