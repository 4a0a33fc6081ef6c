package paystackhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/integrations/gateway"
	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClient_Initialize_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ref-1", body["reference"])
		require.Equal(t, "10500", body["amount"])
		require.Equal(t, "NGN", body["currency"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "status": true,
  "message": "Authorization URL created",
  "data": {"authorization_url": "https://checkout.paystack.com/abc", "access_code": "abc", "reference": "ref-1"}
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "sk_test")
	res, err := c.Initialize(context.Background(), gateway.InitializeInput{
		Reference:   "ref-1",
		AmountMinor: 10500,
		Currency:    "NGN",
		Email:       "ada@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	require.Equal(t, "abc", res.AccessCode)
}

func TestClient_Verify_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/transaction/verify/ref-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "status": true,
  "message": "Verification successful",
  "data": {"id": 4099260516, "status": "success", "reference": "ref-1", "gateway_response": "Successful", "paid_at": "2026-01-01T10:00:00Z"}
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "sk_test")
	res, err := c.Verify(context.Background(), "ref-1")
	require.NoError(t, err)
	require.Equal(t, gateway.StatusSuccess, res.Status)
	require.NotNil(t, res.TransactionID)
	require.Equal(t, "4099260516", *res.TransactionID)
	require.NotNil(t, res.PaidAt)
	require.WithinDuration(t, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), *res.PaidAt, time.Second)
}

func TestClient_Verify_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "sk_test")
	_, err := c.Verify(context.Background(), "ref-1")
	require.ErrorIs(t, err, models.ErrExternal)
}

func TestNormalizeStatus(t *testing.T) {
	require.Equal(t, gateway.StatusSuccess, normalizeStatus("success"))
	require.Equal(t, gateway.StatusFailed, normalizeStatus("reversed"))
	require.Equal(t, gateway.StatusAbandoned, normalizeStatus("abandoned"))
	require.Equal(t, gateway.StatusPending, normalizeStatus("ongoing"))
	require.Equal(t, gateway.StatusPending, normalizeStatus("something-new"))
}
