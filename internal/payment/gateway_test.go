package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kiosk_system/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGatewayReadyContract(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ReadyPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"tid":"T1","next_redirect_pc_url":"https://pg/pay"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL+"/", srv.Client(), time.Second)
	resp, err := gw.Ready(context.Background(), ReadyRequest{
		CartItems:      []domain.CartItem{{ItemID: "latte", Name: "Latte", UnitPrice: 4500, Quantity: 1}},
		TotalAmount:    4500,
		PartnerOrderID: "order_123",
	})
	require.NoError(t, err)
	assert.Equal(t, "T1", resp.TID)
	assert.Equal(t, "https://pg/pay", resp.RedirectURL)

	assert.Equal(t, "order_123", got["partner_order_id"])
	assert.Equal(t, float64(4500), got["totalAmount"])
	items := got["cartItems"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Latte", items[0].(map[string]any)["name"])
}

func TestHTTPGatewayApproveContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ApprovePath, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"tid": "T1", "pg_token": "PGTOK", "partner_order_id": "order_123"}, body)
		_, _ = w.Write([]byte(`{"aid":"A1","amount":{"total":4500}}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, nil, time.Second)
	raw, err := gw.Approve(context.Background(), ApproveRequest{TID: "T1", PGToken: "PGTOK", PartnerOrderID: "order_123"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"aid":"A1","amount":{"total":4500}}`, string(raw))
}

func TestHTTPGatewayErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"approve failed","error":{"code":-780}}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, nil, time.Second)
	_, err := gw.Approve(context.Background(), ApproveRequest{TID: "T1"})
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 500, gerr.StatusCode)
	assert.Equal(t, "approve failed", gerr.Message)
	assert.JSONEq(t, `{"code":-780}`, gerr.Detail)
}

func TestHTTPGatewayRejectsIncompleteReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tid":""}`))
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, nil, time.Second).Ready(context.Background(), ReadyRequest{})
	assert.Error(t, err)
}

func TestHTTPGatewayTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	gw := NewHTTPGateway(srv.URL, nil, 50*time.Millisecond)
	_, err := gw.Approve(context.Background(), ApproveRequest{TID: "T1"})
	assert.ErrorIs(t, err, ErrTimeout)
}
