package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kiosk_system/internal/cart"
	"kiosk_system/internal/domain"
	"kiosk_system/internal/identity"
	"kiosk_system/internal/localstore"
	"kiosk_system/internal/menu"
	"kiosk_system/internal/middleware"
	"kiosk_system/internal/payment"
	"kiosk_system/internal/presence"
	"kiosk_system/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// MockProvider implements identity.Provider over a fixed account list
type MockProvider struct {
	Accounts map[string]domain.Identity
	Missing  map[string]bool
}

func (m *MockProvider) Login(_ context.Context, creds identity.Credentials) (*domain.Identity, error) {
	if m.Missing[creds.Email] {
		return nil, identity.ErrIdentityNotFound
	}
	id, ok := m.Accounts[creds.Email]
	if !ok || creds.Password != "password" {
		return nil, identity.ErrInvalidCredentials
	}
	return &id, nil
}

// MockRegistrar implements Registrar
type MockRegistrar struct {
	RegisterFunc func(ctx context.Context, reg identity.Registration) (*domain.Identity, error)
}

func (m *MockRegistrar) Register(ctx context.Context, reg identity.Registration) (*domain.Identity, error) {
	return m.RegisterFunc(ctx, reg)
}

// MockGateway implements payment.Gateway
type MockGateway struct {
	mu       sync.Mutex
	approved int32
	orders   []payment.ReadyRequest
}

func (g *MockGateway) Ready(_ context.Context, req payment.ReadyRequest) (*payment.ReadyResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, req)
	return &payment.ReadyResponse{TID: "T-" + req.PartnerOrderID, RedirectURL: "https://gateway.test/pay/" + req.PartnerOrderID}, nil
}

func (g *MockGateway) Approve(_ context.Context, req payment.ApproveRequest) (json.RawMessage, error) {
	atomic.AddInt32(&g.approved, 1)
	return json.RawMessage(`{"tid":"` + req.TID + `"}`), nil
}

// fakeMenus is an in-memory MenuStore
type fakeMenus struct {
	mu    sync.Mutex
	menus map[string]*domain.Menu
}

func (f *fakeMenus) GetMenu(_ context.Context, storeID string) (*domain.Menu, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.menus[storeID]
	if !ok {
		return nil, menu.ErrNotFound
	}
	return m, nil
}

func (f *fakeMenus) InitDefault(_ context.Context, storeID string) (*domain.Menu, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.menus[storeID]; !ok {
		m := menu.DefaultMenu(storeID)
		f.menus[storeID] = &m
	}
	return f.menus[storeID], nil
}

type harness struct {
	t        *testing.T
	src      *presence.MemorySource
	store    *localstore.Memory
	gateway  *MockGateway
	menus    *fakeMenus
	provider *MockProvider
	registry *session.Registry
	router   *gin.Engine
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:       t,
		src:     presence.NewMemorySource(),
		store:   localstore.NewMemory(),
		gateway: &MockGateway{},
		menus: &fakeMenus{menus: map[string]*domain.Menu{
			"A": {
				StoreID:    "A",
				Title:      "Cafe A",
				Categories: []string{"Coffee", "Tea"},
				Items: []domain.MenuItem{
					{ID: "latte", Category: "Coffee", Name: "Latte", Price: 4500, Options: map[string][]string{"size": {"S", "L"}}},
					{ID: "mocha", Category: "Coffee", Name: "Mocha", Price: 5000},
					{ID: "earl", Category: "Tea", Name: "Earl Grey", Price: 3000},
				},
			},
			"B": {StoreID: "B", Title: "Cafe B", Categories: []string{"Coffee"}, Items: []domain.MenuItem{
				{ID: "latte", Category: "Coffee", Name: "Latte", Price: 4000},
			}},
		}},
		provider: &MockProvider{
			Accounts: map[string]domain.Identity{
				"guest@kiosk.kr": {Email: "guest@kiosk.kr"},
				"owner@kiosk.kr": {Email: "owner@kiosk.kr", IsAdmin: true, StoreID: strPtr("store-a")},
				"admin@kiosk.kr": {Email: "admin@kiosk.kr", IsAdmin: true, StoreID: strPtr("C")},
			},
			Missing: map[string]bool{"ghost@kiosk.kr": true},
		},
	}
	h.build()
	t.Cleanup(func() { h.registry.Shutdown() })
	return h
}

func strPtr(s string) *string { return &s }

// build wires a fresh registry and handshake over the same durable store, like a process restart
func (h *harness) build() {
	hs := payment.NewHandshake(h.gateway, h.store)
	h.registry = session.NewRegistry(session.Config{
		Provider:   h.provider,
		Presence:   h.src,
		Identities: h.store,
		Payments:   hs,
	})
	h.router = gin.New()
	RegisterRoutes(h.router, Deps{
		Registrar: &MockRegistrar{RegisterFunc: func(_ context.Context, reg identity.Registration) (*domain.Identity, error) {
			if reg.Email == "taken@kiosk.kr" {
				return nil, identity.ErrEmailTaken
			}
			return &domain.Identity{Email: reg.Email, IsAdmin: reg.IsAdmin, StoreID: reg.StoreID}, nil
		}},
		Sessions:  h.registry,
		Menus:     h.menus,
		Payments:  hs,
		JWTSecret: testSecret,
		TokenTTL:  time.Hour,
	})
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) login(email string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/session", "", identity.Credentials{Email: email, Password: "password"})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var resp LoginResponse
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(h.t, resp.Token)
	return resp.Token
}

func (h *harness) view(token string) session.View {
	h.t.Helper()
	w := h.do(http.MethodGet, "/session", token, nil)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var v session.View
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (h *harness) waitState(token, state, signal string) {
	h.t.Helper()
	assert.Eventually(h.t, func() bool {
		v := h.view(token)
		return v.State == state && v.Signal == signal
	}, 2*time.Second, 10*time.Millisecond)
}

func (h *harness) assign(email, token, signal string) {
	h.t.Helper()
	h.src.Set(email, signal)
	h.waitState(token, "assigned", signal)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/user", "", gin.H{"email": "new@kiosk.kr", "password": "secret1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodPost, "/user", "", gin.H{"email": "taken@kiosk.kr", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/user", "", gin.H{"email": "not-an-email", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/session", "", identity.Credentials{Email: "guest@kiosk.kr", Password: "password"})
	require.Equal(t, http.StatusOK, w.Code)
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	// The cookie alone authenticates the gateway's redirect back
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = h.do(http.MethodPost, "/session", "", identity.Credentials{Email: "guest@kiosk.kr", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/session", "", identity.Credentials{Email: "ghost@kiosk.kr", Password: "password"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, 1, h.registry.Len())
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/session", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/cart", "garbage", nil).Code)
}

func TestLoginWatchesUntilAssigned(t *testing.T) {
	h := newHarness(t)
	token := h.login("guest@kiosk.kr")
	h.waitState(token, "watching", "")

	assert.Equal(t, http.StatusConflict, h.do(http.MethodGet, "/kiosk/menu", token, nil).Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "latte"}).Code)

	h.assign("guest@kiosk.kr", token, "A")
	w := h.do(http.MethodGet, "/kiosk/menu?category=Tea", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[MenuResponse](t, w)
	assert.Equal(t, "Cafe A", resp.Title)
	require.Len(t, resp.Page.Items, 1)
	assert.Equal(t, "earl", resp.Page.Items[0].ID)
}

func TestCartOperations(t *testing.T) {
	h := newHarness(t)
	token := h.login("guest@kiosk.kr")
	h.assign("guest@kiosk.kr", token, "A")

	large := domain.Options{"size": "L"}
	h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "latte", Options: large})
	h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "latte", Options: large})
	w := h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "mocha"})
	require.Equal(t, http.StatusCreated, w.Code)

	order := decode[domain.OrderDetails](t, w)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, int64(2*4500+5000), order.TotalAmount)

	w = h.do(http.MethodPatch, "/cart/items/0", token, QuantityRequest{Delta: -5})
	require.Equal(t, http.StatusOK, w.Code)
	order = decode[domain.OrderDetails](t, w)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "mocha", order.Items[0].ItemID)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/cart/items/7", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodDelete, "/cart/items/x", token, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "nope"}).Code)

	w = h.do(http.MethodDelete, "/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[domain.OrderDetails](t, w).Items)
}

func TestCartQuantityLimit(t *testing.T) {
	h := newHarness(t)
	token := h.login("guest@kiosk.kr")
	h.assign("guest@kiosk.kr", token, "A")
	h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "latte"})

	for _, delta := range []int{math.MaxInt / 4000, math.MaxInt, cart.MaxQuantity} {
		w := h.do(http.MethodPatch, "/cart/items/0", token, QuantityRequest{Delta: delta})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, delta)
	}

	v := h.view(token)
	require.Len(t, v.Cart, 1)
	assert.Equal(t, 1, v.Cart[0].Quantity)
	assert.Equal(t, int64(4500), v.Total)
}

func TestStoreSwitchClearsCart(t *testing.T) {
	h := newHarness(t)
	token := h.login("guest@kiosk.kr")
	h.assign("guest@kiosk.kr", token, "A")
	h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "latte"})

	// Same signal again keeps the cart
	h.src.Set("guest@kiosk.kr", "A")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.view(token).Cart, 1)

	h.assign("guest@kiosk.kr", token, "B")
	assert.Empty(t, h.view(token).Cart)

	h.src.Set("guest@kiosk.kr", "0")
	h.waitState(token, "watching", "")
}

func TestAdminModeGating(t *testing.T) {
	h := newHarness(t)

	guest := h.login("guest@kiosk.kr")
	h.assign("guest@kiosk.kr", guest, "A")
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/admin-mode", guest, nil).Code)

	// Admin of another store
	other := h.login("admin@kiosk.kr")
	h.assign("admin@kiosk.kr", other, "A")
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/admin-mode", other, nil).Code)

	owner := h.login("owner@kiosk.kr")
	h.assign("owner@kiosk.kr", owner, "store-a")
	assert.True(t, h.view(owner).CanToggleAdmin)

	// No menu yet, only admin mode may create one
	w := h.do(http.MethodGet, "/kiosk/menu", owner, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Menu not found","canInitialize":false}`, w.Body.String())
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/kiosk/menu", owner, nil).Code)

	w = h.do(http.MethodPost, "/admin-mode", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"adminMode":true}`, w.Body.String())

	w = h.do(http.MethodGet, "/kiosk/menu", owner, nil)
	assert.JSONEq(t, `{"error":"Menu not found","canInitialize":true}`, w.Body.String())
	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/kiosk/menu", owner, nil).Code)

	w = h.do(http.MethodGet, "/kiosk/menu", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Cafe Menu", decode[MenuResponse](t, w).Title)

	// Leaving the store drops admin mode
	h.assign("owner@kiosk.kr", owner, "A")
	assert.False(t, h.view(owner).AdminMode)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/kiosk/menu", owner, nil).Code)
}

func TestPaymentRoundTrip(t *testing.T) {
	h := newHarness(t)
	token := h.login("guest@kiosk.kr")
	h.assign("guest@kiosk.kr", token, "A")

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/checkout", token, nil).Code)

	h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "latte"})
	w := h.do(http.MethodPost, "/checkout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	checkout := decode[CheckoutResponse](t, w)
	assert.Equal(t, "https://gateway.test/pay/"+checkout.PartnerOrderID, checkout.RedirectURL)
	assert.Equal(t, int64(4500), checkout.TotalAmount)

	// A second checkout while the first is in flight is refused, the cart is frozen
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/checkout", token, nil).Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "mocha"}).Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodDelete, "/cart", token, nil).Code)

	w = h.do(http.MethodGet, "/payments/success?pg_token=pg-1", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[struct {
		Receipt domain.Receipt `json:"receipt"`
	}](t, w).Receipt
	assert.Len(t, first.Number, 8)
	assert.Equal(t, checkout.PartnerOrderID, first.PartnerOrderID)

	// Reloading the success page shows the same receipt without approving again
	w = h.do(http.MethodGet, "/payments/success?pg_token=pg-1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[struct {
		Receipt domain.Receipt `json:"receipt"`
	}](t, w).Receipt
	assert.Equal(t, first.Number, again.Number)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.gateway.approved))

	w = h.do(http.MethodGet, "/receipt", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "mocha"}).Code)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/receipt/ack", token, nil).Code)
	assert.Empty(t, h.view(token).Cart)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/receipt", token, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/receipt/ack", token, nil).Code)
}

func TestPaymentCancelNeverApproves(t *testing.T) {
	h := newHarness(t)
	token := h.login("guest@kiosk.kr")
	h.assign("guest@kiosk.kr", token, "A")
	h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "mocha"})
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/checkout", token, nil).Code)

	w := h.do(http.MethodGet, "/payments/cancel", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"cancelled"}`, w.Body.String())

	w = h.do(http.MethodGet, "/payments/status", token, nil)
	assert.JSONEq(t, `{"pending":null,"receipt":null}`, w.Body.String())

	// Landing on success afterwards finds nothing to approve
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/payments/success?pg_token=pg-1", token, nil).Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&h.gateway.approved))

	// The cart survives, is editable again and can be checked out again
	assert.Len(t, h.view(token).Cart, 1)
	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "mocha"}).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/checkout", token, nil).Code)
}

func TestPaymentSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	token := h.login("guest@kiosk.kr")
	h.assign("guest@kiosk.kr", token, "A")
	h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "latte"})
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/checkout", token, nil).Code)

	h.registry.Shutdown()
	h.build()

	w := h.do(http.MethodGet, "/payments/success?pg_token=pg-1", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.gateway.approved))

	// The restored session resubscribed and is back in its store
	h.waitState(token, "assigned", "A")
}

func TestReloginRetiresEarlierToken(t *testing.T) {
	h := newHarness(t)
	first := h.login("guest@kiosk.kr")
	second := h.login("guest@kiosk.kr")

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/session", first, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/session", second, nil).Code)
	assert.Equal(t, 1, h.registry.Len())
	assert.Equal(t, 1, h.src.Subscribers("guest@kiosk.kr"))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	token := h.login("guest@kiosk.kr")
	h.assign("guest@kiosk.kr", token, "A")
	h.do(http.MethodPost, "/cart/items", token, AddItemRequest{ItemID: "latte"})
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/checkout", token, nil).Code)
	sid := h.view(token).SessionID

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/session", token, nil).Code)
	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/session", token, nil).Code)

	pending, err := h.store.LoadPending(context.Background(), sid)
	require.NoError(t, err)
	assert.Nil(t, pending)
	id, err := h.store.LoadIdentity(context.Background(), sid)
	require.NoError(t, err)
	assert.Nil(t, id)

	// Logging out twice is harmless
	assert.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/session", token, nil).Code)
}
