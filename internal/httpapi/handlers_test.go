package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashsale/core/internal/redisx"
	"github.com/flashsale/core/internal/sale"
)

type fakeCoordinator struct {
	status         sale.Status
	statusErr      error
	purchaseResult sale.PurchaseOutcome
	purchaseErr    error
	userStatus     sale.UserStatus
	userStatusErr  error
	resetErr       error
}

func (f *fakeCoordinator) GetStatus() (sale.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeCoordinator) AttemptPurchase(string) (sale.PurchaseOutcome, error) {
	return f.purchaseResult, f.purchaseErr
}

func (f *fakeCoordinator) GetUserStatus(string) (sale.UserStatus, error) {
	return f.userStatus, f.userStatusErr
}

func (f *fakeCoordinator) Reset() error {
	return f.resetErr
}

func testRouter(c Coordinator) *chi.Mux {
	h := NewHandler(c, func() error { return nil }, nil)
	return NewRouter(h, RouterConfig{
		CORSOrigin:      "*",
		RateLimitMax:    1000,
		RateLimitWindow: time.Second,
		ExposeReset:     true,
	})
}

func TestStatus_OK(t *testing.T) {
	c := &fakeCoordinator{status: sale.Status{State: sale.Active, RemainingStock: 3, TotalStock: 10}}
	router := testRouter(c)

	req := httptest.NewRequest(http.MethodGet, "/api/sale/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "active", resp.State)
	assert.Equal(t, 3, resp.RemainingStock)
}

func TestStatus_ASUnavailable(t *testing.T) {
	c := &fakeCoordinator{statusErr: errors.New("boom")}
	router := testRouter(c)

	req := httptest.NewRequest(http.MethodGet, "/api/sale/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPurchase_Success(t *testing.T) {
	now := time.Now()
	c := &fakeCoordinator{purchaseResult: sale.PurchaseOutcome{Result: sale.Success, PurchasedAt: &now, Message: "purchase successful"}}
	router := testRouter(c)

	body, _ := json.Marshal(PurchaseRequest{UserID: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/sale/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp PurchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Result)
}

func TestPurchase_InvalidUserID(t *testing.T) {
	c := &fakeCoordinator{purchaseResult: sale.PurchaseOutcome{Result: sale.InvalidUserID, Message: "user id must not be empty"}}
	router := testRouter(c)

	body, _ := json.Marshal(PurchaseRequest{UserID: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/sale/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchase_SaleNotActive(t *testing.T) {
	c := &fakeCoordinator{purchaseResult: sale.PurchaseOutcome{Result: sale.SaleNotActive, Message: "the sale has not started yet"}}
	router := testRouter(c)

	body, _ := json.Marshal(PurchaseRequest{UserID: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/sale/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPurchase_AlreadyPurchased(t *testing.T) {
	c := &fakeCoordinator{purchaseResult: sale.PurchaseOutcome{Result: sale.AlreadyPurchased, Message: "you have already purchased this item"}}
	router := testRouter(c)

	body, _ := json.Marshal(PurchaseRequest{UserID: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/sale/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPurchase_OutOfStock(t *testing.T) {
	c := &fakeCoordinator{purchaseResult: sale.PurchaseOutcome{Result: sale.OutOfStock, Message: "this item is sold out"}}
	router := testRouter(c)

	body, _ := json.Marshal(PurchaseRequest{UserID: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/sale/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPurchase_ASUnavailable(t *testing.T) {
	c := &fakeCoordinator{purchaseErr: redisx.ErrUnavailable}
	router := testRouter(c)

	body, _ := json.Marshal(PurchaseRequest{UserID: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/sale/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPurchase_MalformedBody(t *testing.T) {
	c := &fakeCoordinator{}
	router := testRouter(c)

	req := httptest.NewRequest(http.MethodPost, "/api/sale/purchase", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserStatus_NotPurchased(t *testing.T) {
	c := &fakeCoordinator{userStatus: sale.UserStatus{HasPurchased: false}}
	router := testRouter(c)

	req := httptest.NewRequest(http.MethodGet, "/api/sale/purchase/alice", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp UserStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.HasPurchased)
}

func TestHealthz_Healthy(t *testing.T) {
	h := NewHandler(&fakeCoordinator{}, func() error { return nil }, nil)
	router := NewRouter(h, RouterConfig{CORSOrigin: "*", RateLimitMax: 1000, RateLimitWindow: time.Second})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz_Degraded(t *testing.T) {
	h := NewHandler(&fakeCoordinator{}, func() error { return errors.New("down") }, nil)
	router := NewRouter(h, RouterConfig{CORSOrigin: "*", RateLimitMax: 1000, RateLimitWindow: time.Second})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReset_NotExposedByDefault(t *testing.T) {
	h := NewHandler(&fakeCoordinator{}, func() error { return nil }, nil)
	router := NewRouter(h, RouterConfig{CORSOrigin: "*", RateLimitMax: 1000, RateLimitWindow: time.Second, ExposeReset: false})

	req := httptest.NewRequest(http.MethodPost, "/api/sale/reset", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
