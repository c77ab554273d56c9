// Package httpapi exposes the Sale Coordinator over HTTP: sale status,
// purchase attempts, per-user status, and a liveness probe.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flashsale/core/internal/logger"
	"github.com/flashsale/core/internal/redisx"
	"github.com/flashsale/core/internal/sale"
)

// Coordinator is the subset of *sale.Coordinator the HTTP layer calls.
// Kept narrow so handlers are testable against a fake.
type Coordinator interface {
	GetStatus() (sale.Status, error)
	AttemptPurchase(rawUserID string) (sale.PurchaseOutcome, error)
	GetUserStatus(rawUserID string) (sale.UserStatus, error)
	Reset() error
}

// Pinger checks whether a dependency is reachable.
type Pinger func() error

// Handler wires the Sale Coordinator to chi routes.
type Handler struct {
	Sale      Coordinator
	PingAS    Pinger
	PingAudit Pinger // may be nil if the audit trail is disabled
}

// NewHandler builds a Handler.
func NewHandler(sc Coordinator, pingAS, pingAudit Pinger) *Handler {
	return &Handler{Sale: sc, PingAS: pingAS, PingAudit: pingAudit}
}

// Status handles GET /api/sale/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), "httpapi")

	st, err := h.Sale.GetStatus()
	if err != nil {
		log.Error("status | atomic store unavailable", "error", err)
		writeError(w, r, http.StatusInternalServerError, "the sale status is temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		State:          string(st.State),
		StartsAt:       st.StartsAt,
		EndsAt:         st.EndsAt,
		RemainingStock: st.RemainingStock,
		TotalStock:     st.TotalStock,
		ProductName:    st.ProductName,
		ProductPrice:   st.ProductPrice,
		ServerTime:     st.ServerTime,
	})
}

// Purchase handles POST /api/sale/purchase.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), "httpapi")

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "request body must be valid JSON")
		return
	}

	outcome, err := h.Sale.AttemptPurchase(req.UserID)
	if err != nil {
		if errors.Is(err, redisx.ErrUnavailable) {
			log.Error("purchase | atomic store unavailable", "error", err)
			writeError(w, r, http.StatusServiceUnavailable, "the purchase system is temporarily unavailable, please retry")
			return
		}
		log.Error("purchase | protocol violation", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := PurchaseResponse{
		Result:      outcome.Result.String(),
		Message:     outcome.Message,
		PurchasedAt: outcome.PurchasedAt,
	}

	switch outcome.Result {
	case sale.Success:
		log.Info("purchase | success", "user_id", req.UserID)
		writeJSON(w, http.StatusOK, resp)
	case sale.InvalidUserID:
		writeJSON(w, http.StatusBadRequest, resp)
	case sale.SaleNotActive:
		writeJSON(w, http.StatusForbidden, resp)
	case sale.AlreadyPurchased, sale.OutOfStock:
		writeJSON(w, http.StatusConflict, resp)
	default:
		log.Error("purchase | unknown result code", "result", int(outcome.Result))
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// UserStatus handles GET /api/sale/purchase/{userId}.
func (h *Handler) UserStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), "httpapi")

	userID := chi.URLParam(r, "userId")
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user id must not be empty")
		return
	}

	st, err := h.Sale.GetUserStatus(userID)
	if err != nil {
		log.Error("user_status | atomic store unavailable", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, UserStatusResponse{
		HasPurchased: st.HasPurchased,
		PurchasedAt:  st.PurchasedAt,
	})
}

// Reset handles POST /api/sale/reset. Test/staging only — operators must not
// wire this route in a production deployment.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), "httpapi")

	if err := h.Sale.Reset(); err != nil {
		log.Error("reset | failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{}

	services["atomic_store"] = pingStatus(h.PingAS)
	if h.PingAudit != nil {
		services["audit_store"] = pingStatus(h.PingAudit)
	}

	status := "healthy"
	code := http.StatusOK
	for _, s := range services {
		if s != "healthy" {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, code, HealthResponse{Status: status, Services: services})
}

func pingStatus(p Pinger) string {
	if p == nil {
		return "healthy"
	}
	if err := p(); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID, _ := r.Context().Value(logger.RequestIDKey).(string)
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
