package httpapi

import "time"

// StatusResponse is the response body for GET /api/sale/status.
type StatusResponse struct {
	State          string    `json:"state"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	RemainingStock int       `json:"remaining_stock"`
	TotalStock     int       `json:"total_stock"`
	ProductName    string    `json:"product_name"`
	ProductPrice   float64   `json:"product_price"`
	ServerTime     time.Time `json:"server_time"`
}

// PurchaseRequest is the request body for POST /api/sale/purchase.
type PurchaseRequest struct {
	UserID string `json:"user_id"`
}

// PurchaseResponse is the response body for POST /api/sale/purchase.
type PurchaseResponse struct {
	Result      string     `json:"result"`
	Message     string     `json:"message"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
}

// UserStatusResponse is the response body for GET /api/sale/purchase/{userId}.
type UserStatusResponse struct {
	HasPurchased bool       `json:"has_purchased"`
	PurchasedAt  *time.Time `json:"purchased_at,omitempty"`
}

// ErrorResponse is the standardized error body for non-2xx responses.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse is the body for GET /healthz.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}
