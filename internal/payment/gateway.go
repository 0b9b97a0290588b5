package payment

import (
	"bytes"         // Request bodies
	"context"       // Request contexts
	"encoding/json" // Wire format
	"errors"        // Error matching
	"fmt"           // Error formatting
	"io"            // Response bodies
	"net/http"      // Gateway transport
	"strings"       // URL joining
	"time"          // Call timeout

	"kiosk_system/internal/domain" // Cart lines
)

// Paths of the payment API
const (
	ReadyPath   = "/api/payments/ready"
	ApprovePath = "/api/payments/approve"
)

// DefaultTimeout bounds each gateway round trip
const DefaultTimeout = 30 * time.Second

// ReadyRequest is the body of POST /api/payments/ready
type ReadyRequest struct {
	CartItems      []domain.CartItem `json:"cartItems"`        // Frozen cart lines
	TotalAmount    int64             `json:"totalAmount"`      // Positive total in minor units
	PartnerOrderID string            `json:"partner_order_id"` // Our order id
}

// ReadyResponse carries the gateway transaction id and the payment page
type ReadyResponse struct {
	TID         string `json:"tid"`                  // Gateway transaction id
	RedirectURL string `json:"next_redirect_pc_url"` // Payment page
}

// ApproveRequest is the body of POST /api/payments/approve
type ApproveRequest struct {
	TID            string `json:"tid"`              // From ready
	PGToken        string `json:"pg_token"`         // From the return url
	PartnerOrderID string `json:"partner_order_id"` // From ready
}

// Gateway is the two-phase payment API
type Gateway interface {
	Ready(ctx context.Context, req ReadyRequest) (*ReadyResponse, error)
	Approve(ctx context.Context, req ApproveRequest) (json.RawMessage, error)
}

// HTTPGateway talks JSON to the payment API
type HTTPGateway struct {
	baseURL string        // Payment API root, no trailing slash
	client  *http.Client  // Shared transport
	timeout time.Duration // Per call
}

// NewHTTPGateway creates a client for baseURL. A zero timeout uses DefaultTimeout.
func NewHTTPGateway(baseURL string, client *http.Client, timeout time.Duration) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPGateway{baseURL: strings.TrimRight(baseURL, "/"), client: client, timeout: timeout}
}

// Ready opens a gateway transaction
func (g *HTTPGateway) Ready(ctx context.Context, req ReadyRequest) (*ReadyResponse, error) {
	var resp ReadyResponse
	if err := g.post(ctx, ReadyPath, req, &resp); err != nil {
		return nil, err
	}
	if resp.TID == "" || resp.RedirectURL == "" {
		return nil, errors.New("gateway ready response missing tid or redirect url")
	}
	return &resp, nil
}

// Approve returns the gateway's approval payload untouched
func (g *HTTPGateway) Approve(ctx context.Context, req ApproveRequest) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := g.post(ctx, ApprovePath, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeGatewayError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeGatewayError(status int, data []byte) error {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	gerr := &GatewayError{StatusCode: status}
	if err := json.Unmarshal(data, &body); err != nil {
		gerr.Message = strings.TrimSpace(string(data))
		return gerr
	}
	gerr.Message = body.Message
	if len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil {
			gerr.Detail = s
		} else {
			gerr.Detail = string(body.Error)
		}
	}
	return gerr
}
