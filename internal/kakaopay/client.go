// Package kakaopay proxies the kiosk's payment API onto the KakaoPay
// single-payment endpoints.
package kakaopay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the KakaoPay API host
const DefaultBaseURL = "https://kapi.kakao.com"

// TestCID is KakaoPay's shared test merchant id
const TestCID = "TC0ONETIME"

// maxItemName is the longest item_name KakaoPay accepts
const maxItemName = 100

// Config holds merchant settings
type Config struct {
	BaseURL   string        // API host, DefaultBaseURL when empty
	AdminKey  string        // Sent as "KakaoAK <key>"
	CID       string        // Merchant id, TestCID when empty
	PublicURL string        // Base of the approval/cancel/fail return paths
	PartnerID string        // partner_user_id
	Timeout   time.Duration // Per-request timeout
}

// Client calls KakaoPay with form-encoded requests
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a client
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CID == "" {
		cfg.CID = TestCID
	}
	if cfg.PartnerID == "" {
		cfg.PartnerID = "partner_user_id"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Client{cfg: cfg, http: httpClient}
}

// ReadyParams are the order facts KakaoPay needs to open a payment
type ReadyParams struct {
	PartnerOrderID string
	ItemName       string
	Quantity       int
	TotalAmount    int64
}

// ReadyResult is the subset of the KakaoPay ready answer the kiosk uses
type ReadyResult struct {
	TID               string `json:"tid"`
	NextRedirectPCURL string `json:"next_redirect_pc_url"`
}

// APIError is a non-2xx KakaoPay answer; Body is the raw JSON error
type APIError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kakaopay returned %d: %s", e.StatusCode, string(e.Body))
}

// Ready calls /v1/payment/ready
func (c *Client) Ready(ctx context.Context, p ReadyParams) (*ReadyResult, error) {
	form := url.Values{}
	form.Set("cid", c.cfg.CID)
	form.Set("partner_order_id", p.PartnerOrderID)
	form.Set("partner_user_id", c.cfg.PartnerID)
	form.Set("item_name", p.ItemName)
	form.Set("quantity", strconv.Itoa(p.Quantity))
	form.Set("total_amount", strconv.FormatInt(p.TotalAmount, 10))
	form.Set("vat_amount", "0")
	form.Set("tax_free_amount", "0")
	form.Set("approval_url", c.cfg.PublicURL+"/payments/success")
	form.Set("cancel_url", c.cfg.PublicURL+"/payments/cancel")
	form.Set("fail_url", c.cfg.PublicURL+"/payments/fail")

	raw, err := c.post(ctx, "/v1/payment/ready", form)
	if err != nil {
		return nil, err
	}
	var res ReadyResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode ready response: %w", err)
	}
	return &res, nil
}

// Approve calls /v1/payment/approve and returns KakaoPay's payload untouched
func (c *Client) Approve(ctx context.Context, tid, partnerOrderID, pgToken string) (json.RawMessage, error) {
	form := url.Values{}
	form.Set("cid", c.cfg.CID)
	form.Set("tid", tid)
	form.Set("partner_order_id", partnerOrderID)
	form.Set("partner_user_id", c.cfg.PartnerID)
	form.Set("pg_token", pgToken)
	return c.post(ctx, "/v1/payment/approve", form)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "KakaoAK "+c.cfg.AdminKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: asJSON(body)}
	}
	return json.RawMessage(body), nil
}

func asJSON(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return json.RawMessage(quoted)
}

// ItemName joins the item names with ", " and cuts at maxItemName characters
func ItemName(names []string) string {
	joined := strings.Join(names, ", ")
	r := []rune(joined)
	if len(r) > maxItemName {
		return string(r[:maxItemName])
	}
	return joined
}
