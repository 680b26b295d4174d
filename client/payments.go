package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Item is one purchasable storefront entry. Price is in cents.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Popular     bool   `json:"popular,omitempty"`
}

// Purchase is one transaction record as reported by the server. Amounts
// are in cents.
type Purchase struct {
	ID             string     `json:"id"`
	ItemLabel      string     `json:"item_label"`
	OriginalAmount int64      `json:"original_amount"`
	Discount       int64      `json:"discount"`
	FinalAmount    int64      `json:"final_amount"`
	Status         string     `json:"status"`
	TxHash         string     `json:"tx_hash,omitempty"`
	BlockNumber    int64      `json:"block_number,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

// Summary is the merchant dashboard aggregate view. Amounts are in cents.
type Summary struct {
	TreasuryBalance int64 `json:"treasury_balance"`
	MerchantBalance int64 `json:"merchant_balance"`
	SalesCount      int   `json:"sales_count"`
	FeesSaved       int64 `json:"fees_saved"`
	AvgSettlementMS int64 `json:"avg_settlement_ms"`
}

// Client is the HTTP client for the cardflow payment service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new payment service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Catalog retrieves the storefront item list.
func (c *Client) Catalog(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/catalog", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Items []Item `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Items, nil
}

// Purchase buys a catalog item, starting a pipeline run on the server. The
// returned purchase reflects the accepted (not yet settled) state; follow
// the event stream or poll Get for the outcome.
func (c *Client) Purchase(ctx context.Context, itemID string) (*Purchase, error) {
	reqBody := map[string]interface{}{
		"item_id": itemID,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/purchases", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var purchase Purchase
	if err := json.NewDecoder(resp.Body).Decode(&purchase); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("purchase accepted", "record_id", purchase.ID, "item_id", itemID)
	return &purchase, nil
}

// Get retrieves one settled purchase by id.
func (c *Client) Get(ctx context.Context, id string) (*Purchase, error) {
	u := fmt.Sprintf("%s/api/v1/purchases/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var purchase Purchase
	if err := json.NewDecoder(resp.Body).Decode(&purchase); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &purchase, nil
}

// List retrieves settled purchases, newest first.
func (c *Client) List(ctx context.Context, limit, offset int) ([]Purchase, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/purchases")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Purchases []Purchase `json:"purchases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Purchases, nil
}

// MerchantSummary retrieves the merchant dashboard aggregates.
func (c *Client) MerchantSummary(ctx context.Context) (*Summary, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/merchant/summary", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &summary, nil
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
