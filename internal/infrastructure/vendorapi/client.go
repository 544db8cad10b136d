package vendorapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/salesboard/backend/internal/domain/rollup"
	"github.com/salesboard/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrVendorNotConfigured indicates the vendor API base URL is missing
var ErrVendorNotConfigured = errors.New("vendorapi: base URL not configured")

const timestampLayout = time.RFC3339

// Client implements rollup.RecordSource against the upstream sales vendor's
// HTTP API. Records that fail validation are coerced and flagged, never
// dropped: the caller's malformed counter is the only place they surface.
type Client struct {
	config     config.VendorConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new vendor API client with the given configuration
func NewClient(cfg config.VendorConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrVendorNotConfigured
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("vendorapi: invalid base URL: %w", err)
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// vendorOrder is the wire shape of one order. Money and timestamps arrive
// as strings and are validated here.
type vendorOrder struct {
	ID         string           `json:"id"`
	CreatedAt  string           `json:"created_at"`
	Total      string           `json:"total"`
	Channel    string           `json:"channel"`
	AgentID    string           `json:"agent_id"`
	CustomerID string           `json:"customer_id"`
	Items      []vendorLineItem `json:"items"`
}

type vendorLineItem struct {
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	BrandID   string `json:"brand_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type vendorInvoice struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Total     string `json:"total"`
	Status    string `json:"status"`
}

type ordersPage struct {
	Orders  []vendorOrder `json:"orders"`
	HasMore bool          `json:"has_more"`
}

type invoicesPage struct {
	Invoices []vendorInvoice `json:"invoices"`
	HasMore  bool            `json:"has_more"`
}

type lineItemsResponse struct {
	Items []vendorLineItem `json:"items"`
}

// FetchOrders pulls all orders in [dayStart, dayEnd], following pagination
// until the vendor reports no more pages.
func (c *Client) FetchOrders(ctx context.Context, dayStart, dayEnd time.Time) ([]rollup.RawOrder, error) {
	var orders []rollup.RawOrder

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("start", dayStart.Format(timestampLayout))
		query.Set("end", dayEnd.Format(timestampLayout))
		query.Set("page", strconv.Itoa(page))
		query.Set("page_size", strconv.Itoa(c.config.PageSize))

		body, err := c.doRequest(ctx, "orders", "/v1/orders", query)
		if err != nil {
			return nil, err
		}

		var resp ordersPage
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &rollup.FatalFetchError{Op: "orders", Err: fmt.Errorf("decode page %d: %w", page, err)}
		}

		for _, o := range resp.Orders {
			orders = append(orders, c.convertOrder(o))
		}

		if !resp.HasMore {
			break
		}
	}

	return orders, nil
}

// FetchInvoices pulls all invoices created in [dayStart, dayEnd].
func (c *Client) FetchInvoices(ctx context.Context, dayStart, dayEnd time.Time) ([]rollup.RawInvoice, error) {
	var invoices []rollup.RawInvoice

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("start", dayStart.Format(timestampLayout))
		query.Set("end", dayEnd.Format(timestampLayout))
		query.Set("page", strconv.Itoa(page))
		query.Set("page_size", strconv.Itoa(c.config.PageSize))

		body, err := c.doRequest(ctx, "invoices", "/v1/invoices", query)
		if err != nil {
			return nil, err
		}

		var resp invoicesPage
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &rollup.FatalFetchError{Op: "invoices", Err: fmt.Errorf("decode page %d: %w", page, err)}
		}

		for _, inv := range resp.Invoices {
			invoices = append(invoices, c.convertInvoice(inv))
		}

		if !resp.HasMore {
			break
		}
	}

	return invoices, nil
}

// FetchOrderLineItems retrieves line item detail for one order.
func (c *Client) FetchOrderLineItems(ctx context.Context, orderID string) ([]rollup.OrderLineItem, error) {
	if orderID == "" {
		return nil, &rollup.FatalFetchError{Op: "line_items", Err: errors.New("empty order id")}
	}

	body, err := c.doRequest(ctx, "line_items", "/v1/orders/"+url.PathEscape(orderID)+"/items", nil)
	if err != nil {
		return nil, err
	}

	var resp lineItemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &rollup.FatalFetchError{Op: "line_items", Err: fmt.Errorf("decode order %s: %w", orderID, err)}
	}

	items := make([]rollup.OrderLineItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, c.convertLineItem(it))
	}
	return items, nil
}

// FetchOpenInvoices returns currently open invoices, optionally scoped to
// one agent.
func (c *Client) FetchOpenInvoices(ctx context.Context, agentID string) ([]rollup.RawInvoice, error) {
	query := url.Values{}
	query.Set("status", rollup.InvoiceStatusOpen)
	if agentID != "" {
		query.Set("agent_id", agentID)
	}

	body, err := c.doRequest(ctx, "open_invoices", "/v1/invoices", query)
	if err != nil {
		return nil, err
	}

	var resp invoicesPage
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &rollup.FatalFetchError{Op: "open_invoices", Err: err}
	}

	invoices := make([]rollup.RawInvoice, 0, len(resp.Invoices))
	for _, inv := range resp.Invoices {
		invoices = append(invoices, c.convertInvoice(inv))
	}
	return invoices, nil
}

// doRequest performs one authenticated GET against the vendor API and maps
// failures onto the fetch-error taxonomy: auth failures are fatal, rate
// limiting, server errors and network faults are transient.
func (c *Client) doRequest(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	endpoint := c.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &rollup.FatalFetchError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &rollup.TransientFetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize))
	if err != nil {
		return nil, &rollup.TransientFetchError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &rollup.FatalFetchError{Op: op, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, &rollup.TransientFetchError{Op: op, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &rollup.FatalFetchError{Op: op, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	return body, nil
}

// convertOrder maps a wire order onto the domain record. Invalid money or
// timestamps coerce to zero values with the record flagged malformed.
func (c *Client) convertOrder(o vendorOrder) rollup.RawOrder {
	order := rollup.RawOrder{
		ID:         o.ID,
		Channel:    o.Channel,
		AgentID:    o.AgentID,
		CustomerID: o.CustomerID,
	}

	total, ok := parseMoney(o.Total)
	order.Total = total
	if !ok {
		order.Malformed = true
	}

	ts, err := time.Parse(timestampLayout, o.CreatedAt)
	if err != nil {
		order.Malformed = true
		c.logger.Debug("Coerced malformed order timestamp",
			zap.String("order_id", o.ID),
			zap.String("created_at", o.CreatedAt),
		)
	} else {
		order.Timestamp = ts
	}

	for _, it := range o.Items {
		order.LineItems = append(order.LineItems, c.convertLineItem(it))
	}

	return order
}

func (c *Client) convertInvoice(inv vendorInvoice) rollup.RawInvoice {
	invoice := rollup.RawInvoice{
		ID:     inv.ID,
		Status: inv.Status,
	}

	total, ok := parseMoney(inv.Total)
	invoice.Total = total
	if !ok {
		invoice.Malformed = true
	}

	ts, err := time.Parse(timestampLayout, inv.CreatedAt)
	if err != nil {
		invoice.Malformed = true
	} else {
		invoice.Timestamp = ts
	}

	return invoice
}

func (c *Client) convertLineItem(it vendorLineItem) rollup.OrderLineItem {
	unitPrice, _ := parseMoney(it.UnitPrice)
	lineTotal, _ := parseMoney(it.LineTotal)
	return rollup.OrderLineItem{
		ItemID:    it.ItemID,
		Name:      it.Name,
		SKU:       it.SKU,
		BrandID:   it.BrandID,
		Quantity:  it.Quantity,
		UnitPrice: unitPrice,
		LineTotal: lineTotal,
	}
}

// parseMoney parses a vendor money string, returning zero and ok=false when
// the value is absent or unparseable.
func parseMoney(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var _ rollup.RecordSource = (*Client)(nil)
