package rollup

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order channels as reported by the vendor API.
const (
	ChannelMarketplace = "marketplace"
	ChannelDirect      = "direct"
)

// UnassignedKey buckets records that arrive without an agent or brand
// identifier. Such records are never dropped from the totals.
const UnassignedKey = "unassigned"

// OrderLineItem is one line of a raw order.
type OrderLineItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	BrandID   string          `json:"brand_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// RawOrder is one sales order as delivered by the record source. It is
// immutable input for a single build.
type RawOrder struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Total      decimal.Decimal `json:"total"`
	Channel    string          `json:"channel"`
	AgentID    string          `json:"agent_id"`
	CustomerID string          `json:"customer_id"`
	LineItems  []OrderLineItem `json:"line_items"`

	// Malformed is set by the source when a record field could not be
	// decoded and was coerced to its zero value. Such orders still
	// contribute whatever survived coercion; the builder only counts them.
	Malformed bool `json:"-"`
}

// IsMalformed reports whether the order is missing fields the vendor
// contract requires. A malformed order is coerced, counted, and folded with
// whatever values it carries; it never aborts the day.
func (o RawOrder) IsMalformed() bool {
	return o.Malformed || o.Timestamp.IsZero()
}

// AgentKey returns the breakdown key for the order's agent.
func (o RawOrder) AgentKey() string {
	if o.AgentID == "" {
		return UnassignedKey
	}
	return o.AgentID
}

// BrandKey returns the breakdown key for a line item's brand.
func (li OrderLineItem) BrandKey() string {
	if li.BrandID == "" {
		return UnassignedKey
	}
	return li.BrandID
}

// Revenue returns the line's revenue contribution. LineTotal wins when the
// vendor supplies it; otherwise quantity times unit price.
func (li OrderLineItem) Revenue() decimal.Decimal {
	if !li.LineTotal.IsZero() {
		return li.LineTotal
	}
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// Invoice statuses the engine distinguishes.
const (
	InvoiceStatusOpen = "open"
	InvoiceStatusPaid = "paid"
	InvoiceStatusVoid = "void"
)

// RawInvoice is one invoice as delivered by the record source.
type RawInvoice struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Total     decimal.Decimal `json:"total"`
	Status    string          `json:"status"`

	Malformed bool `json:"-"`
}

// IsMalformed reports whether the invoice arrived without required fields.
func (iv RawInvoice) IsMalformed() bool {
	return iv.Malformed || iv.Timestamp.IsZero()
}
