package rollup

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AgentDailyStat is one agent's slice of a single day.
type AgentDailyStat struct {
	Orders          int64           `json:"orders"`
	Revenue         decimal.Decimal `json:"revenue"`
	UniqueCustomers int64           `json:"unique_customers"`
}

// BrandDailyStat is one brand's slice of a single day.
type BrandDailyStat struct {
	Revenue    decimal.Decimal `json:"revenue"`
	Quantity   int64           `json:"quantity"`
	OrderCount int64           `json:"order_count"`
}

// ItemDailyStat is one item's slice of a single day.
type ItemDailyStat struct {
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Quantity int64           `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// DailyBucket is the persisted aggregate for exactly one calendar day.
//
// A bucket is always written as a whole-document replace, never merged
// incrementally, so rebuilding a day from identical raw data yields a
// byte-identical document. Nothing time-of-build-dependent belongs in here.
type DailyBucket struct {
	DateKey           DateKey                    `json:"date_key"`
	TotalOrders       int64                      `json:"total_orders"`
	TotalRevenue      decimal.Decimal            `json:"total_revenue"`
	MarketplaceOrders int64                      `json:"marketplace_orders"`
	DirectOrders      int64                      `json:"direct_orders"`
	InvoicesCreated   int64                      `json:"invoices_created"`
	InvoiceValue      decimal.Decimal            `json:"invoice_value"`
	ByAgent           map[string]*AgentDailyStat `json:"by_agent"`
	ByBrand           map[string]*BrandDailyStat `json:"by_brand"`
	Items             map[string]*ItemDailyStat  `json:"items"`
	UniqueCustomers   int64                      `json:"unique_customers"`
	MalformedRecords  int64                      `json:"malformed_records"`
	SourceOrderIDs    []string                   `json:"source_order_ids"`
	SourceInvoiceIDs  []string                   `json:"source_invoice_ids"`
}

// NewDailyBucket returns an empty bucket for the given day with all
// accumulators zeroed.
func NewDailyBucket(key DateKey) *DailyBucket {
	return &DailyBucket{
		DateKey:          key,
		TotalRevenue:     decimal.Zero,
		InvoiceValue:     decimal.Zero,
		ByAgent:          make(map[string]*AgentDailyStat),
		ByBrand:          make(map[string]*BrandDailyStat),
		Items:            make(map[string]*ItemDailyStat),
		SourceOrderIDs:   []string{},
		SourceInvoiceIDs: []string{},
	}
}

// BuildDailyBucket folds one day's raw orders and invoices into a bucket.
//
// The fold is a pure function of its inputs: source IDs are sorted, map keys
// serialize in sorted order, and the per-build customer set is discarded
// after its cardinality is taken. Agent- and brand-less records land under
// UnassignedKey.
func BuildDailyBucket(key DateKey, orders []RawOrder, invoices []RawInvoice) *DailyBucket {
	b := NewDailyBucket(key)

	customers := make(map[string]struct{})
	agentCustomers := make(map[string]map[string]struct{})
	brandOrders := make(map[string]struct{})

	for _, o := range orders {
		if o.IsMalformed() {
			b.MalformedRecords++
		}

		b.TotalOrders++
		b.TotalRevenue = b.TotalRevenue.Add(o.Total)
		b.SourceOrderIDs = append(b.SourceOrderIDs, o.ID)

		if o.Channel == ChannelMarketplace {
			b.MarketplaceOrders++
		} else {
			b.DirectOrders++
		}

		agentKey := o.AgentKey()
		agent := b.ByAgent[agentKey]
		if agent == nil {
			agent = &AgentDailyStat{Revenue: decimal.Zero}
			b.ByAgent[agentKey] = agent
			agentCustomers[agentKey] = make(map[string]struct{})
		}
		agent.Orders++
		agent.Revenue = agent.Revenue.Add(o.Total)

		if o.CustomerID != "" {
			customers[o.CustomerID] = struct{}{}
			agentCustomers[agentKey][o.CustomerID] = struct{}{}
		}

		for _, li := range o.LineItems {
			revenue := li.Revenue()

			brand := b.ByBrand[li.BrandKey()]
			if brand == nil {
				brand = &BrandDailyStat{Revenue: decimal.Zero}
				b.ByBrand[li.BrandKey()] = brand
			}
			brand.Revenue = brand.Revenue.Add(revenue)
			brand.Quantity += li.Quantity

			// An order with several lines of one brand is still one
			// order for that brand.
			seen := li.BrandKey() + "\x00" + o.ID
			if _, ok := brandOrders[seen]; !ok {
				brandOrders[seen] = struct{}{}
				brand.OrderCount++
			}

			item := b.Items[li.ItemID]
			if item == nil {
				item = &ItemDailyStat{Name: li.Name, SKU: li.SKU, Revenue: decimal.Zero}
				b.Items[li.ItemID] = item
			}
			item.Quantity += li.Quantity
			item.Revenue = item.Revenue.Add(revenue)
		}
	}

	for _, iv := range invoices {
		if iv.IsMalformed() {
			b.MalformedRecords++
		}
		b.InvoicesCreated++
		b.InvoiceValue = b.InvoiceValue.Add(iv.Total)
		b.SourceInvoiceIDs = append(b.SourceInvoiceIDs, iv.ID)
	}

	// Only the cardinality survives the build.
	b.UniqueCustomers = int64(len(customers))
	for key, set := range agentCustomers {
		b.ByAgent[key].UniqueCustomers = int64(len(set))
	}

	sort.Strings(b.SourceOrderIDs)
	sort.Strings(b.SourceInvoiceIDs)

	return b
}
