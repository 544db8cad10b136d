package rollup

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TopItemsLimit bounds the ranked item list on a range aggregate.
const TopItemsLimit = 50

// AgentRangeStat is one agent's totals across a range, ranked by revenue.
type AgentRangeStat struct {
	AgentID         string          `json:"agent_id"`
	Orders          int64           `json:"orders"`
	Revenue         decimal.Decimal `json:"revenue"`
	UniqueCustomers int64           `json:"unique_customers"`
}

// BrandRangeStat is one brand's totals across a range, ranked by revenue.
type BrandRangeStat struct {
	BrandID    string          `json:"brand_id"`
	Revenue    decimal.Decimal `json:"revenue"`
	Quantity   int64           `json:"quantity"`
	OrderCount int64           `json:"order_count"`
}

// ItemRangeStat is one item's totals across a range.
type ItemRangeStat struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Quantity int64           `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// DailyPoint is one day's entry in the range time series.
type DailyPoint struct {
	Date            DateKey         `json:"date"`
	Revenue         decimal.Decimal `json:"revenue"`
	Orders          int64           `json:"orders"`
	InvoicesCreated int64           `json:"invoices_created"`
	UniqueCustomers int64           `json:"unique_customers"`
}

// RangeTotals holds the scalar totals of a range aggregate.
//
// UniqueCustomers is the sum of per-day cardinalities and over-counts
// customers active on more than one day of the range. True cross-range
// deduplication would require persisting per-range customer sets; consumers
// must present this figure as approximate.
type RangeTotals struct {
	TotalOrders       int64           `json:"total_orders"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	MarketplaceOrders int64           `json:"marketplace_orders"`
	DirectOrders      int64           `json:"direct_orders"`
	InvoicesCreated   int64           `json:"invoices_created"`
	InvoiceValue      decimal.Decimal `json:"invoice_value"`
	UniqueCustomers   int64           `json:"unique_customers"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	MalformedRecords  int64           `json:"malformed_records"`
}

// RangeAggregate is the derived combination of daily buckets over a range.
// It is recomputed per request and only ever cached with a short TTL.
type RangeAggregate struct {
	RangeStart  DateKey          `json:"range_start"`
	RangeEnd    DateKey          `json:"range_end"`
	Totals      RangeTotals      `json:"totals"`
	ByAgent     []AgentRangeStat `json:"by_agent"`
	ByBrand     []BrandRangeStat `json:"by_brand"`
	TopItems    []ItemRangeStat  `json:"top_items"`
	DailySeries []DailyPoint     `json:"daily_series"`

	// itemTotals retains the untruncated item fold so two partial
	// aggregates can be merged without losing entries that fell below the
	// top-N cut in either half. Not serialized.
	itemTotals map[string]*ItemRangeStat
}

// CombineBuckets folds daily buckets into one range aggregate. Buckets are
// folded in ascending date order; the input is sorted defensively so the
// output series is ordered regardless of store iteration order.
func CombineBuckets(start, end DateKey, buckets []*DailyBucket) *RangeAggregate {
	sorted := make([]*DailyBucket, len(buckets))
	copy(sorted, buckets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DateKey.Before(sorted[j].DateKey) })

	agg := newRangeAggregate(start, end)
	agents := make(map[string]*AgentRangeStat)
	brands := make(map[string]*BrandRangeStat)

	for _, b := range sorted {
		agg.Totals.TotalOrders += b.TotalOrders
		agg.Totals.TotalRevenue = agg.Totals.TotalRevenue.Add(b.TotalRevenue)
		agg.Totals.MarketplaceOrders += b.MarketplaceOrders
		agg.Totals.DirectOrders += b.DirectOrders
		agg.Totals.InvoicesCreated += b.InvoicesCreated
		agg.Totals.InvoiceValue = agg.Totals.InvoiceValue.Add(b.InvoiceValue)
		agg.Totals.UniqueCustomers += b.UniqueCustomers
		agg.Totals.MalformedRecords += b.MalformedRecords

		for id, stat := range b.ByAgent {
			a := agents[id]
			if a == nil {
				a = &AgentRangeStat{AgentID: id, Revenue: decimal.Zero}
				agents[id] = a
			}
			a.Orders += stat.Orders
			a.Revenue = a.Revenue.Add(stat.Revenue)
			a.UniqueCustomers += stat.UniqueCustomers
		}

		for id, stat := range b.ByBrand {
			br := brands[id]
			if br == nil {
				br = &BrandRangeStat{BrandID: id, Revenue: decimal.Zero}
				brands[id] = br
			}
			br.Revenue = br.Revenue.Add(stat.Revenue)
			br.Quantity += stat.Quantity
			br.OrderCount += stat.OrderCount
		}

		for id, stat := range b.Items {
			it := agg.itemTotals[id]
			if it == nil {
				it = &ItemRangeStat{ItemID: id, Name: stat.Name, SKU: stat.SKU, Revenue: decimal.Zero}
				agg.itemTotals[id] = it
			}
			it.Quantity += stat.Quantity
			it.Revenue = it.Revenue.Add(stat.Revenue)
		}

		agg.DailySeries = append(agg.DailySeries, DailyPoint{
			Date:            b.DateKey,
			Revenue:         b.TotalRevenue,
			Orders:          b.TotalOrders,
			InvoicesCreated: b.InvoicesCreated,
			UniqueCustomers: b.UniqueCustomers,
		})
	}

	agg.finalize(agents, brands)
	return agg
}

// Merge combines two aggregates over adjacent or disjoint ranges into one.
// The fold is associative: merging [start,mid] with [mid+1,end] equals
// combining [start,end] directly.
func Merge(a, b *RangeAggregate) *RangeAggregate {
	start := a.RangeStart
	if b.RangeStart.Before(start) {
		start = b.RangeStart
	}
	end := a.RangeEnd
	if end.Before(b.RangeEnd) {
		end = b.RangeEnd
	}

	merged := newRangeAggregate(start, end)
	agents := make(map[string]*AgentRangeStat)
	brands := make(map[string]*BrandRangeStat)

	for _, part := range []*RangeAggregate{a, b} {
		merged.Totals.TotalOrders += part.Totals.TotalOrders
		merged.Totals.TotalRevenue = merged.Totals.TotalRevenue.Add(part.Totals.TotalRevenue)
		merged.Totals.MarketplaceOrders += part.Totals.MarketplaceOrders
		merged.Totals.DirectOrders += part.Totals.DirectOrders
		merged.Totals.InvoicesCreated += part.Totals.InvoicesCreated
		merged.Totals.InvoiceValue = merged.Totals.InvoiceValue.Add(part.Totals.InvoiceValue)
		merged.Totals.UniqueCustomers += part.Totals.UniqueCustomers
		merged.Totals.MalformedRecords += part.Totals.MalformedRecords

		for _, stat := range part.ByAgent {
			a := agents[stat.AgentID]
			if a == nil {
				a = &AgentRangeStat{AgentID: stat.AgentID, Revenue: decimal.Zero}
				agents[stat.AgentID] = a
			}
			a.Orders += stat.Orders
			a.Revenue = a.Revenue.Add(stat.Revenue)
			a.UniqueCustomers += stat.UniqueCustomers
		}

		for _, stat := range part.ByBrand {
			br := brands[stat.BrandID]
			if br == nil {
				br = &BrandRangeStat{BrandID: stat.BrandID, Revenue: decimal.Zero}
				brands[stat.BrandID] = br
			}
			br.Revenue = br.Revenue.Add(stat.Revenue)
			br.Quantity += stat.Quantity
			br.OrderCount += stat.OrderCount
		}

		for _, stat := range part.items() {
			it := merged.itemTotals[stat.ItemID]
			if it == nil {
				it = &ItemRangeStat{ItemID: stat.ItemID, Name: stat.Name, SKU: stat.SKU, Revenue: decimal.Zero}
				merged.itemTotals[stat.ItemID] = it
			}
			it.Quantity += stat.Quantity
			it.Revenue = it.Revenue.Add(stat.Revenue)
		}

		merged.DailySeries = append(merged.DailySeries, part.DailySeries...)
	}

	sort.Slice(merged.DailySeries, func(i, j int) bool {
		return merged.DailySeries[i].Date.Before(merged.DailySeries[j].Date)
	})

	merged.finalize(agents, brands)
	return merged
}

func newRangeAggregate(start, end DateKey) *RangeAggregate {
	return &RangeAggregate{
		RangeStart: start,
		RangeEnd:   end,
		Totals: RangeTotals{
			TotalRevenue:      decimal.Zero,
			InvoiceValue:      decimal.Zero,
			AverageOrderValue: decimal.Zero,
		},
		ByAgent:     []AgentRangeStat{},
		ByBrand:     []BrandRangeStat{},
		TopItems:    []ItemRangeStat{},
		DailySeries: []DailyPoint{},
		itemTotals:  make(map[string]*ItemRangeStat),
	}
}

// items returns the full item fold when available, falling back to the
// truncated projection for aggregates restored from a cache.
func (a *RangeAggregate) items() []*ItemRangeStat {
	if a.itemTotals != nil {
		out := make([]*ItemRangeStat, 0, len(a.itemTotals))
		for _, it := range a.itemTotals {
			out = append(out, it)
		}
		return out
	}
	out := make([]*ItemRangeStat, len(a.TopItems))
	for i := range a.TopItems {
		out[i] = &a.TopItems[i]
	}
	return out
}

// finalize derives the ranked projections and the average order value.
// Ranking is descending by revenue with an ascending key tie-break, so
// repeated calls over the same data always produce the same order.
func (a *RangeAggregate) finalize(agents map[string]*AgentRangeStat, brands map[string]*BrandRangeStat) {
	a.ByAgent = make([]AgentRangeStat, 0, len(agents))
	for _, stat := range agents {
		a.ByAgent = append(a.ByAgent, *stat)
	}
	sort.Slice(a.ByAgent, func(i, j int) bool {
		if !a.ByAgent[i].Revenue.Equal(a.ByAgent[j].Revenue) {
			return a.ByAgent[i].Revenue.GreaterThan(a.ByAgent[j].Revenue)
		}
		return a.ByAgent[i].AgentID < a.ByAgent[j].AgentID
	})

	a.ByBrand = make([]BrandRangeStat, 0, len(brands))
	for _, stat := range brands {
		a.ByBrand = append(a.ByBrand, *stat)
	}
	sort.Slice(a.ByBrand, func(i, j int) bool {
		if !a.ByBrand[i].Revenue.Equal(a.ByBrand[j].Revenue) {
			return a.ByBrand[i].Revenue.GreaterThan(a.ByBrand[j].Revenue)
		}
		return a.ByBrand[i].BrandID < a.ByBrand[j].BrandID
	})

	a.TopItems = make([]ItemRangeStat, 0, len(a.itemTotals))
	for _, stat := range a.itemTotals {
		a.TopItems = append(a.TopItems, *stat)
	}
	sort.Slice(a.TopItems, func(i, j int) bool {
		if !a.TopItems[i].Revenue.Equal(a.TopItems[j].Revenue) {
			return a.TopItems[i].Revenue.GreaterThan(a.TopItems[j].Revenue)
		}
		return a.TopItems[i].ItemID < a.TopItems[j].ItemID
	})
	if len(a.TopItems) > TopItemsLimit {
		a.TopItems = a.TopItems[:TopItemsLimit]
	}

	// Zero orders yields a zero average, never a division error.
	if a.Totals.TotalOrders > 0 {
		a.Totals.AverageOrderValue = a.Totals.TotalRevenue.DivRound(decimal.NewFromInt(a.Totals.TotalOrders), 2)
	} else {
		a.Totals.AverageOrderValue = decimal.Zero
	}
}
