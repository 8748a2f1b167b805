package domain

import "time"

// ============================================================
// Customer input
// ============================================================

// CustomerRecord is one raw input row: a customer's order history split by
// channel, as exported by the omnichannel retail system.
type CustomerRecord struct {
	ID               string    `json:"master_id"`
	OrderChannel     string    `json:"order_channel"`
	LastOrderChannel string    `json:"last_order_channel"`
	FirstOrderDate   time.Time `json:"first_order_date"`
	LastOrderDate    time.Time `json:"last_order_date"`
	LastOrderOnline  time.Time `json:"last_order_date_online"`
	LastOrderOffline time.Time `json:"last_order_date_offline"`
	OrdersOnline     float64   `json:"order_num_total_ever_online"`
	OrdersOffline    float64   `json:"order_num_total_ever_offline"`
	SpendOffline     float64   `json:"customer_value_total_ever_offline"`
	SpendOnline      float64   `json:"customer_value_total_ever_online"`
	InterestedIn     []string  `json:"interested_in_categories_12"`
}

// CustomerAggregate is the per-customer omnichannel total built from a
// (capped) CustomerRecord. Immutable once built.
type CustomerAggregate struct {
	ID             string    `json:"master_id"`
	FirstOrderDate time.Time `json:"first_order_date"`
	LastOrderDate  time.Time `json:"last_order_date"`
	OrderCount     float64   `json:"order_num_total"`
	TotalSpend     float64   `json:"customer_value_total"`
}

// ChannelSummary aggregates customers by their acquisition channel.
type ChannelSummary struct {
	Channel     string  `json:"order_channel"`
	Customers   int     `json:"customers"`
	TotalOrders float64 `json:"total_orders"`
	TotalSpend  float64 `json:"total_spend"`
	AvgOrders   float64 `json:"avg_orders"`
	AvgSpend    float64 `json:"avg_spend"`
}
