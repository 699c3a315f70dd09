package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Product is one catalog record. Price and DiscountPrice are nil when absent
// or not numeric.
type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	ImageURL      string           `json:"image_url,omitempty"`
}

// Order is one administrative order row.
type Order struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	DriverID *string `json:"driver_id,omitempty"`
}

// Open reports whether the order is still in flight.
func (o Order) Open() bool {
	switch strings.ToLower(o.Status) {
	case "delivered", "completed", "cancelled", "canceled", "rejected":
		return false
	default:
		return true
	}
}

// ReadyWithoutDriver reports a ready order nobody has picked up.
func (o Order) ReadyWithoutDriver() bool {
	return strings.EqualFold(o.Status, "ready") && (o.DriverID == nil || *o.DriverID == "")
}

// Rider is one driver row.
type Rider struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// Digest carries precomputed KPIs. Optional extras are nil when missing.
type Digest struct {
	OrdersToday             float64  `json:"ordersToday"`
	OrdersLastHour          float64  `json:"ordersLastHour"`
	ReadyWithoutDriverCount float64  `json:"readyWithoutDriverCount"`
	CancelledTodayCount     float64  `json:"cancelledTodayCount"`
	AvgOrderValueToday      *float64 `json:"avgOrderValueToday,omitempty"`
	AvgPrepTimeMin          *float64 `json:"avgPrepTimeMin,omitempty"`
	ActiveDriversCount      *float64 `json:"activeDriversCount,omitempty"`
}

type record map[string]json.RawMessage

var envelopeKeys = []string{"items", "data", "results", "products", "orders", "riders", "drivers"}

// decodeList accepts a bare array or a known envelope; anything else is empty.
func decodeList(body []byte) []record {
	body = bytes.TrimSpace(body)
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		var obj record
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil
		}
		for _, key := range envelopeKeys {
			if raw, ok := obj[key]; ok {
				if nested := decodeList(raw); nested != nil {
					return nested
				}
			}
		}
		return nil
	}
	out := make([]record, 0, len(list))
	for _, raw := range list {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func decodeProducts(body []byte) []Product {
	recs := decodeList(body)
	out := make([]Product, 0, len(recs))
	for _, r := range recs {
		out = append(out, Product{
			ID:            r.str("id", "_id", "product_id"),
			Name:          r.str("name", "title"),
			Price:         r.decimal("price"),
			DiscountPrice: r.decimal("discount_price", "discountPrice", "sale_price", "salePrice"),
			ImageURL:      r.str("image_url", "imageUrl", "image", "thumbnail"),
		})
	}
	return out
}

func decodeOrders(body []byte) []Order {
	recs := decodeList(body)
	out := make([]Order, 0, len(recs))
	for _, r := range recs {
		o := Order{
			ID:     r.str("id", "_id", "order_id"),
			Status: r.str("status", "state"),
		}
		if driver := r.str("driver_id", "driverId", "driver", "rider_id"); driver != "" {
			o.DriverID = &driver
		}
		out = append(out, o)
	}
	return out
}

func decodeRiders(body []byte) []Rider {
	recs := decodeList(body)
	out := make([]Rider, 0, len(recs))
	for _, r := range recs {
		out = append(out, Rider{
			ID:     r.str("id", "_id", "driver_id"),
			Active: r.boolean("active", "is_active", "isActive", "online"),
		})
	}
	return out
}

// decodeDigest reports ok=false when body is not an object or carries none
// of the four core KPIs.
func decodeDigest(body []byte) (Digest, bool) {
	var r record
	if err := json.Unmarshal(bytes.TrimSpace(body), &r); err != nil || r == nil {
		return Digest{}, false
	}
	if nested, ok := r["data"]; ok {
		var inner record
		if err := json.Unmarshal(nested, &inner); err == nil && inner != nil {
			r = inner
		}
	}
	ordersToday := r.number("ordersToday", "orders_today")
	lastHour := r.number("ordersLastHour", "orders_last_hour")
	ready := r.number("readyWithoutDriverCount", "ready_without_driver_count")
	cancelled := r.number("cancelledTodayCount", "cancelled_today_count")
	if ordersToday == nil && lastHour == nil && ready == nil && cancelled == nil {
		return Digest{}, false
	}
	zero := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return Digest{
		OrdersToday:             zero(ordersToday),
		OrdersLastHour:          zero(lastHour),
		ReadyWithoutDriverCount: zero(ready),
		CancelledTodayCount:     zero(cancelled),
		AvgOrderValueToday:      r.number("avgOrderValueToday", "avg_order_value_today"),
		AvgPrepTimeMin:          r.number("avgPrepTimeMin", "avg_prep_time_min"),
		ActiveDriversCount:      r.number("activeDriversCount", "active_drivers_count"),
	}, true
}

func (r record) first(keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if raw, ok := r[key]; ok && string(raw) != "null" {
			return raw, true
		}
	}
	return nil, false
}

// str reads a string, accepting numbers as well (ids often arrive numeric).
func (r record) str(keys ...string) string {
	raw, ok := r.first(keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	// nested objects such as {"driver": {"id": 3}}
	var nested record
	if err := json.Unmarshal(raw, &nested); err == nil {
		return nested.str("id", "_id")
	}
	return ""
}

func (r record) decimal(keys ...string) *decimal.Decimal {
	raw, ok := r.first(keys...)
	if !ok {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return &d
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return &d
		}
	}
	return nil
}

func (r record) number(keys ...string) *float64 {
	d := r.decimal(keys...)
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func (r record) boolean(keys ...string) bool {
	raw, ok := r.first(keys...)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, _ := strconv.ParseBool(strings.TrimSpace(s))
		return v
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}
