// Package guardrail turns live KPIs and the configured limits into breaches.
package guardrail

import (
	"fmt"
	"time"

	"opswatch/internal/decisionlog"
	"opswatch/internal/settings"
	"opswatch/internal/upstream"
)

// KPIs is the live snapshot the evaluator reads.
type KPIs struct {
	OrdersToday             float64 `json:"ordersToday"`
	OrdersLastHour          float64 `json:"ordersLastHour"`
	ReadyWithoutDriverCount float64 `json:"readyWithoutDriverCount"`
	CancelledTodayCount     float64 `json:"cancelledTodayCount"`
}

// FromDigest extracts the evaluated fields from a digest response.
func FromDigest(d upstream.Digest) KPIs {
	return KPIs{
		OrdersToday:             d.OrdersToday,
		OrdersLastHour:          d.OrdersLastHour,
		ReadyWithoutDriverCount: d.ReadyWithoutDriverCount,
		CancelledTodayCount:     d.CancelledTodayCount,
	}
}

// Breach identifiers.
const (
	BreachReadyWithoutDriver = "ready_without_driver"
	BreachOrdersLastHour     = "orders_last_hour"
	BreachCancelRate         = "cancel_rate"
)

// Breach describes one exceeded limit.
type Breach struct {
	ID       string               `json:"id"`
	Severity decisionlog.Severity `json:"severity"`
	Title    string               `json:"title"`
	Detail   string               `json:"detail"`
	Action   string               `json:"action"`
	Value    float64              `json:"value"`
	Limit    float64              `json:"limit"`
}

// Evaluation is the evaluator's answer. Available is false when no KPI data
// could be read, in which case Breaches carries no meaning.
type Evaluation struct {
	Available  bool                `json:"available"`
	At         time.Time           `json:"at"`
	KPIs       *KPIs               `json:"kpis,omitempty"`
	Limits     settings.Guardrails `json:"limits"`
	CancelRate float64             `json:"cancel_rate"`
	Breaches   []Breach            `json:"breaches"`
}

// Healthy reports a confirmed all-clear.
func (e Evaluation) Healthy() bool {
	return e.Available && len(e.Breaches) == 0
}

// CancelRate is cancelled/ordersToday, or 0 when there were no orders.
func CancelRate(k KPIs) float64 {
	if k.OrdersToday <= 0 {
		return 0
	}
	return k.CancelledTodayCount / k.OrdersToday
}

// Evaluate compares kpis against cfg. A nil kpis yields an unavailable evaluation.
// Limits are exclusive: a value equal to its limit is not a breach.
func Evaluate(kpis *KPIs, cfg settings.Guardrails) Evaluation {
	eval := Evaluation{Limits: cfg, Breaches: []Breach{}}
	if kpis == nil {
		return eval
	}
	k := *kpis
	eval.Available = true
	eval.KPIs = &k
	eval.CancelRate = CancelRate(k)

	if k.ReadyWithoutDriverCount > cfg.MaxReadyWithoutDriver {
		eval.Breaches = append(eval.Breaches, Breach{
			ID:       BreachReadyWithoutDriver,
			Severity: decisionlog.SeverityHigh,
			Title:    "Ready orders waiting for a driver",
			Detail:   fmt.Sprintf("%.0f ready orders have no driver (limit %.0f)", k.ReadyWithoutDriverCount, cfg.MaxReadyWithoutDriver),
			Action:   "Assign drivers manually or widen the assignment radius",
			Value:    k.ReadyWithoutDriverCount,
			Limit:    cfg.MaxReadyWithoutDriver,
		})
	}
	if k.OrdersLastHour > cfg.MaxOrdersLastHour {
		eval.Breaches = append(eval.Breaches, Breach{
			ID:       BreachOrdersLastHour,
			Severity: decisionlog.SeverityMed,
			Title:    "Order volume above limit",
			Detail:   fmt.Sprintf("%.0f orders in the last hour (limit %.0f)", k.OrdersLastHour, cfg.MaxOrdersLastHour),
			Action:   "Bring more riders online and check store prep capacity",
			Value:    k.OrdersLastHour,
			Limit:    cfg.MaxOrdersLastHour,
		})
	}
	if eval.CancelRate > cfg.MaxCancelRate {
		eval.Breaches = append(eval.Breaches, Breach{
			ID:       BreachCancelRate,
			Severity: decisionlog.SeverityMed,
			Title:    "Cancellation rate above limit",
			Detail:   fmt.Sprintf("cancellation rate %.1f%% (limit %.1f%%)", eval.CancelRate*100, cfg.MaxCancelRate*100),
			Action:   "Review recent cancellations for a common store or reason",
			Value:    eval.CancelRate,
			Limit:    cfg.MaxCancelRate,
		})
	}
	return eval
}
