// Package catalog scans product records for data-quality anomalies and large
// price swings since the previous scan.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"opswatch/internal/decisionlog"
	"opswatch/internal/upstream"
)

// Finding titles.
const (
	TitleInvalidPrice  = "Invalid price"
	TitleMissingImage  = "Missing image"
	TitleBadDiscount   = "Suspicious discount"
	TitleDuplicateName = "Duplicate product name"
	TitlePriceChange   = "Large price change"
)

// Price change tuning.
var (
	PriceChangePct     = decimal.RequireFromString("0.35")
	PriceChangeHighPct = decimal.RequireFromString("0.75")
)

const (
	// MaxPriceChanges caps how many price swings a scan reports.
	MaxPriceChanges = 30
	// DuplicateGroupSize is the smallest group of equal names reported.
	DuplicateGroupSize = 3
)

var placeholderMarkers = []string{"placeholder", "no-image", "noimage"}

// Finding is one anomaly. ID is stable for the same anomaly across scans.
type Finding struct {
	ID        string               `json:"id"`
	Severity  decisionlog.Severity `json:"severity"`
	Title     string               `json:"title"`
	Detail    string               `json:"detail"`
	ProductID string               `json:"product_id,omitempty"`
}

// PriceSnapshot is the last observed valid price per product.
type PriceSnapshot struct {
	At     time.Time                  `json:"at"`
	Prices map[string]decimal.Decimal `json:"prices"`
}

// Scan checks products against prev (nil when there is none) and returns the
// findings along with the snapshot that should replace prev.
func Scan(at time.Time, products []upstream.Product, prev *PriceSnapshot) ([]Finding, PriceSnapshot) {
	findings := []Finding{}
	next := PriceSnapshot{At: at, Prices: make(map[string]decimal.Decimal, len(products))}
	names := make(map[string][]string)

	for _, p := range products {
		label := displayName(p)
		validPrice := p.Price != nil && p.Price.IsPositive()
		if validPrice {
			next.Prices[p.ID] = *p.Price
		} else {
			findings = append(findings, Finding{
				ID:        "price:" + p.ID,
				Severity:  decisionlog.SeverityHigh,
				Title:     TitleInvalidPrice,
				Detail:    fmt.Sprintf("%s has price %s", label, priceText(p.Price)),
				ProductID: p.ID,
			})
		}

		if missingImage(p.ImageURL) {
			findings = append(findings, Finding{
				ID:        "image:" + p.ID,
				Severity:  decisionlog.SeverityMed,
				Title:     TitleMissingImage,
				Detail:    fmt.Sprintf("%s has no usable image (%q)", label, p.ImageURL),
				ProductID: p.ID,
			})
		}

		if d := p.DiscountPrice; d != nil && (!d.IsPositive() || (validPrice && d.GreaterThanOrEqual(*p.Price))) {
			findings = append(findings, Finding{
				ID:        "discount:" + p.ID,
				Severity:  decisionlog.SeverityMed,
				Title:     TitleBadDiscount,
				Detail:    fmt.Sprintf("%s discount %s against price %s", label, d.String(), priceText(p.Price)),
				ProductID: p.ID,
			})
		}

		if key := NormalizeName(p.Name); key != "" {
			names[key] = append(names[key], p.ID)
		}
	}

	findings = append(findings, duplicates(names)...)
	findings = append(findings, priceChanges(products, prev)...)
	return findings, next
}

// NormalizeName trims, lower-cases and collapses internal whitespace.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func duplicates(names map[string][]string) []Finding {
	keys := make([]string, 0, len(names))
	for k, ids := range names {
		if len(ids) >= DuplicateGroupSize {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Finding, 0, len(keys))
	for _, k := range keys {
		ids := names[k]
		out = append(out, Finding{
			ID:       "dup:" + k,
			Severity: decisionlog.SeverityLow,
			Title:    TitleDuplicateName,
			Detail:   fmt.Sprintf("%d products named %q: %s", len(ids), k, strings.Join(ids, ", ")),
		})
	}
	return out
}

type priceChange struct {
	product upstream.Product
	before  decimal.Decimal
	after   decimal.Decimal
	pct     decimal.Decimal
}

func priceChanges(products []upstream.Product, prev *PriceSnapshot) []Finding {
	if prev == nil {
		return nil
	}
	var candidates []priceChange
	for _, p := range products {
		before, ok := prev.Prices[p.ID]
		if !ok || !before.IsPositive() {
			continue
		}
		// A numeric price that dropped to zero or below still counts; an
		// absent price has nothing to compare.
		if p.Price == nil {
			continue
		}
		after := *p.Price
		pct := after.Sub(before).Div(before)
		if pct.Abs().GreaterThanOrEqual(PriceChangePct) {
			candidates = append(candidates, priceChange{product: p, before: before, after: after, pct: pct})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].pct.Abs(), candidates[j].pct.Abs()
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return candidates[i].product.ID < candidates[j].product.ID
	})
	if len(candidates) > MaxPriceChanges {
		candidates = candidates[:MaxPriceChanges]
	}

	out := make([]Finding, 0, len(candidates))
	for _, c := range candidates {
		sev := decisionlog.SeverityMed
		if c.pct.Abs().GreaterThanOrEqual(PriceChangeHighPct) {
			sev = decisionlog.SeverityHigh
		}
		out = append(out, Finding{
			ID:        "delta:" + c.product.ID,
			Severity:  sev,
			Title:     TitlePriceChange,
			Detail:    fmt.Sprintf("%s moved from %s to %s (%s%%)", displayName(c.product), c.before.String(), c.after.String(), signed(c.pct.Shift(2).Round(0))),
			ProductID: c.product.ID,
		})
	}
	return out
}

func missingImage(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" || strings.HasSuffix(url, "/") {
		return true
	}
	lower := strings.ToLower(url)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func displayName(p upstream.Product) string {
	if strings.TrimSpace(p.Name) == "" {
		return "product " + p.ID
	}
	return fmt.Sprintf("%q", p.Name)
}

func priceText(d *decimal.Decimal) string {
	if d == nil {
		return "missing"
	}
	return d.String()
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}

// CountSeverity counts findings with severity s.
func CountSeverity(findings []Finding, s decisionlog.Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}
