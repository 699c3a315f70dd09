package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opswatch/internal/decisionlog"
	"opswatch/internal/storage"
	"opswatch/internal/upstream"
)

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func product(id, name, price string) upstream.Product {
	p := upstream.Product{ID: id, Name: name, ImageURL: "https://cdn.example.com/" + id + ".jpg"}
	if price != "" {
		p.Price = dec(price)
	}
	return p
}

func byID(findings []Finding) map[string]Finding {
	out := make(map[string]Finding, len(findings))
	for _, f := range findings {
		out[f.ID] = f
	}
	return out
}

func snapshotOf(prices map[string]string) *PriceSnapshot {
	snap := &PriceSnapshot{Prices: map[string]decimal.Decimal{}}
	for id, v := range prices {
		snap.Prices[id] = decimal.RequireFromString(v)
	}
	return snap
}

func TestScanInvalidPrice(t *testing.T) {
	findings, next := Scan(time.Now(), []upstream.Product{
		product("a", "Zero", "0"),
		product("b", "Missing", ""),
		product("c", "Negative", "-4"),
		product("d", "Fine", "9.99"),
	}, nil)

	got := byID(findings)
	for _, id := range []string{"a", "b", "c"} {
		f, ok := got["price:"+id]
		require.True(t, ok, id)
		assert.Equal(t, decisionlog.SeverityHigh, f.Severity)
		assert.Equal(t, TitleInvalidPrice, f.Title)
		assert.Equal(t, id, f.ProductID)
	}
	assert.NotContains(t, got, "price:d")
	assert.Len(t, next.Prices, 1, "only valid prices enter the snapshot")
}

func TestScanMissingImage(t *testing.T) {
	cases := []struct {
		url     string
		missing bool
	}{
		{"", true},
		{"   ", true},
		{"https://cdn.example.com/img/", true},
		{"https://cdn.example.com/PlaceHolder.png", true},
		{"/static/no-image.svg", true},
		{"https://cdn.example.com/noimage", true},
		{"https://cdn.example.com/apple.jpg", false},
	}
	for i, tc := range cases {
		p := product(fmt.Sprint(i), "item", "1")
		p.ImageURL = tc.url
		findings, _ := Scan(time.Now(), []upstream.Product{p}, nil)
		_, flagged := byID(findings)["image:"+p.ID]
		assert.Equal(t, tc.missing, flagged, tc.url)
	}
}

func TestScanSuspiciousDiscount(t *testing.T) {
	above := product("a", "A", "10")
	above.DiscountPrice = dec("12")
	equal := product("b", "B", "10")
	equal.DiscountPrice = dec("10")
	zero := product("c", "C", "10")
	zero.DiscountPrice = dec("0")
	fine := product("d", "D", "10")
	fine.DiscountPrice = dec("7.5")

	got := byID(mustScan(t, above, equal, zero, fine))
	for _, id := range []string{"a", "b", "c"} {
		f, ok := got["discount:"+id]
		require.True(t, ok, id)
		assert.Equal(t, decisionlog.SeverityMed, f.Severity)
		assert.Equal(t, TitleBadDiscount, f.Title)
	}
	assert.NotContains(t, got, "discount:d")
}

func mustScan(t *testing.T, products ...upstream.Product) []Finding {
	t.Helper()
	findings, _ := Scan(time.Now(), products, nil)
	return findings
}

func TestScanDuplicateNamesOneFindingPerGroup(t *testing.T) {
	findings := mustScan(t,
		product("1", "Green  Apple", "1"),
		product("2", " green apple ", "1"),
		product("3", "GREEN APPLE", "1"),
		product("4", "Banana", "1"),
		product("5", "banana", "1"),
	)
	var dups []Finding
	for _, f := range findings {
		if f.Title == TitleDuplicateName {
			dups = append(dups, f)
		}
	}
	require.Len(t, dups, 1)
	assert.Equal(t, "dup:green apple", dups[0].ID)
	assert.Equal(t, decisionlog.SeverityLow, dups[0].Severity)
	assert.Contains(t, dups[0].Detail, "1, 2, 3")
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeName("  A \t b\n  C "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestScanPriceChanges(t *testing.T) {
	prev := snapshotOf(map[string]string{"med": "100", "high": "100", "small": "100", "drop": "100", "new": "0"})
	findings, _ := Scan(time.Now(), []upstream.Product{
		product("med", "Med", "136"),
		product("high", "High", "176"),
		product("small", "Small", "120"),
		product("drop", "Drop", "60"),
		product("new", "New", "50"),
	}, prev)

	var deltas []Finding
	for _, f := range findings {
		if f.Title == TitlePriceChange {
			deltas = append(deltas, f)
		}
	}
	require.Len(t, deltas, 3)
	assert.Equal(t, "delta:high", deltas[0].ID)
	assert.Equal(t, decisionlog.SeverityHigh, deltas[0].Severity)
	assert.Contains(t, deltas[0].Detail, "+76%")
	assert.Equal(t, "delta:drop", deltas[1].ID)
	assert.Contains(t, deltas[1].Detail, "-40%")
	assert.Equal(t, "delta:med", deltas[2].ID)
	assert.Equal(t, decisionlog.SeverityMed, deltas[2].Severity)
}

func TestScanPriceDroppedToZero(t *testing.T) {
	prev := snapshotOf(map[string]string{"zero": "80", "gone": "80"})
	findings, next := Scan(time.Now(), []upstream.Product{
		product("zero", "Zero", "0"),
		product("gone", "Gone", ""),
	}, prev)

	got := byID(findings)
	require.Contains(t, got, "delta:zero")
	assert.Equal(t, decisionlog.SeverityHigh, got["delta:zero"].Severity)
	assert.Contains(t, got["delta:zero"].Detail, "-100%")
	assert.Contains(t, got, "price:zero")
	assert.NotContains(t, got, "delta:gone")
	assert.Contains(t, got, "price:gone")
	assert.Empty(t, next.Prices)
}

func TestScanPriceChangesCapped(t *testing.T) {
	prices := map[string]string{}
	var products []upstream.Product
	for i := 0; i < MaxPriceChanges+10; i++ {
		id := fmt.Sprintf("p%02d", i)
		prices[id] = "100"
		products = append(products, product(id, id, fmt.Sprint(200+i)))
	}
	findings, _ := Scan(time.Now(), products, snapshotOf(prices))
	require.Len(t, findings, MaxPriceChanges)
	assert.Equal(t, "delta:p39", findings[0].ID, "largest swing first")
}

type fakeProducts struct {
	products []upstream.Product
	err      error
}

func (f *fakeProducts) Products(context.Context) ([]upstream.Product, error) {
	return f.products, f.err
}

type recordingObserver struct{ results []Result }

func (o *recordingObserver) ObserveScan(r Result) { o.results = append(o.results, r) }

func newScanner(src ProductSource, kv storage.KV, opts Options) (*Scanner, *decisionlog.Log) {
	log := decisionlog.New(context.Background(), kv, decisionlog.Options{}, zerolog.Nop())
	return NewScanner(src, log, kv, opts, zerolog.Nop()), log
}

func TestScannerOverwritesSnapshotEveryRun(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	src := &fakeProducts{products: []upstream.Product{product("a", "A", "100")}}
	s, _ := newScanner(src, kv, Options{})

	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, first.Findings)

	src.products = []upstream.Product{product("a", "A", "150")}
	second, err := s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, second.Findings, 1)
	assert.Equal(t, "delta:a", second.Findings[0].ID)

	third, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, third.Findings, "diff runs against the latest snapshot")

	stored, found, err := storage.NewDocument[PriceSnapshot](kv, storage.KeyPriceSnapshot).Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.Prices["a"].Equal(decimal.NewFromInt(150)))
}

func TestScannerFetchFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	obs := &recordingObserver{}
	src := &fakeProducts{products: []upstream.Product{product("a", "A", "0")}}
	s, _ := newScanner(src, kv, Options{Observer: obs})
	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.True(t, first.Available)
	require.NotEmpty(t, first.Findings)

	src.products = []upstream.Product{product("a", "A", "100")}
	_, err = s.Run(ctx)
	require.NoError(t, err)

	src.err = errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	res, err := s.Run(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NotContains(t, err.Error(), "dial tcp")
	assert.False(t, res.Available)
	assert.Empty(t, res.Findings)

	current := s.Current()
	require.NotNil(t, current)
	assert.False(t, current.Available, "a failed fetch must not leave the previous findings as current")
	assert.Empty(t, current.Findings)
	require.Len(t, obs.results, 3)
	assert.False(t, obs.results[2].Available)

	src.err = nil
	src.products = []upstream.Product{product("a", "A", "200")}
	res, err = s.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Findings, 1)
}

func TestScannerLimit(t *testing.T) {
	src := &fakeProducts{products: []upstream.Product{
		product("a", "A", "1"), product("b", "B", "1"), product("c", "C", "0"),
	}}
	obs := &recordingObserver{}
	s, _ := newScanner(src, storage.NewMemoryKV(), Options{Limit: 2, Observer: obs})
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 3, res.Total)
	assert.True(t, res.Truncated)
	assert.Empty(t, res.Findings, "the invalid product was beyond the limit")
	assert.Len(t, obs.results, 1)
}

func TestScannerLogsHighFindingsIndividually(t *testing.T) {
	src := &fakeProducts{products: []upstream.Product{
		product("a", "A", "0"), product("b", "B", "0"), product("c", "C", "1"),
	}}
	s, log := newScanner(src, storage.NewMemoryKV(), Options{})
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	entries := log.List()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, decisionlog.TypeAlert, e.Type)
		assert.Equal(t, decisionlog.SourceOps, e.Source)
		assert.Contains(t, e.Title, TitleInvalidPrice)
	}
}

func TestScannerSummarizesManyHighFindings(t *testing.T) {
	var products []upstream.Product
	for i := 0; i < SummaryThreshold; i++ {
		products = append(products, product(fmt.Sprint(i), fmt.Sprint("item ", i), "0"))
	}
	s, log := newScanner(&fakeProducts{products: products}, storage.NewMemoryKV(), Options{})
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SummaryThreshold, CountSeverity(res.Findings, decisionlog.SeverityHigh))

	entries := log.List()
	require.Len(t, entries, 1)
	assert.Equal(t, TitleSummary, entries[0].Title)
	assert.Equal(t, decisionlog.TypeNote, entries[0].Type)
	assert.Equal(t, decisionlog.SourceOps, entries[0].Source)
}
