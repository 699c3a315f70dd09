package settings

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opswatch/internal/storage"
)

func TestGetReturnsDefaultsWhenEmpty(t *testing.T) {
	s := NewStore(context.Background(), storage.NewMemoryKV(), zerolog.Nop())
	assert.Equal(t, Defaults(), s.Get())
	assert.False(t, s.Overridden())
}

func TestGetFallsBackPerField(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	raw := `{"MAX_ASSIGN_DISTANCE_KM":7,"MAX_READY_WITHOUT_DRIVER":9,"MAX_CANCEL_RATE":-1,"MAX_ORDERS_LAST_HOUR":40}`
	require.NoError(t, kv.Put(ctx, storage.KeyGuardrails, []byte(raw)))

	got := NewStore(ctx, kv, zerolog.Nop()).Get()
	assert.Equal(t, Guardrails{
		MaxAssignDistanceKM:   7,
		MaxReadyWithoutDriver: 9,
		MaxCancelRate:         Defaults().MaxCancelRate,
		MaxOrdersLastHour:     40,
	}, got)
}

func TestGetIgnoresWrongTypesAndMissingFields(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	raw := `{"MAX_ASSIGN_DISTANCE_KM":"far","MAX_CANCEL_RATE":0.2,"MAX_ORDERS_LAST_HOUR":null}`
	require.NoError(t, kv.Put(ctx, storage.KeyGuardrails, []byte(raw)))

	got := NewStore(ctx, kv, zerolog.Nop()).Get()
	d := Defaults()
	assert.Equal(t, d.MaxAssignDistanceKM, got.MaxAssignDistanceKM)
	assert.Equal(t, d.MaxReadyWithoutDriver, got.MaxReadyWithoutDriver)
	assert.Equal(t, 0.2, got.MaxCancelRate)
	assert.Equal(t, d.MaxOrdersLastHour, got.MaxOrdersLastHour)
}

func TestCorruptDocumentUsesDefaults(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Put(ctx, storage.KeyGuardrails, []byte("[1,2")))
	assert.Equal(t, Defaults(), NewStore(ctx, kv, zerolog.Nop()).Get())
}

func TestSetPersistsAndResetRestoresDefaults(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := NewStore(ctx, kv, zerolog.Nop())

	custom := Guardrails{MaxAssignDistanceKM: 4, MaxReadyWithoutDriver: 2, MaxCancelRate: 0.1, MaxOrdersLastHour: 50}
	s.Set(ctx, custom)
	assert.Equal(t, custom, s.Get())

	reloaded := NewStore(ctx, kv, zerolog.Nop())
	assert.Equal(t, custom, reloaded.Get())
	assert.True(t, reloaded.Overridden())

	reloaded.Reset(ctx)
	assert.Equal(t, Defaults(), reloaded.Get())
	assert.Equal(t, Defaults(), NewStore(ctx, kv, zerolog.Nop()).Get())
}

func TestSetWithNonFiniteValueKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := NewStore(ctx, kv, zerolog.Nop())

	s.Set(ctx, Guardrails{MaxAssignDistanceKM: math.Inf(1), MaxReadyWithoutDriver: 1, MaxCancelRate: 0.5, MaxOrdersLastHour: 3})
	got := NewStore(ctx, kv, zerolog.Nop()).Get()
	assert.Equal(t, Defaults().MaxAssignDistanceKM, got.MaxAssignDistanceKM)
	assert.Equal(t, 1.0, got.MaxReadyWithoutDriver)
}

func TestSubscribersSeeChanges(t *testing.T) {
	ctx := context.Background()
	s := NewStore(ctx, storage.NewMemoryKV(), zerolog.Nop())

	var seen []Guardrails
	unsubscribe := s.Subscribe(func(g Guardrails) { seen = append(seen, g) })

	custom := Defaults()
	custom.MaxOrdersLastHour = 99
	s.Set(ctx, custom)
	s.Reset(ctx)
	unsubscribe()
	s.Set(ctx, custom)

	require.Len(t, seen, 2)
	assert.Equal(t, 99.0, seen[0].MaxOrdersLastHour)
	assert.Equal(t, Defaults(), seen[1])
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Defaults().Validate())

	bad := Defaults()
	bad.MaxCancelRate = 1.5
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.MaxOrdersLastHour = -1
	assert.Error(t, bad.Validate())

	bad = Defaults()
	bad.MaxReadyWithoutDriver = math.NaN()
	assert.Error(t, bad.Validate())
}

func float(v float64) *float64 { return &v }

func TestUpdateAppliesValidPatch(t *testing.T) {
	ctx := context.Background()
	s := NewStore(ctx, storage.NewMemoryKV(), zerolog.Nop())

	got, err := s.Update(ctx, Patch{MaxOrdersLastHour: float(35)})
	require.NoError(t, err)
	assert.Equal(t, 35.0, got.MaxOrdersLastHour)
	assert.Equal(t, Defaults().MaxCancelRate, got.MaxCancelRate)
	assert.True(t, s.Overridden())
	assert.False(t, Patch{MaxCancelRate: float(0)}.Empty())
	assert.True(t, Patch{}.Empty())
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	ctx := context.Background()
	s := NewStore(ctx, storage.NewMemoryKV(), zerolog.Nop())
	_, err := s.Update(ctx, Patch{MaxOrdersLastHour: float(30)})
	require.NoError(t, err)

	got, err := s.Update(ctx, Patch{MaxOrdersLastHour: float(50), MaxCancelRate: float(2)})
	require.Error(t, err)
	assert.Equal(t, "MAX_CANCEL_RATE must satisfy lte=1", Describe(err))
	assert.Equal(t, 30.0, got.MaxOrdersLastHour, "previous value retained")
	assert.Equal(t, 30.0, s.Get().MaxOrdersLastHour)

	_, err = s.Update(ctx, Patch{MaxAssignDistanceKM: float(math.Inf(1))})
	require.Error(t, err)
	assert.Equal(t, "MAX_ASSIGN_DISTANCE_KM must satisfy finite", Describe(err))
}
