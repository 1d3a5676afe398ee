package suggest_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homestock/homestock/internal/storage"
	"github.com/homestock/homestock/internal/suggest"
)

// stepClock advances one second on every reading so last_used ordering
// follows call order.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

type testStore interface {
	suggest.Store
	Close() error
}

func newSQLite(t *testing.T) testStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(":memory:", storage.WithClock(newClock().Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemory(t *testing.T) testStore {
	t.Helper()
	return storage.NewMemoryStore(storage.WithClock(newClock().Now))
}

// forEachBackend runs fn against a fresh service on every store backend.
func forEachBackend(t *testing.T, opts []suggest.Option, fn func(t *testing.T, svc *suggest.Service, store suggest.Store)) {
	backends := map[string]func(*testing.T) testStore{
		"sqlite": newSQLite,
		"memory": newMemory,
	}
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			store := mk(t)
			fn(t, suggest.New(store, opts...), store)
		})
	}
}

func record(t *testing.T, svc *suggest.Service, tenant suggest.TenantID, field suggest.FieldType, value string, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		_, err := svc.RecordUsage(context.Background(), tenant, field, value)
		require.NoError(t, err)
	}
}

func values(s []suggest.Suggestion) []string {
	out := make([]string, len(s))
	for i, sg := range s {
		out[i] = sg.Value
	}
	return out
}

func TestRecordUsage_FrequencyEqualsCallCount(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		counts := map[string]int{"Dairy": 5, "Produce": 1, "Frozen": 3}
		for v, n := range counts {
			record(t, svc, "h1", suggest.FieldCategory, v, n)
		}

		entries, err := store.List(ctx, "h1", suggest.FieldCategory)
		require.NoError(t, err)
		require.Len(t, entries, len(counts))
		for _, e := range entries {
			assert.Equal(t, counts[e.Value], e.Frequency, "frequency of %q", e.Value)
		}
	})
}

func TestRecordUsage_TrimsValue(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		record(t, svc, "h1", suggest.FieldUnit, "  kg ", 1)
		e, err := svc.RecordUsage(context.Background(), "h1", suggest.FieldUnit, "kg")
		require.NoError(t, err)
		assert.Equal(t, "kg", e.Value)
		assert.Equal(t, 2, e.Frequency)
	})
}

func TestRecordUsage_BlankValueRejected(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		for _, v := range []string{"", "  ", "\t\n"} {
			_, err := svc.RecordUsage(ctx, "h1", suggest.FieldUnit, v)
			assert.ErrorIs(t, err, suggest.ErrInvalidValue, "value %q", v)
		}

		count, err := store.Count(ctx, "h1", suggest.FieldUnit)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestRecordUsage_InvalidScope(t *testing.T) {
	svc := suggest.New(newMemory(t))
	ctx := context.Background()

	_, err := svc.RecordUsage(ctx, "h1", suggest.FieldType("name_prefix"), "Milk")
	assert.ErrorIs(t, err, suggest.ErrUnknownFieldType)

	_, err = svc.RecordUsage(ctx, "", suggest.FieldUnit, "kg")
	assert.ErrorIs(t, err, suggest.ErrInvalidTenant)
}

func TestRecordUsage_EvictsLeastFrequentOldest(t *testing.T) {
	opts := []suggest.Option{suggest.WithMaxCacheSize(2)}
	forEachBackend(t, opts, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		record(t, svc, "h1", suggest.FieldCategory, "Dairy", 3)
		record(t, svc, "h1", suggest.FieldCategory, "Produce", 1)
		record(t, svc, "h1", suggest.FieldCategory, "Meat", 1)

		entries, err := store.List(ctx, "h1", suggest.FieldCategory)
		require.NoError(t, err)
		got := map[string]int{}
		for _, e := range entries {
			got[e.Value] = e.Frequency
		}
		assert.Equal(t, map[string]int{"Dairy": 3, "Meat": 1}, got)
	})
}

func TestRecordUsage_NewEntryCanBeTheVictim(t *testing.T) {
	opts := []suggest.Option{suggest.WithMaxCacheSize(1)}
	forEachBackend(t, opts, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		record(t, svc, "h1", suggest.FieldUnit, "kg", 3)
		record(t, svc, "h1", suggest.FieldUnit, "ea", 1)

		got, err := svc.GetSuggestions(ctx, "h1", suggest.FieldUnit, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"kg"}, values(got))
	})
}

func TestRecordUsage_CapHoldsAndEvictsLowestFrequency(t *testing.T) {
	const maxSize = 3
	opts := []suggest.Option{suggest.WithMaxCacheSize(maxSize)}
	forEachBackend(t, opts, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		rng := rand.New(rand.NewSource(42))

		for i := 0; i < 200; i++ {
			before, err := store.List(ctx, "h1", suggest.FieldCategory)
			require.NoError(t, err)

			value := fmt.Sprintf("v%d", rng.Intn(8))
			_, err = svc.RecordUsage(ctx, "h1", suggest.FieldCategory, value)
			require.NoError(t, err)

			after, err := store.List(ctx, "h1", suggest.FieldCategory)
			require.NoError(t, err)
			require.LessOrEqual(t, len(after), maxSize)

			survivors := map[string]int{}
			minSurvivor := 1 << 30
			for _, e := range after {
				survivors[e.Value] = e.Frequency
				if e.Frequency < minSurvivor {
					minSurvivor = e.Frequency
				}
			}
			for _, e := range before {
				if _, ok := survivors[e.Value]; !ok {
					assert.LessOrEqual(t, e.Frequency, minSurvivor,
						"evicted %q (freq %d) while a rarer entry survived", e.Value, e.Frequency)
				}
			}
		}
	})
}

func TestRecordUsage_ConcurrentSameKey(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		const n = 50

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.RecordUsage(ctx, "h1", suggest.FieldLocationPath, "Kitchen > Fridge")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		entries, err := store.List(ctx, "h1", suggest.FieldLocationPath)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, n, entries[0].Frequency)
	})
}

func TestRecordUsage_ConcurrentDistinctKeysRespectCap(t *testing.T) {
	const maxSize = 5
	opts := []suggest.Option{suggest.WithMaxCacheSize(maxSize)}
	forEachBackend(t, opts, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.RecordUsage(ctx, "h1", suggest.FieldUnit, fmt.Sprintf("unit-%d", i))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		count, err := store.Count(ctx, "h1", suggest.FieldUnit)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, maxSize)
	})
}

func TestGetSuggestions_SubstringCaseInsensitive(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		record(t, svc, "h1", suggest.FieldCategory, "Dairy", 3)
		record(t, svc, "h1", suggest.FieldCategory, "Air Freshener", 1)
		record(t, svc, "h1", suggest.FieldCategory, "Produce", 2)

		got, err := svc.GetSuggestions(context.Background(), "h1", suggest.FieldCategory, "air", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"Dairy", "Air Freshener"}, values(got))
		assert.Equal(t, 3, got[0].Frequency)
		assert.False(t, got[0].LastUsed.IsZero())
	})
}

func TestGetSuggestions_MidPathMatch(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		record(t, svc, "h1", suggest.FieldLocationPath, "Kitchen > Fridge > Top Shelf", 1)
		record(t, svc, "h1", suggest.FieldLocationPath, "Garage > Freezer", 1)

		got, err := svc.GetSuggestions(context.Background(), "h1", suggest.FieldLocationPath, "FRIDGE", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"Kitchen > Fridge > Top Shelf"}, values(got))
	})
}

func TestGetSuggestions_Ordering(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		record(t, svc, "h1", suggest.FieldUnit, "kg", 2)
		record(t, svc, "h1", suggest.FieldUnit, "g", 1)   // older, freq 1
		record(t, svc, "h1", suggest.FieldUnit, "L", 1)   // newer, freq 1
		record(t, svc, "h1", suggest.FieldUnit, "box", 3) // most frequent

		got, err := svc.GetSuggestions(context.Background(), "h1", suggest.FieldUnit, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"box", "kg", "L", "g"}, values(got))
	})
}

func TestGetSuggestions_EqualTimestampsOrderByValue(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore(storage.WithClock(func() time.Time { return fixed }))
	svc := suggest.New(store)

	for _, v := range []string{"pcs", "bag", "can"} {
		record(t, svc, "h1", suggest.FieldUnit, v, 1)
	}

	got, err := svc.GetSuggestions(context.Background(), "h1", suggest.FieldUnit, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"bag", "can", "pcs"}, values(got))
}

func TestGetSuggestions_LimitAndDefault(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		for i := 0; i < 15; i++ {
			record(t, svc, "h1", suggest.FieldCategory, fmt.Sprintf("cat-%02d", i), 1)
		}
		ctx := context.Background()

		got, err := svc.GetSuggestions(ctx, "h1", suggest.FieldCategory, "", 3)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = svc.GetSuggestions(ctx, "h1", suggest.FieldCategory, "", 0)
		require.NoError(t, err)
		assert.Len(t, got, suggest.DefaultLimit)
	})
}

func TestGetSuggestions_EmptyScope(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		got, err := svc.GetSuggestions(context.Background(), "h1", suggest.FieldCategory, "", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestGetSuggestions_MinFrequency(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		record(t, svc, "h1", suggest.FieldUnit, "kg", 4)
		record(t, svc, "h1", suggest.FieldUnit, "ea", 1)

		got, err := svc.GetSuggestions(context.Background(), "h1", suggest.FieldUnit, "", 10,
			suggest.WithMinFrequency(2))
		require.NoError(t, err)
		assert.Equal(t, []string{"kg"}, values(got))
	})
}

func TestGetSuggestions_TenantIsolation(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		record(t, svc, "h2", suggest.FieldCategory, "Dairy", 1)

		before, err := svc.GetSuggestions(ctx, "h2", suggest.FieldCategory, "", 10)
		require.NoError(t, err)

		record(t, svc, "h1", suggest.FieldCategory, "Dairy", 5)
		record(t, svc, "h1", suggest.FieldCategory, "Snacks", 1)

		after, err := svc.GetSuggestions(ctx, "h2", suggest.FieldCategory, "", 10)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		require.Len(t, after, 1)
		assert.Equal(t, 1, after[0].Frequency)
	})
}

func TestTopValues(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		record(t, svc, "h1", suggest.FieldCategory, "Food", 3)
		record(t, svc, "h1", suggest.FieldCategory, "Tools", 2)
		record(t, svc, "h1", suggest.FieldCategory, "Garden", 1)

		got, err := svc.TopValues(context.Background(), "h1", suggest.FieldCategory, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"Food", "Tools"}, got)
	})
}

func TestCleanupLowFrequency(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		record(t, svc, "h1", suggest.FieldUnit, "kg", 5)
		record(t, svc, "h1", suggest.FieldUnit, "ea", 1)

		removed, err := svc.CleanupLowFrequency(ctx, "h1", suggest.FieldUnit, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		got, err := svc.GetSuggestions(ctx, "h1", suggest.FieldUnit, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"kg"}, values(got))
	})
}

func TestCleanupLowFrequency_NeverEmptiesScope(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		record(t, svc, "h1", suggest.FieldCategory, "Old", 1)
		record(t, svc, "h1", suggest.FieldCategory, "New", 1)

		removed, err := svc.CleanupLowFrequency(ctx, "h1", suggest.FieldCategory, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		got, err := svc.GetSuggestions(ctx, "h1", suggest.FieldCategory, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"New"}, values(got))
	})
}

func TestCleanupLowFrequency_AllFieldsAndDefaultThreshold(t *testing.T) {
	opts := []suggest.Option{suggest.WithMinFrequencyThreshold(3)}
	forEachBackend(t, opts, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		record(t, svc, "h1", suggest.FieldUnit, "kg", 3)
		record(t, svc, "h1", suggest.FieldUnit, "g", 2)
		record(t, svc, "h1", suggest.FieldCategory, "Food", 4)
		record(t, svc, "h1", suggest.FieldCategory, "Misc", 1)
		record(t, svc, "h2", suggest.FieldCategory, "Misc", 1)
		record(t, svc, "h2", suggest.FieldCategory, "Other", 1)

		removed, err := svc.CleanupLowFrequency(ctx, "h1", suggest.AllFields, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		// Other tenants are untouched.
		count, err := store.Count(ctx, "h2", suggest.FieldCategory)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestCleanupLowFrequency_UnknownField(t *testing.T) {
	svc := suggest.New(newMemory(t))
	_, err := svc.CleanupLowFrequency(context.Background(), "h1", suggest.FieldType("colour"), 2)
	assert.ErrorIs(t, err, suggest.ErrUnknownFieldType)
}

func TestInitializeFromSnapshot(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		applied, err := svc.InitializeFromSnapshot(ctx, "h1", suggest.FieldCategory,
			[]string{"Dairy", "", "Dairy", "  ", "Meat", " Dairy "})
		require.NoError(t, err)
		assert.Equal(t, 4, applied)

		got, err := svc.GetSuggestions(ctx, "h1", suggest.FieldCategory, "", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Dairy", got[0].Value)
		assert.Equal(t, 3, got[0].Frequency)
	})
}

func TestInitializeFromSnapshot_IsAdditive(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		snapshot := []string{"kg", "kg", "ea"}
		_, err := svc.InitializeFromSnapshot(ctx, "h1", suggest.FieldUnit, snapshot)
		require.NoError(t, err)
		_, err = svc.InitializeFromSnapshot(ctx, "h1", suggest.FieldUnit, snapshot)
		require.NoError(t, err)

		got, err := svc.GetSuggestions(ctx, "h1", suggest.FieldUnit, "kg", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 4, got[0].Frequency)
	})
}

func TestInitializeFromSnapshot_RespectsCap(t *testing.T) {
	opts := []suggest.Option{suggest.WithMaxCacheSize(2)}
	forEachBackend(t, opts, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		applied, err := svc.InitializeFromSnapshot(ctx, "h1", suggest.FieldUnit,
			[]string{"kg", "kg", "g", "L", "ml", "ea"})
		require.NoError(t, err)
		assert.Equal(t, 6, applied)

		count, err := store.Count(ctx, "h1", suggest.FieldUnit)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		got, err := svc.TopValues(ctx, "h1", suggest.FieldUnit, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"kg", "ea"}, got)
	})
}

type mapSource map[suggest.FieldType][]string

func (m mapSource) ExistingValues(_ context.Context, _ suggest.TenantID, field suggest.FieldType) ([]string, error) {
	return m[field], nil
}

func TestInitializeFromSource(t *testing.T) {
	forEachBackend(t, nil, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		src := mapSource{
			suggest.FieldCategory:     {"Food", "Food", "Tools"},
			suggest.FieldUnit:         {"kg"},
			suggest.FieldLocationPath: {},
		}

		counts, err := svc.InitializeFromSource(context.Background(), "h1", src)
		require.NoError(t, err)
		assert.Equal(t, map[suggest.FieldType]int{
			suggest.FieldCategory:     3,
			suggest.FieldUnit:         1,
			suggest.FieldLocationPath: 0,
		}, counts)

		stats, err := svc.GetStatistics(context.Background(), "h1", suggest.AllFields)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalEntries)
		assert.Equal(t, 4, stats.TotalFrequency)
	})
}

func TestGetStatistics(t *testing.T) {
	opts := []suggest.Option{suggest.WithTopValues(2)}
	forEachBackend(t, opts, func(t *testing.T, svc *suggest.Service, store suggest.Store) {
		ctx := context.Background()
		record(t, svc, "h1", suggest.FieldCategory, "Food", 4)
		record(t, svc, "h1", suggest.FieldCategory, "Tools", 1)
		record(t, svc, "h1", suggest.FieldUnit, "kg", 2)
		record(t, svc, "h2", suggest.FieldUnit, "kg", 9)

		stats, err := svc.GetStatistics(ctx, "h1", suggest.AllFields)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalEntries)
		assert.Equal(t, 7, stats.TotalFrequency)
		assert.Equal(t, suggest.FieldStats{Count: 2, TotalFrequency: 5}, stats.ByFieldType[suggest.FieldCategory])
		assert.Equal(t, suggest.FieldStats{Count: 1, TotalFrequency: 2}, stats.ByFieldType[suggest.FieldUnit])
		_, hasLocations := stats.ByFieldType[suggest.FieldLocationPath]
		assert.False(t, hasLocations)

		require.Len(t, stats.TopValues, 2)
		assert.Equal(t, "Food", stats.TopValues[0].Value)
		assert.Equal(t, suggest.FieldCategory, stats.TopValues[0].FieldType)
		assert.Equal(t, "kg", stats.TopValues[1].Value)
		assert.Equal(t, 2, stats.TopValues[1].Frequency)

		unitOnly, err := svc.GetStatistics(ctx, "h1", suggest.FieldUnit)
		require.NoError(t, err)
		assert.Equal(t, 1, unitOnly.TotalEntries)
		assert.Len(t, unitOnly.ByFieldType, 1)
	})
}
