// ABOUTME: Tests for the quorum accumulator.
// ABOUTME: Covers quorum crossing, both policies, report modes, eviction, expiry, and quorum changes.

package accumulator

import (
	"bytes"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-accumulator/cache"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newCapacity(t *testing.T, quorum, capacity int) *Accumulator[int, uint32] {
	t.Helper()
	acc, err := WithCapacity[int, uint32](quorum, capacity)
	require.NoError(t, err)
	return acc
}

func TestAccumulator_Add(t *testing.T) {
	acc := newCapacity(t, 1, 100)

	got, ok := acc.Add(2, 3)
	require.True(t, ok)
	assert.Equal(t, []uint32{3}, got)

	assert.False(t, acc.Contains(1))
	assert.True(t, acc.Contains(2))
	assert.False(t, acc.IsQuorumReached(1))
	assert.True(t, acc.IsQuorumReached(2))

	_, ok = acc.Add(1, 3)
	assert.True(t, ok)
	assert.True(t, acc.Contains(1))
	assert.True(t, acc.IsQuorumReached(1))

	_, ok = acc.Add(1, 3)
	assert.True(t, ok)
	assert.True(t, acc.IsQuorumReached(1))

	responses, ok := acc.Get(1)
	require.True(t, ok)
	assert.Equal(t, []uint32{3, 3}, responses)

	responses, ok = acc.Get(2)
	require.True(t, ok)
	assert.Equal(t, []uint32{3}, responses)
}

func TestAccumulator_SingleValueQuorum(t *testing.T) {
	const quorum = 19
	acc := newCapacity(t, quorum, 100)
	key := rand.Int()
	value := rand.Uint32()

	for i := 0; i < quorum-1; i++ {
		_, ok := acc.Add(key, value)
		require.False(t, ok, "add %d should not reach quorum", i+1)

		values, ok := acc.Get(key)
		require.True(t, ok)
		assert.Len(t, values, i+1)
		assert.False(t, acc.IsQuorumReached(key))
	}

	values, ok := acc.Add(key, value)
	require.True(t, ok)
	assert.Len(t, values, quorum)
	assert.True(t, acc.IsQuorumReached(key))
}

func TestAccumulator_MultipleValuesQuorum(t *testing.T) {
	const quorum = 19
	acc := newCapacity(t, quorum, 100)
	key := rand.Int()

	for i := 0; i < quorum-1; i++ {
		_, ok := acc.Add(key, rand.Uint32())
		require.False(t, ok)
		assert.False(t, acc.IsQuorumReached(key))
	}

	_, ok := acc.Add(key, rand.Uint32())
	assert.True(t, ok)
	assert.True(t, acc.IsQuorumReached(key))
}

func TestAccumulator_MultipleKeysQuorum(t *testing.T) {
	const quorum = 19
	acc := newCapacity(t, quorum, 100)
	key := 1000
	noiseKeys := []int{1, 2, 3, 4, 5}

	for i := 0; i < quorum-1; i++ {
		for _, noise := range noiseKeys {
			acc.Add(noise, rand.Uint32())
		}
		_, ok := acc.Add(key, rand.Uint32())
		require.False(t, ok)
		assert.False(t, acc.IsQuorumReached(key))
	}

	_, ok := acc.Add(key, rand.Uint32())
	assert.True(t, ok)
	assert.True(t, acc.IsQuorumReached(key))
}

func TestAccumulator_ReachedExactlyOnQuorumthCall(t *testing.T) {
	for _, quorum := range []int{1, 2, 3, 7, 19} {
		acc := newCapacity(t, quorum, 10)
		for i := 1; i <= quorum; i++ {
			_, ok := acc.Add(42, uint32(i))
			assert.Equal(t, i == quorum, ok, "quorum=%d call=%d", quorum, i)
		}
	}
}

func TestAccumulator_Delete(t *testing.T) {
	acc := newCapacity(t, 2, 100)

	_, ok := acc.Add(1, 1)
	assert.False(t, ok)
	assert.True(t, acc.Contains(1))
	assert.False(t, acc.IsQuorumReached(1))

	responses, ok := acc.Get(1)
	require.True(t, ok)
	assert.Equal(t, []uint32{1}, responses)

	acc.Delete(1)
	_, ok = acc.Get(1)
	assert.False(t, ok)
	assert.False(t, acc.Contains(1))

	_, ok = acc.Add(1, 1)
	assert.False(t, ok)
	got, ok := acc.Add(1, 1)
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 1}, got)
	assert.True(t, acc.IsQuorumReached(1))

	acc.Delete(1)
	_, ok = acc.Get(1)
	assert.False(t, ok)
}

func TestAccumulator_Fill(t *testing.T) {
	acc := newCapacity(t, 1, 1000)

	for count := 0; count < 1000; count++ {
		_, ok := acc.Add(count, 1)
		require.True(t, ok)
		assert.True(t, acc.Contains(count))
		assert.True(t, acc.IsQuorumReached(count))
	}

	for count := 0; count < 1000; count++ {
		responses, ok := acc.Get(count)
		require.True(t, ok)
		assert.Equal(t, []uint32{1}, responses)
	}
}

func TestAccumulator_CacheRemovals(t *testing.T) {
	acc := newCapacity(t, 2, 1000)

	for count := 0; count < 1000; count++ {
		_, ok := acc.Add(count, 1)
		require.False(t, ok)
		require.True(t, acc.Contains(count))

		responses, ok := acc.Get(count)
		require.True(t, ok)
		require.Equal(t, []uint32{1}, responses)
	}

	_, ok := acc.Add(1000, 1)
	assert.False(t, ok)
	assert.True(t, acc.Contains(1000))
	assert.Equal(t, 1000, acc.CacheSize())

	for count := 0; count < 1000; count++ {
		_, ok := acc.Get(count)
		require.False(t, ok, "key %d should have been evicted", count)

		_, ok = acc.Add(count+1001, 1)
		require.False(t, ok)
		require.True(t, acc.Contains(count+1001))
		require.Equal(t, 1000, acc.CacheSize())
	}
}

func TestAccumulator_SetQuorum(t *testing.T) {
	acc := newCapacity(t, 3, 100)

	acc.Add(1, 10)
	acc.Add(1, 20)
	assert.False(t, acc.IsQuorumReached(1))

	require.NoError(t, acc.SetQuorum(2))
	assert.Equal(t, 2, acc.Quorum())
	assert.True(t, acc.IsQuorumReached(1), "lowered quorum applies to existing entries")

	require.NoError(t, acc.SetQuorum(5))
	assert.False(t, acc.IsQuorumReached(1), "raised quorum applies to existing entries")

	err := acc.SetQuorum(-1)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 5, acc.Quorum())
}

func TestAccumulator_ZeroQuorum(t *testing.T) {
	acc := newCapacity(t, 0, 10)

	got, ok := acc.Add(7, 9)
	require.True(t, ok)
	assert.Equal(t, []uint32{9}, got)
	assert.False(t, acc.IsQuorumReached(8), "absent key never reaches quorum")
}

func TestAccumulator_SnapshotIsIndependent(t *testing.T) {
	acc := newCapacity(t, 1, 10)

	got, ok := acc.Add(1, 1)
	require.True(t, ok)
	got[0] = 99

	acc.Add(1, 2)
	values, _ := acc.Get(1)
	assert.Equal(t, []uint32{1, 2}, values)
	assert.Equal(t, []uint32{99}, got)
}

func TestAccumulator_Distinct(t *testing.T) {
	acc, err := DistinctWithCapacity[string, string](2, 10)
	require.NoError(t, err)
	assert.Equal(t, Distinct, acc.Policy())

	_, ok := acc.Add("k", "a")
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		_, ok = acc.Add("k", "a")
		assert.False(t, ok, "duplicate must not advance quorum")
	}
	values, _ := acc.Get("k")
	assert.Equal(t, []string{"a"}, values)

	got, ok := acc.Add("k", "b")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	// Duplicates after quorum keep reporting the unchanged set.
	got, ok = acc.Add("k", "a")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestAccumulator_ReportOnCrossing(t *testing.T) {
	acc, err := New[string, int](Config{
		Quorum: 2,
		Bound:  cache.Capacity(10),
		Report: ReportOnCrossing,
	})
	require.NoError(t, err)

	_, ok := acc.Add("k", 1)
	assert.False(t, ok)
	got, ok := acc.Add("k", 2)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)

	_, ok = acc.Add("k", 3)
	assert.False(t, ok, "only the crossing call reports")
	assert.True(t, acc.IsQuorumReached("k"))

	values, _ := acc.Get("k")
	assert.Equal(t, []int{1, 2, 3}, values, "values are still accumulated after quorum")
}

func TestAccumulator_ReportOnCrossing_ZeroQuorum(t *testing.T) {
	acc, err := New[string, int](Config{
		Quorum: 0,
		Bound:  cache.Capacity(10),
		Report: ReportOnCrossing,
	})
	require.NoError(t, err)

	_, ok := acc.Add("k", 1)
	assert.True(t, ok, "first contribution crosses a zero quorum")
	_, ok = acc.Add("k", 2)
	assert.False(t, ok)
}

func TestAccumulator_Duration(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	acc, err := New[int, int](Config{
		Quorum: 3,
		Bound:  cache.Duration(time.Minute),
		Clock:  clk.Now,
	})
	require.NoError(t, err)

	acc.Add(1, 1)
	acc.Add(2, 1)

	clk.Advance(45 * time.Second)
	acc.Add(2, 2) // refresh key 2

	clk.Advance(30 * time.Second)
	assert.False(t, acc.Contains(1), "idle key should expire")
	_, ok := acc.Get(1)
	assert.False(t, ok)
	assert.True(t, acc.Contains(2))
	assert.Equal(t, 1, acc.CacheSize())

	// An expired key starts over.
	acc.Add(1, 5)
	values, _ := acc.Get(1)
	assert.Equal(t, []int{5}, values)
}

func TestAccumulator_OnEvict(t *testing.T) {
	acc := newCapacity(t, 5, 2)

	evicted := map[int][]uint32{}
	acc.OnEvict(func(key int, values []uint32) {
		evicted[key] = values
	})

	acc.Add(1, 1)
	acc.Add(1, 2)
	acc.Add(2, 1)
	acc.Add(3, 1)

	assert.Equal(t, map[int][]uint32{1: {1, 2}}, evicted)

	acc.Delete(2)
	assert.Len(t, evicted, 1, "delete is not an eviction")
}

func TestAccumulator_Keys(t *testing.T) {
	acc := newCapacity(t, 2, 10)
	for _, k := range []int{9, 3, 6} {
		acc.Add(k, 1)
	}
	assert.Equal(t, []int{3, 6, 9}, acc.Keys())
}

func TestAccumulator_ZeroCapacity(t *testing.T) {
	acc := newCapacity(t, 1, 0)

	got, ok := acc.Add(1, 4)
	require.True(t, ok, "the add still sees its own contribution")
	assert.Equal(t, []uint32{4}, got)
	assert.False(t, acc.Contains(1))
	assert.Equal(t, 0, acc.CacheSize())
}

func TestAccumulator_Scenarios(t *testing.T) {
	t.Run("quorum two multiset", func(t *testing.T) {
		acc := newCapacity(t, 2, 100)

		_, ok := acc.Add(1, 1)
		assert.False(t, ok)
		values, _ := acc.Get(1)
		assert.Equal(t, []uint32{1}, values)

		got, ok := acc.Add(1, 1)
		require.True(t, ok)
		assert.Equal(t, []uint32{1, 1}, got)

		acc.Delete(1)
		_, ok = acc.Get(1)
		assert.False(t, ok)
	})

	t.Run("quorum one", func(t *testing.T) {
		acc := newCapacity(t, 1, 100)

		got, ok := acc.Add(2, 3)
		require.True(t, ok)
		assert.Equal(t, []uint32{3}, got)
		assert.False(t, acc.Contains(1))
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"capacity", Config{Quorum: 2, Bound: cache.Capacity(10)}, false},
		{"duration", Config{Quorum: 2, Bound: cache.Duration(time.Second)}, false},
		{"negative quorum", Config{Quorum: -1, Bound: cache.Capacity(10)}, true},
		{"missing bound", Config{Quorum: 1}, true},
		{"zero duration", Config{Quorum: 1, Bound: cache.Duration(0)}, true},
		{"unknown policy", Config{Quorum: 1, Bound: cache.Capacity(1), Policy: Policy(9)}, true},
		{"unknown report", Config{Quorum: 1, Bound: cache.Capacity(1), Report: ReportMode(9)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConstructors_RejectInvalid(t *testing.T) {
	_, err := WithDuration[int, int](1, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, cache.ErrInvalidBound)

	_, err = WithCapacity[int, int](-1, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMultiset[int, []byte](Config{Quorum: 1, Bound: cache.Capacity(1), Policy: Distinct})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewMultiset_NonComparableValues(t *testing.T) {
	acc, err := NewMultiset[string, []byte](Config{Quorum: 2, Bound: cache.Capacity(4)})
	require.NoError(t, err)

	acc.Add("k", []byte("a"))
	got, ok := acc.Add("k", []byte("a"))
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("a")}, got)
}

func TestNewMultiset_SharedBackingWithoutClone(t *testing.T) {
	acc, err := NewMultiset[string, []byte](Config{Quorum: 1, Bound: cache.Capacity(4)})
	require.NoError(t, err)

	got, ok := acc.Add("k", []byte("a"))
	require.True(t, ok)
	got[0][0] = 'Z'

	values, _ := acc.Get("k")
	assert.Equal(t, "Z", string(values[0]), "plain snapshots share element storage")
}

func TestAccumulator_SetClone(t *testing.T) {
	acc, err := NewMultiset[string, []byte](Config{Quorum: 1, Bound: cache.Capacity(1)})
	require.NoError(t, err)
	acc.SetClone(bytes.Clone)

	var evicted [][]byte
	acc.OnEvict(func(_ string, values [][]byte) {
		evicted = values
	})

	got, ok := acc.Add("k", []byte("a"))
	require.True(t, ok)
	got[0][0] = 'Z'

	values, ok := acc.Get("k")
	require.True(t, ok)
	assert.Equal(t, "a", string(values[0]), "Add snapshot must not reach held values")

	values[0][0] = 'Y'
	again, _ := acc.Get("k")
	assert.Equal(t, "a", string(again[0]), "Get snapshot must not reach held values")

	acc.Add("other", []byte("b"))
	require.Len(t, evicted, 1)
	assert.Equal(t, "a", string(evicted[0]))
	evicted[0][0] = 'X'

	acc.SetClone(nil)
	acc.Add("other", []byte("c"))
	values, _ = acc.Get("other")
	assert.Equal(t, []string{"b", "c"}, []string{string(values[0]), string(values[1])})
}

func TestAccumulator_DistinctDuplicateDoesNotCross(t *testing.T) {
	acc, err := New[string, string](Config{
		Quorum: 2,
		Bound:  cache.Capacity(10),
		Policy: Distinct,
		Report: ReportOnCrossing,
	})
	require.NoError(t, err)

	_, ok := acc.Add("k", "a")
	assert.False(t, ok)
	_, ok = acc.Add("k", "a")
	assert.False(t, ok)

	got, ok := acc.Add("k", "b")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok = acc.Add("k", "b")
	assert.False(t, ok, "duplicate after quorum is not a crossing")
	_, ok = acc.Add("k", "c")
	assert.False(t, ok)
}

func TestAccumulator_ReportOnCrossing_LoweredQuorum(t *testing.T) {
	acc, err := New[string, int](Config{
		Quorum: 5,
		Bound:  cache.Capacity(10),
		Report: ReportOnCrossing,
	})
	require.NoError(t, err)

	acc.Add("k", 1)
	acc.Add("k", 2)
	require.NoError(t, acc.SetQuorum(2))
	assert.True(t, acc.IsQuorumReached("k"))

	reports := 0
	for i := 0; i < 7; i++ {
		if _, ok := acc.Add("k", i); ok {
			reports++
		}
	}
	assert.Equal(t, 0, reports, "a lowered threshold is not a crossing")
	assert.True(t, acc.IsQuorumReached("k"))
}

func TestParsePolicyAndReportMode(t *testing.T) {
	p, err := ParsePolicy("set")
	require.NoError(t, err)
	assert.Equal(t, Distinct, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Multiset, p)

	_, err = ParsePolicy("bag")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	m, err := ParseReportMode("crossing")
	require.NoError(t, err)
	assert.Equal(t, ReportOnCrossing, m)

	_, err = ParseReportMode("sometimes")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, "distinct", Distinct.String())
	assert.Equal(t, "every", ReportEvery.String())
}
