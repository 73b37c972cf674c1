package cache

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	symbol string
	id     string
	ts     int64
	value  int
}

func TestArrayEvictsOldest(t *testing.T) {
	t.Parallel()
	a := NewArray[int](3)
	assert.Equal(t, 3, a.Cap())
	for i := 1; i <= 5; i++ {
		a.Append(i)
	}
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, []int{3, 4, 5}, a.Snapshot())
}

func TestArrayNeverDeduplicates(t *testing.T) {
	t.Parallel()
	a := NewArray[record](10)
	r := record{symbol: "BTC/USDT", id: "1"}
	a.Append(r)
	a.Append(r)
	assert.Equal(t, 2, a.Len(), "identical trades are distinct entries")
}

func TestArraySnapshotIsACopy(t *testing.T) {
	t.Parallel()
	a := NewArray[int](2)
	a.Append(1)
	snap := a.Snapshot()
	snap[0] = 42
	assert.Equal(t, []int{1}, a.Snapshot())
}

func TestArrayDefaultCapacity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultCapacity, NewArray[int](0).Cap())
}

func recordKey(r record) (string, string) { return r.symbol, r.id }

func TestBySymbolByIDReplaces(t *testing.T) {
	t.Parallel()
	c := NewBySymbolByID[record](10, recordKey)
	c.Append(record{symbol: "BTC/USDT", id: "1", value: 1})
	c.Append(record{symbol: "BTC/USDT", id: "2", value: 2})
	c.Append(record{symbol: "BTC/USDT", id: "1", value: 3})

	require.Equal(t, 2, c.Len(), "same id must replace, not append")
	snap := c.Snapshot()
	assert.Equal(t, "2", snap[0].id)
	assert.Equal(t, "1", snap[1].id, "replaced record becomes the newest")
	assert.Equal(t, 3, snap[1].value)

	got, ok := c.Get("BTC/USDT", "1")
	require.True(t, ok)
	assert.Equal(t, 3, got.value)
}

func TestBySymbolByIDKeysIncludeSymbol(t *testing.T) {
	t.Parallel()
	c := NewBySymbolByID[record](10, recordKey)
	c.Append(record{symbol: "BTC/USDT", id: "1"})
	c.Append(record{symbol: "ETH/USDT", id: "1"})
	assert.Equal(t, 2, c.Len())
	assert.Len(t, c.BySymbol("ETH/USDT"), 1)
	assert.Empty(t, c.BySymbol("LTC/USDT"))
}

func TestBySymbolByIDEvictsOldest(t *testing.T) {
	t.Parallel()
	c := NewBySymbolByID[record](3, recordKey)
	for i := 0; i < 5; i++ {
		c.Append(record{symbol: "BTC/USDT", id: strconv.Itoa(i)})
	}
	require.Equal(t, 3, c.Len())
	_, ok := c.Get("BTC/USDT", "1")
	assert.False(t, ok)
	ids := []string{}
	for _, r := range c.Snapshot() {
		ids = append(ids, r.id)
	}
	assert.Equal(t, []string{"2", "3", "4"}, ids)

	// an update to a stored id at capacity must not evict anything
	c.Append(record{symbol: "BTC/USDT", id: "2", value: 9})
	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("BTC/USDT", "3")
	assert.True(t, ok)
}

func recordTS(r record) int64 { return r.ts }

func TestByTimestampReplacesSameBucket(t *testing.T) {
	t.Parallel()
	c := NewByTimestamp[record](3, recordTS)
	c.Append(record{ts: 60000, value: 1})
	c.Append(record{ts: 60000, value: 2})
	require.Equal(t, 1, c.Len())
	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, 2, last.value)
}

func TestByTimestampEvicts(t *testing.T) {
	t.Parallel()
	c := NewByTimestamp[record](2, recordTS)
	c.Append(record{ts: 1})
	c.Append(record{ts: 2})
	c.Append(record{ts: 3})
	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(2), snap[0].ts)
	assert.Equal(t, int64(3), snap[1].ts)

	c.Append(record{ts: 2, value: 7})
	snap = c.Snapshot()
	assert.Equal(t, int64(2), snap[0].ts, "older bucket is updated in place")
	assert.Equal(t, 7, snap[0].value)
}

func TestByTimestampLastEmpty(t *testing.T) {
	t.Parallel()
	_, ok := NewByTimestamp[record](1, recordTS).Last()
	assert.False(t, ok)
}

func TestNewest(t *testing.T) {
	t.Parallel()
	v := []int{1, 2, 3, 4}
	assert.Equal(t, []int{3, 4}, Newest(v, 2))
	assert.Equal(t, v, Newest(v, 0))
	assert.Equal(t, v, Newest(v, 10))
}
