package objcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFreshMissThenHit(t *testing.T) {
	c := New(1000, time.Minute)
	now := time.Now()
	key := Key{BucketID: "media-s3", Path: "a.txt"}

	_, ok := c.Get(key, now)
	require.False(t, ok)

	c.Insert(key, Object{Bytes: []byte("hello world"), ContentType: "text/plain", Size: 11}, now)

	obj, ok := c.Get(key, now)
	require.True(t, ok)
	require.Equal(t, "hello world", string(obj.Bytes))
	require.Equal(t, "text/plain", obj.ContentType)
}

func TestEvictionKeepsWithinBudget(t *testing.T) {
	c := New(100, time.Minute)
	now := time.Now()

	c.Insert(Key{Path: "k1"}, Object{Bytes: make([]byte, 60), Size: 60}, now)
	c.Insert(Key{Path: "k2"}, Object{Bytes: make([]byte, 50), Size: 50}, now)
	c.Insert(Key{Path: "k3"}, Object{Bytes: make([]byte, 40), Size: 40}, now)

	_, ok := c.Get(Key{Path: "k1"}, now)
	require.False(t, ok, "k1 should have been evicted")

	_, ok = c.Get(Key{Path: "k2"}, now)
	require.True(t, ok)
	_, ok = c.Get(Key{Path: "k3"}, now)
	require.True(t, ok)

	require.EqualValues(t, 90, c.SizeBytes())
}

func TestTooLargeObjectNeverCached(t *testing.T) {
	c := New(100, time.Minute)
	now := time.Now()

	c.Insert(Key{Path: "big"}, Object{Bytes: make([]byte, 500), Size: 500}, now)

	require.Equal(t, 0, c.Len())
	_, ok := c.Get(Key{Path: "big"}, now)
	require.False(t, ok)
}

func TestExpiredEntryTreatedAsAbsent(t *testing.T) {
	c := New(1000, 60*time.Second)
	t0 := time.Unix(0, 0)
	key := Key{Path: "a"}

	c.Insert(key, Object{Bytes: []byte("x"), Size: 1}, t0)

	_, ok := c.Get(key, t0.Add(61*time.Second))
	require.False(t, ok)

	// Repopulation after expiry works normally.
	c.Insert(key, Object{Bytes: []byte("y"), Size: 1}, t0.Add(61*time.Second))
	obj, ok := c.Get(key, t0.Add(61*time.Second))
	require.True(t, ok)
	require.Equal(t, "y", string(obj.Bytes))
}

func TestInsertReplacesExistingKeyBudget(t *testing.T) {
	c := New(100, time.Minute)
	now := time.Now()
	key := Key{Path: "a"}

	c.Insert(key, Object{Bytes: make([]byte, 60), Size: 60}, now)
	c.Insert(key, Object{Bytes: make([]byte, 30), Size: 30}, now)

	require.EqualValues(t, 30, c.SizeBytes())
	require.Equal(t, 1, c.Len())
}

func TestLRUOrderReflectsAccess(t *testing.T) {
	c := New(100, time.Minute)
	now := time.Now()

	c.Insert(Key{Path: "k1"}, Object{Bytes: make([]byte, 40), Size: 40}, now)
	c.Insert(Key{Path: "k2"}, Object{Bytes: make([]byte, 40), Size: 40}, now)

	// touch k1 so it becomes most-recently-used
	_, _ = c.Get(Key{Path: "k1"}, now)

	// inserting k3 should evict k2 (least recently used), not k1
	c.Insert(Key{Path: "k3"}, Object{Bytes: make([]byte, 40), Size: 40}, now)

	_, ok := c.Get(Key{Path: "k2"}, now)
	require.False(t, ok)
	_, ok = c.Get(Key{Path: "k1"}, now)
	require.True(t, ok)
}
