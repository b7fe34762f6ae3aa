package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lunarcache/lunardb/provider"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

func TestEngine_SetGetDel(t *testing.T) {
	t.Parallel()
	e := New(Options{Capacity: 8})

	e.Set("foo", "bar", 0)
	v, ok := e.Get("foo")
	require.True(t, ok)
	require.Equal(t, "bar", v)

	require.True(t, e.Del("foo"))
	_, ok = e.Get("foo")
	require.False(t, ok)
}

func TestEngine_TTLExpiry(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{}
	e := New(Options{Capacity: 8, Clock: clk})

	e.Set("temp", "hello", 1)
	v, ok := e.Get("temp")
	require.True(t, ok)
	require.Equal(t, "hello", v)

	clk.add(2 * time.Second)
	_, ok = e.Get("temp")
	require.False(t, ok)
}

func TestEngine_ListRoundTrip(t *testing.T) {
	t.Parallel()
	e := New(Options{Capacity: 8})

	require.NoError(t, e.LPush("nums", "1"))
	require.NoError(t, e.LPush("nums", "2"))
	require.NoError(t, e.RPush("nums", "3"))

	got, err := e.LRange("nums", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"2", "1", "3"}, got)

	n, err := e.LLen("nums")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	v, ok, err := e.LPop("nums")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", v)

	v, ok, err = e.RPop("nums")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", v)

	got, err = e.LRange("nums", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, got)
}

func TestEngine_ListEmptiedRemovesEntry(t *testing.T) {
	t.Parallel()
	e := New(Options{Capacity: 8})

	require.NoError(t, e.LPush("nums", "1"))
	_, ok, err := e.LPop("nums")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := e.LLen("nums")
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 0, e.Size())
}

func TestEngine_WrongType(t *testing.T) {
	t.Parallel()
	e := New(Options{Capacity: 8})

	e.Set("s", "hello", 0)
	err := e.LPush("s", "x")
	require.ErrorIs(t, err, ErrWrongType)

	v, ok := e.Get("s")
	require.True(t, ok)
	require.Equal(t, "hello", v)

	require.NoError(t, e.LPush("l", "x"))
	_, err = e.LLen("l")
	require.NoError(t, err)
	_, ok = e.Get("l")
	require.False(t, ok, "GET on a list key returns absent, not an error")
}

func TestEngine_CapacityEviction(t *testing.T) {
	t.Parallel()
	e := New(Options{Capacity: 2})

	e.Set("a", "1", 0)
	e.Set("b", "2", 0)
	e.Set("c", "3", 0)

	require.LessOrEqual(t, e.Size(), 2)
}

func TestEngine_CleanupIdempotent(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{}
	e := New(Options{Capacity: 8, Clock: clk})

	e.Set("a", "1", 1)
	clk.add(2 * time.Second)

	require.Equal(t, 1, e.CleanupExpired())
	require.Equal(t, 0, e.CleanupExpired())
}

func TestEngine_ProviderFallbackAndWriteThrough(t *testing.T) {
	t.Parallel()
	p := provider.NewMapProvider()
	require.NoError(t, p.Set("remote", "value", 0))

	e := New(Options{Capacity: 8, Provider: p})

	v, ok := e.Get("remote")
	require.True(t, ok)
	require.Equal(t, "value", v)

	e.Set("local", "v2", 0)
	stored, ok, err := p.Get("local")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", stored)

	require.True(t, e.Del("local"))
	_, ok, err = p.Get("local")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngine_MSetMGet(t *testing.T) {
	t.Parallel()
	e := New(Options{Capacity: 8})

	e.MSet([][2]string{{"a", "1"}, {"b", "2"}})
	got := e.MGet([]string{"a", "b", "missing"})
	require.Len(t, got, 3)
	require.Equal(t, "1", *got[0])
	require.Equal(t, "2", *got[1])
	require.Nil(t, got[2])
}
