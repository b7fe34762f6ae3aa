package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunarcache/lunardb/engine"
	"github.com/lunarcache/lunardb/shard"
)

func newTestDispatcher() *Dispatcher {
	mgr := shard.New(2, 1000, func(cap int) *engine.Engine {
		return engine.New(engine.Options{Capacity: cap})
	}, nil)
	return New(mgr, nil, nil)
}

func TestDispatcher_SetGetDel(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	resp, err := d.Dispatch("SET foo bar")
	require.NoError(t, err)
	require.Equal(t, "OK", resp)

	resp, err = d.Dispatch("get foo")
	require.NoError(t, err)
	require.Equal(t, "bar", resp)

	resp, err = d.Dispatch("DEL foo")
	require.NoError(t, err)
	require.Equal(t, "OK", resp)

	resp, err = d.Dispatch("GET foo")
	require.NoError(t, err)
	require.Equal(t, "(nil)", resp)
}

func TestDispatcher_ArityErrors(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	resp, err := d.Dispatch("SET onlykey")
	require.NoError(t, err)
	require.Equal(t, "ERR wrong number of arguments for 'set'", resp)
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	resp, err := d.Dispatch("FROBNICATE x")
	require.NoError(t, err)
	require.Equal(t, "ERR Unknown command", resp)
}

func TestDispatcher_ListOps(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	_, err := d.Dispatch("LPUSH mylist a")
	require.NoError(t, err)
	_, err = d.Dispatch("RPUSH mylist b")
	require.NoError(t, err)

	resp, err := d.Dispatch("LRANGE mylist 0 -1")
	require.NoError(t, err)
	require.Equal(t, "a\nb", resp)

	resp, err = d.Dispatch("LLEN mylist")
	require.NoError(t, err)
	require.Equal(t, "2", resp)
}

func TestDispatcher_WrongType(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	_, err := d.Dispatch("SET s hello")
	require.NoError(t, err)

	resp, err := d.Dispatch("LPUSH s x")
	require.NoError(t, err)
	require.Contains(t, resp, "ERR")
	require.Contains(t, resp, "WRONGTYPE")
}

func TestDispatcher_Quit(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	_, err := d.Dispatch("QUIT")
	require.ErrorIs(t, err, ErrQuit)
}

func TestDispatcher_KeysEmpty(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	resp, err := d.Dispatch("KEYS")
	require.NoError(t, err)
	require.Equal(t, "(empty list)", resp)
}

func TestDispatcher_ShardLocateAndRebalance(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	resp, err := d.Dispatch("SHARD LOCATE somekey")
	require.NoError(t, err)
	require.Contains(t, resp, "shard=")

	resp, err = d.Dispatch("SHARD REBALANCE 8")
	require.NoError(t, err)
	require.Equal(t, "OK", resp)

	resp, err = d.Dispatch("SHARD INFO")
	require.NoError(t, err)
	require.Contains(t, resp, "shards=8")
}

func TestDispatcher_Ping(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	resp, err := d.Dispatch("PING")
	require.NoError(t, err)
	require.Equal(t, "PONG!", resp)
}
