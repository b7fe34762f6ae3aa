package tcp

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lunarcache/lunardb/dispatcher"
	"github.com/lunarcache/lunardb/engine"
	"github.com/lunarcache/lunardb/shard"
)

func newTestServer(t *testing.T, maxClients int) *Server {
	mgr := shard.New(2, 1000, func(cap int) *engine.Engine {
		return engine.New(engine.Options{Capacity: cap})
	}, nil)
	disp := dispatcher.New(mgr, nil, nil)
	s := New("127.0.0.1:0", maxClients, disp, nil)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestTCPServer_SetGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 0)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("SET foo bar\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "OK\n", line)

	_, err = conn.Write([]byte("GET foo\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "bar\n", line)
}

func TestTCPServer_QuitClosesConnection(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 0)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("QUIT\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	require.Error(t, err)
}

func TestTCPServer_MaxClientsRejectsExcess(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 1)

	first, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer first.Close()

	second, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	r := bufio.NewReader(second)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, atCapacityMessage, line)
}
