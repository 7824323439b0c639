package test

import (
	"bufio"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/omochice/toy-socket-calc/internal/poller"
	"github.com/omochice/toy-socket-calc/internal/server"
	"github.com/omochice/toy-socket-calc/internal/transport/tcp"
)

// exhaustDescriptors lowers the open file limit and fills the table with
// duplicates until the process runs out. The returned func frees them.
func exhaustDescriptors(t *testing.T, limit uint64) func() {
	t.Helper()

	var orig unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &orig))
	lowered := unix.Rlimit{Cur: limit, Max: orig.Max}
	require.NoError(t, unix.Setrlimit(unix.RLIMIT_NOFILE, &lowered))
	t.Cleanup(func() { _ = unix.Setrlimit(unix.RLIMIT_NOFILE, &orig) })

	var dups []int
	for {
		fd, err := unix.Dup(0)
		if err != nil {
			require.True(t, errors.Is(err, unix.EMFILE), "dup: %v", err)
			break
		}
		dups = append(dups, fd)
	}

	freed := false
	release := func() {
		if freed {
			return
		}
		freed = true
		for _, fd := range dups {
			unix.Close(fd)
		}
	}
	t.Cleanup(release)
	return release
}

func TestIntegration_AcceptRecoversFromDescriptorExhaustion(t *testing.T) {
	listenFD, err := tcp.Listen(0)
	require.NoError(t, err)
	t.Cleanup(func() { tcp.Sockets{}.Close(listenFD) })
	port, err := tcp.LocalPort(listenFD)
	require.NoError(t, err)

	ep, err := poller.NewEpoll()
	require.NoError(t, err)
	t.Cleanup(func() { ep.Close() })

	srv := server.New(server.Config{Logger: zerolog.Nop()}, ep, tcp.Sockets{}, listenFD)

	// The connection completes in the kernel backlog before anything is
	// accepted.
	conn := dial(t, port)

	release := exhaustDescriptors(t, 256)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, srv.ConnCount(), "accept should fail while descriptors are exhausted")

	release()

	require.Eventually(t, func() bool { return srv.ConnCount() == 1 }, 2*time.Second, 10*time.Millisecond,
		"pending connection was not accepted")

	_, err = conn.Write([]byte("1+1 "))
	require.NoError(t, err)
	assert.Equal(t, []string{"2 "}, readFrames(t, bufio.NewReader(conn), 1))
}
