package poller_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-socket-calc/internal/poller"
)

func TestFake_ReplaysBatchesInOrder(t *testing.T) {
	f := poller.NewFake(
		[]poller.Event{{FD: 3, Readable: true}},
		[]poller.Event{{FD: 4, Writable: true}, {FD: 5, Readable: true}},
	)
	events := make([]poller.Event, 8)

	n, err := f.Wait(events, -1)
	require.NoError(t, err)
	assert.Equal(t, []poller.Event{{FD: 3, Readable: true}}, events[:n])

	n, err = f.Wait(events, -1)
	require.NoError(t, err)
	assert.Equal(t, []poller.Event{{FD: 4, Writable: true}, {FD: 5, Readable: true}}, events[:n])

	_, err = f.Wait(events, -1)
	assert.ErrorIs(t, err, poller.ErrClosed)
	assert.Equal(t, 3, f.Waits())
}

func TestFake_SplitsLongBatches(t *testing.T) {
	f := poller.NewFake([]poller.Event{{FD: 1}, {FD: 2}, {FD: 3}})
	events := make([]poller.Event, 2)

	n, err := f.Wait(events, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.Wait(events, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, 3, events[0].FD)
}

func TestFake_TracksInterest(t *testing.T) {
	f := poller.NewFake()

	require.NoError(t, f.Add(7, poller.Readable))
	require.Error(t, f.Add(7, poller.Readable))
	require.NoError(t, f.Modify(7, poller.Readable|poller.Writable))
	require.NoError(t, f.Modify(7, poller.Readable))

	in, ok := f.Interest(7)
	require.True(t, ok)
	assert.Equal(t, poller.Readable, in)
	assert.Equal(t, []poller.Interest{poller.Readable, poller.Readable | poller.Writable, poller.Readable}, f.History(7))

	require.NoError(t, f.Remove(7))
	_, ok = f.Interest(7)
	assert.False(t, ok)
	assert.Equal(t, []int{7}, f.Removed())
	assert.ErrorIs(t, f.Modify(7, poller.Readable), poller.ErrNotRegistered)
}

func TestFake_ClosedStopsWaiting(t *testing.T) {
	f := poller.NewFake([]poller.Event{{FD: 1}})
	require.NoError(t, f.Close())

	_, err := f.Wait(make([]poller.Event, 1), -1)
	assert.ErrorIs(t, err, poller.ErrClosed)
	assert.True(t, f.Closed())
}

func TestInterest_String(t *testing.T) {
	tests := []struct {
		in   poller.Interest
		want string
	}{
		{0, "none"},
		{poller.Readable, "r"},
		{poller.Writable, "w"},
		{poller.Readable | poller.Writable, "rw"},
		{poller.Readable | poller.Level, "r+level"},
		{poller.Interest(8), "invalid"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.String())
	}
}
