package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffered_TrySendFull(t *testing.T) {
	ch := NewBuffered[int](2)
	assert.True(t, ch.TrySend(1))
	ch.Send(2)
	assert.False(t, ch.TrySend(3))
	assert.Equal(t, 2, ch.Len())

	ch.Close()
	var got []int
	for v := range ch.Receive() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestUnbuffered_HandsOff(t *testing.T) {
	ch := NewUnbuffered[string]()
	done := make(chan string)
	go func() { done <- <-ch.Receive() }()

	require.True(t, ch.TrySend("tick"))
	assert.Equal(t, "tick", <-done)
	assert.Zero(t, ch.Len())
	ch.Close()
}
