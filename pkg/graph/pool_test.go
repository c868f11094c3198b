package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedWorkInOrder(t *testing.T) {
	p := NewPool(4)
	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		p.Submit(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pool work")
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	p.Close()
}

func TestPoolCloseWaitsForQueueToDrain(t *testing.T) {
	p := NewPool(4)
	ran := false
	p.Submit(func() { ran = true })
	p.Close()
	require.True(t, ran)
}
