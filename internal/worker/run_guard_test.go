package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

func TestRunGuardFailsFast(t *testing.T) {
	g := NewRunGuard("cycle")

	ctx, release, err := g.Acquire(context.Background(), testStart)
	require.NoError(t, err)
	require.NotNil(t, ctx)

	_, _, err = g.Acquire(context.Background(), testStart)
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	held, since := g.Held()
	assert.True(t, held)
	assert.Equal(t, testStart, since)

	release()
	release()
	held, _ = g.Held()
	assert.False(t, held)
	assert.Error(t, ctx.Err())

	_, release, err = g.Acquire(context.Background(), testStart)
	require.NoError(t, err)
	release()
}

func TestRunGuardCancel(t *testing.T) {
	g := NewRunGuard("sweep")
	g.Cancel()

	ctx, release, err := g.Acquire(context.Background(), testStart)
	require.NoError(t, err)
	defer release()

	g.Cancel()
	<-ctx.Done()

	held, _ := g.Held()
	assert.True(t, held, "cancel does not release the guard")
}

func TestRunGuardSingleWinner(t *testing.T) {
	g := NewRunGuard("cycle")
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, _, err := g.Acquire(context.Background(), testStart); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
