package promise_test

import (
	"context"
	"testing"
	"time"

	"github.com/emulator000/amqpcore/promise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseResolveOnce(t *testing.T) {
	p, r := promise.New[int]()
	r.Resolve(42)
	r.Resolve(7) // second swear must be a no-op

	v, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPromiseFail(t *testing.T) {
	p, r := promise.New[string]()
	r.Fail(assert.AnError)

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPromiseCancelIsFailure(t *testing.T) {
	p, r := promise.New[struct{}]()
	r.Cancel()

	assert.True(t, p.Resolved())
	_, err := p.Wait(context.Background())
	assert.Error(t, err)
}

func TestPromiseWaitRespectsContext(t *testing.T) {
	p, _ := promise.New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
