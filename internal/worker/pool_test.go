package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classmesh/sfu/internal/core"
)

type fakeEngine struct{ routers []*fakeRouter }

func (e *fakeEngine) NewRouter(ctx context.Context) (core.Router, error) {
	r := &fakeRouter{pipes: map[core.Router]bool{}}
	e.routers = append(e.routers, r)
	return r, nil
}

type fakeRouter struct {
	pipes  map[core.Router]bool
	closed bool
}

func (r *fakeRouter) CreateTransport(ctx context.Context) (core.Transport, error) {
	return nil, nil
}
func (r *fakeRouter) PipeTo(dst core.Router) error { r.pipes[dst] = true; return nil }
func (r *fakeRouter) Close()                       { r.closed = true }

func TestNewPoolRejectsUnservableLayouts(t *testing.T) {
	ctx := context.Background()

	_, err := NewPool(ctx, &fakeEngine{}, 1, 0, 0)
	assert.ErrorIs(t, err, ErrNoConsumerWorker)

	_, err = NewPool(ctx, &fakeEngine{}, 0, 1, 0)
	assert.ErrorIs(t, err, ErrNoProducerWorker)

	_, err = NewPool(ctx, &fakeEngine{}, 0, 0, 1)
	assert.NoError(t, err)
}

func TestPickProducerIsLeastLoaded(t *testing.T) {
	pool, err := NewPool(context.Background(), &fakeEngine{}, 2, 1, 0)
	require.NoError(t, err)

	first, err := pool.PickProducer()
	require.NoError(t, err)
	first.AddProducer()
	first.AddProducer()

	second, err := pool.PickProducer()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestPickSidesAreIndependent(t *testing.T) {
	pool, err := NewPool(context.Background(), &fakeEngine{}, 1, 2, 0)
	require.NoError(t, err)

	pw, err := pool.PickProducer()
	require.NoError(t, err)
	assert.Equal(t, RoleProducer, pw.Role)

	// Consumer load on the producer worker must not influence the
	// consumer-side pick.
	cw1, err := pool.PickConsumer()
	require.NoError(t, err)
	cw1.AddConsumer()
	cw2, err := pool.PickConsumer()
	require.NoError(t, err)
	assert.NotSame(t, cw1, cw2)
	assert.Equal(t, RoleConsumer, cw2.Role)
}

func TestMixedWorkerServesBothSides(t *testing.T) {
	pool, err := NewPool(context.Background(), &fakeEngine{}, 0, 0, 1)
	require.NoError(t, err)

	pw, err := pool.PickProducer()
	require.NoError(t, err)
	cw, err := pool.PickConsumer()
	require.NoError(t, err)
	assert.Same(t, pw, cw)
}

func TestPipeToConsumersLinksAllDedicated(t *testing.T) {
	eng := &fakeEngine{}
	pool, err := NewPool(context.Background(), eng, 1, 2, 1)
	require.NoError(t, err)

	var producer *Worker
	for _, w := range pool.Workers() {
		if w.Role == RoleProducer {
			producer = w
		}
	}
	require.NotNil(t, producer)

	require.NoError(t, pool.PipeToConsumers(producer))

	src := producer.Router.(*fakeRouter)
	assert.Len(t, src.pipes, 2)
	for _, w := range pool.Workers() {
		if w.Role == RoleConsumer {
			assert.True(t, src.pipes[w.Router])
		}
	}
}

func TestPipeToConsumersIgnoresMixed(t *testing.T) {
	pool, err := NewPool(context.Background(), &fakeEngine{}, 0, 1, 1)
	require.NoError(t, err)

	var mixed *Worker
	for _, w := range pool.Workers() {
		if w.Role == RoleMixed {
			mixed = w
		}
	}
	require.NotNil(t, mixed)

	require.NoError(t, pool.PipeToConsumers(mixed))
	assert.Empty(t, mixed.Router.(*fakeRouter).pipes)
}
