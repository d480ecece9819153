package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
)

var (
	ErrNoProducerWorker = errors.New("no worker available for producers")
	ErrNoConsumerWorker = errors.New("no worker available for consumers")
)

// Pool holds the process's workers. The set is fixed at startup; only the
// load counters change afterwards.
type Pool struct {
	workers []*Worker
}

// NewPool creates one router per configured worker. A layout that cannot
// serve both roles is a configuration error.
func NewPool(ctx context.Context, engine core.MediaEngine, producer, consumer, mixed int) (*Pool, error) {
	p := &Pool{}
	add := func(role Role, n int) error {
		for i := 0; i < n; i++ {
			r, err := engine.NewRouter(ctx)
			if err != nil {
				return fmt.Errorf("create %s router: %w", role, err)
			}
			w := New(role, r)
			p.workers = append(p.workers, w)
			log.Info().Str("module", "worker").Str("worker", string(w.ID)).Str("role", string(role)).Msg("worker started")
		}
		return nil
	}
	if err := add(RoleProducer, producer); err != nil {
		return nil, err
	}
	if err := add(RoleConsumer, consumer); err != nil {
		return nil, err
	}
	if err := add(RoleMixed, mixed); err != nil {
		return nil, err
	}
	if _, err := p.PickProducer(); err != nil {
		return nil, err
	}
	if _, err := p.PickConsumer(); err != nil {
		return nil, err
	}
	return p, nil
}

// PickProducer selects the producer-serving worker with the minimum current
// producer count.
func (p *Pool) PickProducer() (*Worker, error) {
	var best *Worker
	for _, w := range p.workers {
		if !w.ServesProducers() {
			continue
		}
		if best == nil || w.ProducerLoad() < best.ProducerLoad() {
			best = w
		}
	}
	if best == nil {
		return nil, ErrNoProducerWorker
	}
	return best, nil
}

// PickConsumer selects the consumer-serving worker with the minimum current
// consumer count.
func (p *Pool) PickConsumer() (*Worker, error) {
	var best *Worker
	for _, w := range p.workers {
		if !w.ServesConsumers() {
			continue
		}
		if best == nil || w.ConsumerLoad() < best.ConsumerLoad() {
			best = w
		}
	}
	if best == nil {
		return nil, ErrNoConsumerWorker
	}
	return best, nil
}

// PipeToConsumers links a producer worker's router to every dedicated
// consumer worker, so subscribers need not be co-located with the
// publisher. Called on producer creation; piping an already linked pair is
// a no-op inside the router.
func (p *Pool) PipeToConsumers(src *Worker) error {
	if src.Role != RoleProducer {
		// Mixed workers serve their own consumers locally.
		return nil
	}
	for _, w := range p.workers {
		if w.Role != RoleConsumer {
			continue
		}
		if err := src.Router.PipeTo(w.Router); err != nil {
			return fmt.Errorf("pipe %s to %s: %w", src.ID, w.ID, err)
		}
	}
	return nil
}

func (p *Pool) Workers() []*Worker { return p.workers }

func (p *Pool) Close() {
	for _, w := range p.workers {
		w.Router.Close()
	}
}
