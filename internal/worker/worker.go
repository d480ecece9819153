// Package worker models media-processing execution contexts and balances
// clients across them.
package worker

import (
	"sync/atomic"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/metrics"
)

// Role restricts which transport side a worker serves. Mixed workers
// compete in both selections.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
	RoleMixed    Role = "mixed"
)

// Worker owns one routing context and tracks its producer/consumer load.
// The counters are adjusted from concurrent room queues, hence atomics.
type Worker struct {
	ID     domain.WorkerID
	Role   Role
	Router core.Router

	producers atomic.Int64
	consumers atomic.Int64
}

func New(role Role, router core.Router) *Worker {
	return &Worker{ID: domain.NewWorkerID(), Role: role, Router: router}
}

func (w *Worker) ServesProducers() bool { return w.Role == RoleProducer || w.Role == RoleMixed }
func (w *Worker) ServesConsumers() bool { return w.Role == RoleConsumer || w.Role == RoleMixed }

func (w *Worker) ProducerLoad() int64 { return w.producers.Load() }
func (w *Worker) ConsumerLoad() int64 { return w.consumers.Load() }

func (w *Worker) AddProducer()  { w.gauge("producer", w.producers.Add(1)) }
func (w *Worker) DropProducer() { w.gauge("producer", w.producers.Add(-1)) }
func (w *Worker) AddConsumer()  { w.gauge("consumer", w.consumers.Add(1)) }
func (w *Worker) DropConsumer() { w.gauge("consumer", w.consumers.Add(-1)) }

func (w *Worker) gauge(side string, load int64) {
	metrics.WorkerLoad.WithLabelValues(string(w.ID), side).Set(float64(load))
}
