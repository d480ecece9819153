package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classmesh_sfu_active_rooms",
		Help: "Number of rooms currently hosted by this instance",
	})

	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classmesh_sfu_active_clients",
		Help: "Number of connected client sessions",
	})

	ActiveProducers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classmesh_sfu_active_producers",
		Help: "Number of live producer legs",
	})

	ActiveConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classmesh_sfu_active_consumers",
		Help: "Number of live consumer legs",
	})

	WorkerLoad = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "classmesh_sfu_worker_load",
		Help: "Per-worker producer/consumer load",
	}, []string{"worker", "side"}) // side: "producer" | "consumer"

	RoomsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classmesh_sfu_rooms_claimed_total",
		Help: "Total number of room leases won by this instance",
	})

	LeaseRenewals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classmesh_sfu_lease_renewals_total",
		Help: "Total lease renewal attempts",
	}, []string{"result"}) // "ok" | "error"

	TaskTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classmesh_sfu_room_task_timeouts_total",
		Help: "Total room-queue tasks that exceeded the warn timeout",
	})

	PauseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classmesh_sfu_pause_transitions_total",
		Help: "Total effective pause-state transitions",
	}, []string{"entity"}) // "track" | "consumer"
)
