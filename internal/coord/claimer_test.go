package coord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/metrics"
)

// memLeaseStore is an in-memory LeaseStore with real compare-and-set
// semantics, shared between concurrently running claimers.
type memLeaseStore struct {
	mu     sync.Mutex
	claims chan domain.RoomID
	leases map[domain.RoomID]string

	assigned map[domain.RoomID][]string
	alive    map[domain.SfuID]string
}

func newMemLeaseStore() *memLeaseStore {
	return &memLeaseStore{
		claims:   make(chan domain.RoomID, 16),
		leases:   map[domain.RoomID]string{},
		assigned: map[domain.RoomID][]string{},
		alive:    map[domain.SfuID]string{},
	}
}

func (s *memLeaseStore) NextClaim(ctx context.Context) (domain.RoomID, error) {
	select {
	case room := <-s.claims:
		return room, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *memLeaseStore) AcquireLease(ctx context.Context, room domain.RoomID, addr string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.leases[room]; held {
		return false, nil
	}
	s.leases[room] = addr
	return true, nil
}

func (s *memLeaseStore) RenewLease(ctx context.Context, room domain.RoomID, addr string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder, held := s.leases[room]; held && holder == addr {
		s.leases[room] = addr
	}
	return s.leases[room], nil
}

func (s *memLeaseStore) AnnounceAssignment(ctx context.Context, room domain.RoomID, sfu domain.SfuID, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned[room] = append(s.assigned[room], addr)
	return nil
}

func (s *memLeaseStore) RegisterLiveness(ctx context.Context, sfu domain.SfuID, addr string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive[sfu] = addr
	return nil
}

// steal reassigns a held lease to another address, simulating expiry plus a
// competing acquire.
func (s *memLeaseStore) steal(room domain.RoomID, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases[room] = addr
}

var _ core.LeaseStore = (*memLeaseStore)(nil)

func newTestClaimer(store core.LeaseStore, id domain.SfuID, addr string) *Claimer {
	c := NewClaimer(store, id, addr, 40*time.Millisecond, time.Second)
	c.Fatal = func(err error) {}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClaimerWinsAndAnnounces(t *testing.T) {
	store := newMemLeaseStore()
	var mu sync.Mutex
	var got []domain.RoomID

	c := newTestClaimer(store, "sfu-a", "a:8080")
	c.OnAssigned = func(room domain.RoomID) {
		mu.Lock()
		got = append(got, room)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	store.claims <- "room-1"

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, "a:8080", store.leases["room-1"])
	assert.Equal(t, []string{"a:8080"}, store.assigned["room-1"])
	assert.Equal(t, "a:8080", store.alive["sfu-a"])
}

func TestClaimRaceHasOneWinner(t *testing.T) {
	store := newMemLeaseStore()

	var mu sync.Mutex
	winners := map[string]int{}
	mk := func(id domain.SfuID, addr string) *Claimer {
		c := newTestClaimer(store, id, addr)
		c.OnAssigned = func(domain.RoomID) {
			mu.Lock()
			winners[addr]++
			mu.Unlock()
		}
		return c
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mk("sfu-a", "a:8080").Run(ctx)
	go mk("sfu-b", "b:8080").Run(ctx)

	// Both instances pop the same room: the duplicate delivery models the
	// claim being requeued while the first pop was in flight.
	store.claims <- "room-1"
	store.claims <- "room-1"

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return winners["a:8080"]+winners["b:8080"] >= 1
	})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	total := winners["a:8080"] + winners["b:8080"]
	mu.Unlock()
	assert.Equal(t, 1, total, "exactly one instance may win the lease")
}

func TestRenewDivergenceIsFatal(t *testing.T) {
	store := newMemLeaseStore()

	lostBefore := testutil.ToFloat64(metrics.LeaseRenewals.WithLabelValues("lost"))

	fatal := make(chan error, 1)
	c := newTestClaimer(store, "sfu-a", "a:8080")
	c.Fatal = func(err error) { fatal <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	store.claims <- "room-1"
	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.leases["room-1"] == "a:8080"
	})

	store.steal("room-1", "b:8080")

	select {
	case err := <-fatal:
		var lost *LeaseLostError
		require.ErrorAs(t, err, &lost)
		assert.Equal(t, domain.RoomID("room-1"), lost.Room)
		assert.Equal(t, "b:8080", lost.Holder)
	case <-time.After(2 * time.Second):
		t.Fatal("lease loss did not terminate")
	}

	// The divergent renewal counts as lost, not as a healthy renewal.
	assert.Equal(t, lostBefore+1, testutil.ToFloat64(metrics.LeaseRenewals.WithLabelValues("lost")))
}
