package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/core"
	"github.com/classmesh/sfu/internal/domain"
)

// RedisStore backs every coordination port with one Redis client. Lease and
// queue operations surface their errors; registrar operations are
// best-effort and only log.
type RedisStore struct {
	rdb      *redis.Client
	trackTTL time.Duration
	log      zerolog.Logger
}

func NewRedisStore(ctx context.Context, addr string, trackTTL time.Duration) (*RedisStore, error) {
	s := &RedisStore{
		rdb:      redis.NewClient(&redis.Options{Addr: addr}),
		trackTTL: trackTTL,
		log:      log.With().Str("module", "coord.store").Logger(),
	}

	const maxRetries = 5
	for attempt := 1; ; attempt++ {
		_, err := s.rdb.Ping(ctx).Result()
		if err == nil {
			s.log.Info().Str("addr", addr).Int("attempt", attempt).Msg("connected to redis")
			break
		}
		if attempt == maxRetries {
			return nil, fmt.Errorf("redis unreachable after %d attempts: %w", maxRetries, err)
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("redis connect failed, retrying")
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

// NextClaim blocks on the shared claim queue until a room id arrives.
func (s *RedisStore) NextClaim(ctx context.Context) (domain.RoomID, error) {
	res, err := s.rdb.BLPop(ctx, 0, claimQueueKey).Result()
	if err != nil {
		return "", err
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}
	return domain.RoomID(res[1]), nil
}

// EnqueueClaim pushes a room onto the shared queue. Signaling front-ends
// use this when a room has no known owner yet.
func (s *RedisStore) EnqueueClaim(ctx context.Context, room domain.RoomID) error {
	return s.rdb.RPush(ctx, claimQueueKey, string(room)).Err()
}

func (s *RedisStore) AcquireLease(ctx context.Context, room domain.RoomID, addr string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, leaseKey(room), addr, ttl).Result()
}

// RenewLease refreshes the lease only if the key still exists, then reads
// the holder back. The caller compares the result against its own address;
// divergence means the lease was lost.
func (s *RedisStore) RenewLease(ctx context.Context, room domain.RoomID, addr string, ttl time.Duration) (string, error) {
	key := leaseKey(room)
	if err := s.rdb.SetXX(ctx, key, addr, ttl).Err(); err != nil && err != redis.Nil {
		return "", err
	}
	holder, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return holder, err
}

func (s *RedisStore) AnnounceAssignment(ctx context.Context, room domain.RoomID, sfu domain.SfuID, addr string) error {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: assignStreamKey(room),
		MaxLen: assignStreamMaxLen,
		Approx: true,
		Values: map[string]any{
			"sfu":  string(sfu),
			"addr": addr,
			"at":   time.Now().UnixMilli(),
		},
	}).Err()
}

func (s *RedisStore) RegisterLiveness(ctx context.Context, sfu domain.SfuID, addr string, ttl time.Duration) error {
	now := time.Now()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, statusKey(sfu), addr, ttl)
	pipe.ZAdd(ctx, livenessKey, redis.Z{Score: float64(now.Unix()), Member: string(sfu)})
	// Expire peers whose score fell out of the liveness window.
	pipe.ZRemRangeByScore(ctx, livenessKey, "-inf", fmt.Sprintf("%d", now.Add(-2*ttl).Unix()))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) SetGlobalMute(ctx context.Context, room domain.RoomID, st domain.GlobalMute) error {
	return s.rdb.HSet(ctx, muteKey(room),
		"audio", boolField(st.Audio),
		"video", boolField(st.Video),
	).Err()
}

func (s *RedisStore) GetGlobalMute(ctx context.Context, room domain.RoomID) (domain.GlobalMute, error) {
	fields, err := s.rdb.HGetAll(ctx, muteKey(room)).Result()
	if err != nil {
		return domain.GlobalMute{}, err
	}
	// Absent hash or fields mean "not muted".
	return domain.GlobalMute{
		Audio: fields["audio"] == "1",
		Video: fields["video"] == "1",
	}, nil
}

// PublishTrack upserts the track's discovery entry with a bounded TTL.
// Re-registration on every pause change keeps the entry fresh.
func (s *RedisStore) PublishTrack(ctx context.Context, room domain.RoomID, entry core.TrackEntry) {
	key := trackKey(room, entry.TrackID)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key,
		"producer", string(entry.ProducerID),
		"sfu", string(entry.SfuID),
		"kind", string(entry.Kind),
		"paused_for_all", boolField(entry.PausedForAll),
	)
	pipe.Expire(ctx, key, s.trackTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("room", string(room)).Str("track", string(entry.TrackID)).Msg("track publish failed")
	}
}

func (s *RedisStore) RemoveTrack(ctx context.Context, room domain.RoomID, id domain.TrackID) {
	if err := s.rdb.Del(ctx, trackKey(room, id)).Err(); err != nil {
		s.log.Warn().Err(err).Str("room", string(room)).Str("track", string(id)).Msg("track remove failed")
	}
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
