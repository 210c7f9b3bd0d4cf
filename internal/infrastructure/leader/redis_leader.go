package leader

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/pkg/logger"

	"github.com/go-redis/redis/v8"
)

var ErrLeadershipLost = domain.ErrLeadershipLost

const releaseScript = `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `

const extendScript = `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("PEXPIRE", KEYS[1], ARGV[2])
        else
            return 0
        end
    `

var _ domain.LeaderElection = (*RedisLeaderElection)(nil)

// RedisLeaderElection holds leadership as a key with a TTL that the leader
// keeps extending. Lost is closed once a heartbeat fails to extend it.
type RedisLeaderElection struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    logger.Logger

	mutex sync.Mutex
	lost  chan struct{}
	stop  chan struct{}
}

func NewRedisLeaderElection(client *redis.Client, key string, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    log,
		lost:   make(chan struct{}),
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	result, err := r.client.SetNX(ctx, r.key, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if result {
		r.mutex.Lock()
		r.lost = make(chan struct{})
		r.stop = make(chan struct{})
		lost, stop := r.lost, r.stop
		r.mutex.Unlock()

		// Start heartbeat to maintain leadership
		go r.maintainLeadership(instanceID, lost, stop)
	}

	return result, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.mutex.Lock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	r.mutex.Unlock()

	return r.client.Eval(ctx, releaseScript, []string{r.key}, instanceID).Err()
}

// Lost is closed when the most recently won leadership term ends involuntarily.
func (r *RedisLeaderElection) Lost() <-chan struct{} {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lost
}

func (r *RedisLeaderElection) maintainLeadership(instanceID string, lost, stop chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		result, err := r.client.Eval(ctx, extendScript, []string{r.key},
			instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || result == 0 {
			r.log.Warn("Leadership lost", "instance_id", instanceID, "key", r.key, "error", err)
			close(lost)
			return
		}
	}
}
