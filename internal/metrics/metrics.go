/*
Package metrics wraps datadog-go statsd for settlement telemetry.

Naming convention:
  - Counters: <area>.<event>, e.g. bids.accepted
  - Internal process time: *.time
  - Errors: *.err
*/
package metrics

import (
	"fmt"
	"time"

	"auction-settlement/pkg/logger"

	"github.com/DataDog/datadog-go/statsd"
)

const rate = 1

// Ender stops a timer started by BumpTime.
type Ender interface {
	End()
}

// Service records metrics. Tags are key/value pairs.
type Service interface {
	BumpSum(key string, val float64, tags ...string)
	BumpAvg(key string, val float64, tags ...string)
	BumpTime(key string, tags ...string) Ender
	Close() error
}

type statsCli interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
	Close() error
}

type ddService struct {
	client statsCli
	log    logger.Logger
}

// NewDatadog connects to the statsd agent at addr. Every key is prefixed with namespace.
func NewDatadog(addr, namespace string, log logger.Logger) (Service, error) {
	client, err := statsd.New(addr, statsd.WithNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("connect statsd %s: %w", addr, err)
	}
	log.Info("Connected to statsd agent", "addr", addr, "namespace", namespace)
	return &ddService{client: client, log: log}, nil
}

func (s *ddService) BumpSum(key string, val float64, tags ...string) {
	if err := s.client.Count(key, int64(val), s.parseTag(tags), rate); err != nil {
		s.log.Warn("Bump failed", "key", key, "func", "BumpSum", "error", err)
	}
}

func (s *ddService) BumpAvg(key string, val float64, tags ...string) {
	if err := s.client.Gauge(key, val, s.parseTag(tags), rate); err != nil {
		s.log.Warn("Bump failed", "key", key, "func", "BumpAvg", "error", err)
	}
}

func (s *ddService) BumpTime(key string, tags ...string) Ender {
	return &timeTracker{start: time.Now(), key: key, tags: s.parseTag(tags), s: s}
}

func (s *ddService) Close() error {
	return s.client.Close()
}

func (s *ddService) parseTag(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	if len(tags)%2 != 0 {
		s.log.Warn("Odd number of metric tags, dropping the last one", "tags", tags)
		tags = tags[:len(tags)-1]
		if len(tags) == 0 {
			return nil
		}
	}
	arr := make([]string, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		arr[i/2] = tags[i] + ":" + tags[i+1]
	}
	return arr
}

type timeTracker struct {
	start time.Time
	key   string
	tags  []string
	s     *ddService
}

func (t *timeTracker) End() {
	ms := float64(time.Since(t.start)) / float64(time.Millisecond)
	if err := t.s.client.TimeInMilliseconds(t.key, ms, t.tags, rate); err != nil {
		t.s.log.Warn("Bump failed", "key", t.key, "func", "BumpTime", "error", err)
	}
}

type nopService struct{}

// NewNop returns a Service that records nothing.
func NewNop() Service { return nopService{} }

func (nopService) BumpSum(string, float64, ...string) {}
func (nopService) BumpAvg(string, float64, ...string) {}
func (nopService) BumpTime(string, ...string) Ender   { return nopEnder{} }
func (nopService) Close() error                       { return nil }

type nopEnder struct{}

func (nopEnder) End() {}
