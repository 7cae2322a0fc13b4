package local_cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/okieraised/greenhouse-agent/internal/models"
)

type Options struct {
	NumCounters int64 // number of counters (10x your max items is a good start)
	MaxCost     int64 // total cost capacity (sum of item costs)
	BufferItems int64 // number of keys per Get buffer
	TTL         time.Duration
	Metrics     bool
	OnEvict     func(item *ristretto.Item)
}

type Option func(*Options)

func WithNumCounters(n int64) Option {
	return func(o *Options) {
		o.NumCounters = n
	}
}

func WithMaxCost(c int64) Option {
	return func(o *Options) {
		o.MaxCost = c
	}
}

func WithBufferItems(n int64) Option {
	return func(o *Options) {
		o.BufferItems = n
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.TTL = ttl
	}
}

func WithMetrics() Option {
	return func(o *Options) {
		o.Metrics = true
	}
}

func WithOnEvict(f func(item *ristretto.Item)) Option {
	return func(o *Options) {
		o.OnEvict = f
	}
}

// defaultOptions set default values
func defaultOptions() Options {
	return Options{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
		TTL:         time.Minute,
	}
}

// SensorCache caches topic to sensor lookups. Each entry costs 1.
type SensorCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewSensorCache(opts ...Option) (*SensorCache, error) {
	conf := defaultOptions()
	for _, fn := range opts {
		if fn != nil {
			fn(&conf)
		}
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: conf.NumCounters,
		MaxCost:     conf.MaxCost,
		BufferItems: conf.BufferItems,
		Metrics:     conf.Metrics,
		OnEvict:     conf.OnEvict,
	})
	if err != nil {
		return nil, err
	}
	return &SensorCache{cache: c, ttl: conf.TTL}, nil
}

func (s *SensorCache) Get(topic string) (models.SensorInfo, bool) {
	v, ok := s.cache.Get(topic)
	if !ok {
		return models.SensorInfo{}, false
	}
	info, ok := v.(models.SensorInfo)
	return info, ok
}

// Set stores info and waits until it is visible to Get.
func (s *SensorCache) Set(topic string, info models.SensorInfo) bool {
	ok := s.cache.SetWithTTL(topic, info, 1, s.ttl)
	s.cache.Wait()
	return ok
}

func (s *SensorCache) Delete(topic string) {
	s.cache.Del(topic)
}

// Clear drops every entry, used after the store has been resynchronised.
func (s *SensorCache) Clear() {
	s.cache.Clear()
}

func (s *SensorCache) Close() {
	s.cache.Close()
}
