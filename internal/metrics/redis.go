package metrics

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	queueCapacity = 256
	pushTimeout   = 2 * time.Second
	streamMaxLen  = 10_000
	metricsStream = "metrics"
	eventsStream  = "events"
)

type entry struct {
	stream string
	values map[string]any
}

// RedisSink writes metrics and events to capped Redis streams through a
// buffered queue consumed by a single worker goroutine.
type RedisSink struct {
	client    *redis.Client
	prefix    string
	queue     chan entry
	closeOnce sync.Once
	done      chan struct{}
}

// NewRedis constructs a RedisSink and starts its worker. The connection is
// not probed here; a down Redis only costs dropped pushes.
func NewRedis(addr, password string, db int, prefix string) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "modelgovernor"
	}
	s := &RedisSink{
		client: client,
		prefix: prefix,
		queue:  make(chan entry, queueCapacity),
		done:   make(chan struct{}),
	}
	go s.run()
	log.Infof("metrics sink: redis sink started (addr=%s prefix=%s)", addr, prefix)
	return s
}

// Push implements Sink. A full queue drops the metric.
func (s *RedisSink) Push(name string, value float64, tags map[string]string) {
	if s == nil {
		return
	}
	values := map[string]any{
		"name":  name,
		"value": strconv.FormatFloat(value, 'f', -1, 64),
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	mergeTags(values, tags)
	s.enqueue(entry{stream: s.prefix + ":" + metricsStream, values: values})
}

// PushEvent implements Sink. A full queue drops the event.
func (s *RedisSink) PushEvent(title, text, severity string, tags map[string]string) {
	if s == nil {
		return
	}
	values := map[string]any{
		"title":    title,
		"text":     text,
		"severity": severity,
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
	}
	mergeTags(values, tags)
	s.enqueue(entry{stream: s.prefix + ":" + eventsStream, values: values})
}

func (s *RedisSink) enqueue(e entry) {
	select {
	case s.queue <- e:
	default:
		log.Debugf("metrics sink: queue full, dropping entry (stream=%s)", e.stream)
	}
}

func (s *RedisSink) run() {
	defer close(s.done)
	for e := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		errAdd := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: e.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: e.values,
		}).Err()
		cancel()
		if errAdd != nil {
			log.WithError(errAdd).Warnf("metrics sink: push failed (stream=%s)", e.stream)
		}
	}
}

// Close implements Sink: drains the queue, stops the worker, and closes the
// Redis connection.
func (s *RedisSink) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
		if errClose := s.client.Close(); errClose != nil {
			log.WithError(errClose).Warn("metrics sink: close failed")
		}
	})
}

func mergeTags(values map[string]any, tags map[string]string) {
	for key, value := range tags {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values["tag:"+key] = value
	}
}

var _ Sink = (*RedisSink)(nil)
