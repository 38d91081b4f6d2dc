package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/metrics"
	"github.com/drsolutions/drsplan/pkg/models"
	"github.com/drsolutions/drsplan/pkg/services"
)

// defaultStreamRetention keeps a finished stream around so late subscribers still
// receive its replayed events
const defaultStreamRetention = time.Minute

// resultWatch is the watcher behind one stream
type resultWatch struct {
	cancel      context.CancelFunc
	subscribers int

	// finished is set once the final event is published; the stream then outlives
	// its subscribers for the retention period
	finished bool
}

// resultStreams pushes result status changes to server-sent event subscribers. Every
// watched result gets one stream and one watcher, shared by all of its subscribers.
// A watcher stops when its last subscriber leaves before the result is final.
type resultStreams struct {
	sse        *sse.Server
	results    *services.ResultService
	opts       services.WatchOptions
	retention  time.Duration
	maxStreams int
	logger     logging.Logger
	metrics    *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*resultWatch
}

func newResultStreams(results *services.ResultService, opts services.WatchOptions, maxStreams int, logger logging.Logger, collector *metrics.Collector) *resultStreams {
	server := sse.New()
	server.AutoStream = false
	server.AutoReplay = true

	ctx, cancel := context.WithCancel(context.Background())
	return &resultStreams{
		sse:        server,
		results:    results,
		opts:       opts,
		retention:  defaultStreamRetention,
		maxStreams: maxStreams,
		logger:     logger,
		metrics:    collector,
		ctx:        ctx,
		cancel:     cancel,
		active:     make(map[string]*resultWatch),
	}
}

// ServeHTTP handles GET /result/stream?AppId_PlanId=&ExecutionId=
func (s *resultStreams) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	key, executionID := query.Get("AppId_PlanId"), query.Get("ExecutionId")
	if key == "" || executionID == "" {
		writeBadRequest(w, "AppId_PlanId and ExecutionId are required")
		return
	}

	id := key + "/" + executionID
	watch, ok := s.subscribe(id, key, executionID)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "too many result streams"})
		return
	}
	defer s.unsubscribe(id, watch)

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	query.Set("stream", id)
	req := r.Clone(r.Context())
	req.URL.RawQuery = query.Encode()
	s.sse.ServeHTTP(w, req)
}

// subscribe joins the watcher for id, starting one when none is running. It reports
// false when the stream limit is reached.
func (s *resultStreams) subscribe(id, key, executionID string) (*resultWatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	watch, exists := s.active[id]
	if !exists {
		if s.maxStreams > 0 && len(s.active) >= s.maxStreams {
			return nil, false
		}
		ctx, cancel := context.WithCancel(s.ctx)
		watch = &resultWatch{cancel: cancel}
		s.active[id] = watch
		s.sse.CreateStream(id)
		go s.watch(ctx, id, watch, key, executionID)
	}
	watch.subscribers++
	return watch, true
}

// unsubscribe stops an unfinished watcher once nobody is listening
func (s *resultStreams) unsubscribe(id string, watch *resultWatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	watch.subscribers--
	if watch.subscribers > 0 || watch.finished {
		return
	}
	watch.cancel()
	s.removeLocked(id, watch)
}

func (s *resultStreams) watch(ctx context.Context, id string, watch *resultWatch, key, executionID string) {
	err := s.results.Watch(ctx, key, executionID, s.opts, func(result models.Result) {
		data, err := json.Marshal(result)
		if err != nil {
			s.logger.Warn("failed to encode streamed result", logging.F("stream", id), logging.Err(err))
			return
		}
		s.publish(id, watch, "result", data, result.IsTerminal())
	})

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return
	default:
		s.logger.Warn("result watch ended", logging.F("stream", id), logging.Err(err))
		data, _ := json.Marshal(errorResponse{Error: err.Error()})
		s.publish(id, watch, "error", data, true)
	}

	time.AfterFunc(s.retention, func() { s.remove(id, watch) })
}

// publish sends an event unless the stream was already removed
func (s *resultStreams) publish(id string, watch *resultWatch, event string, data []byte, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[id] != watch {
		return
	}
	if final {
		watch.finished = true
	}
	s.sse.Publish(id, &sse.Event{Event: []byte(event), Data: data})
}

// remove closes a stream and disconnects its subscribers
func (s *resultStreams) remove(id string, watch *resultWatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id, watch)
}

func (s *resultStreams) removeLocked(id string, watch *resultWatch) {
	if s.active[id] != watch {
		return
	}
	delete(s.active, id)
	s.sse.RemoveStream(id)
}

// Close stops every watcher and disconnects every subscriber
func (s *resultStreams) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[string]*resultWatch)
	s.sse.Close()
}
