package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolbridge/toolbridge/internal/domain/calllog"
)

// CallLogService provides async call logging with a buffered channel and a
// background worker, so recording a completed call never blocks the routing
// hot path.
type CallLogService struct {
	store         calllog.Store
	records       chan calllog.Record
	logger        *slog.Logger
	wg            sync.WaitGroup
	batchSize     int
	flushInterval time.Duration
	channelSize   int
	dropCount     atomic.Int64
}

// CallLogOption configures CallLogService.
type CallLogOption func(*CallLogService)

// WithCallLogBatchSize sets the number of records to batch before writing.
func WithCallLogBatchSize(size int) CallLogOption {
	return func(s *CallLogService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithCallLogFlushInterval sets the interval to flush pending records.
func WithCallLogFlushInterval(interval time.Duration) CallLogOption {
	return func(s *CallLogService) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithCallLogChannelSize sets the record channel buffer size.
func WithCallLogChannelSize(size int) CallLogOption {
	return func(s *CallLogService) {
		if size > 0 {
			s.records = make(chan calllog.Record, size)
			s.channelSize = size
		}
	}
}

// NewCallLogService creates a CallLogService with the given store.
func NewCallLogService(store calllog.Store, logger *slog.Logger, opts ...CallLogOption) *CallLogService {
	const defaultChannelSize = 1000
	s := &CallLogService{
		store:         store,
		records:       make(chan calllog.Record, defaultChannelSize),
		logger:        logger,
		batchSize:     100,
		flushInterval: time.Second,
		channelSize:   defaultChannelSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background worker that batches and writes records.
func (s *CallLogService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record sends a record to the background worker. A full channel drops the
// record and counts it; call logging must not slow down routing.
func (s *CallLogService) Record(rec calllog.Record) {
	select {
	case s.records <- rec:
	default:
		drops := s.dropCount.Add(1)
		s.logger.Warn("call record dropped",
			"session_id", rec.SessionID,
			"method", rec.Method,
			"total_drops", drops,
		)
	}
}

// DroppedRecords returns the total number of dropped records.
func (s *CallLogService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// Stop closes the record channel and waits for the final flush.
func (s *CallLogService) Stop() {
	close(s.records)
	s.wg.Wait()
}

func (s *CallLogService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]calllog.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-s.records:
			if !ok {
				if len(batch) > 0 {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					s.flush(flushCtx, batch)
					cancel()
				}
				return
			}
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			for rec := range s.records {
				batch = append(batch, rec)
			}
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				s.flush(flushCtx, batch)
				cancel()
			}
			return
		}
	}
}

// flush writes a batch to the store. Errors are logged, never propagated;
// call logging must not fail routing.
func (s *CallLogService) flush(ctx context.Context, batch []calllog.Record) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write call log batch",
			"error", err,
			"count", len(batch),
		)
	}
}
