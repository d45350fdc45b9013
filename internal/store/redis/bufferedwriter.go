package redis

import (
	"context"
	"log"
	"sync"

	"candleseq/internal/analysis"
	"candleseq/internal/pattern"
)

// Sink is what BufferedPublisher publishes through. *Publisher satisfies it.
type Sink interface {
	PublishReport(ctx context.Context, rep *analysis.Report) error
	PublishPatterns(ctx context.Context, batchID string, out pattern.Outcome) error
}

// pendingWrite is a publish that was rejected while the circuit was open.
// Exactly one of report or patterns is set.
type pendingWrite struct {
	report   *analysis.Report
	batchID  string
	patterns *pattern.Outcome
}

// BufferedPublisher wraps a Sink with a circuit breaker. While the circuit is
// open, publishes are buffered locally and replayed when it closes again.
type BufferedPublisher struct {
	sink Sink
	cb   *CircuitBreaker
	ctx  context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // oldest writes are dropped beyond this

	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after replaying buffered writes
}

// NewBufferedPublisher creates a BufferedPublisher. It chains onto
// cb.OnStateChange to flush when the circuit closes.
func NewBufferedPublisher(ctx context.Context, sink Sink, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bp := &BufferedPublisher{
		sink:   sink,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 64),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed && from != StateClosed {
			go bp.Flush()
		}
	}
	return bp
}

// PublishReport publishes through the circuit breaker. A rejected report is
// buffered and nil returned; a failed publish returns the error.
func (bp *BufferedPublisher) PublishReport(rep *analysis.Report) error {
	err := bp.cb.Execute(func() error {
		return bp.sink.PublishReport(bp.ctx, rep)
	})
	if err == ErrCircuitOpen {
		bp.push(pendingWrite{report: rep})
		return nil
	}
	return err
}

// PublishPatterns publishes a pattern outcome through the circuit breaker.
func (bp *BufferedPublisher) PublishPatterns(batchID string, out pattern.Outcome) error {
	err := bp.cb.Execute(func() error {
		return bp.sink.PublishPatterns(bp.ctx, batchID, out)
	})
	if err == ErrCircuitOpen {
		bp.push(pendingWrite{batchID: batchID, patterns: &out})
		return nil
	}
	return err
}

func (bp *BufferedPublisher) push(pw pendingWrite) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, pw)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays buffered writes directly on the sink. Writes that fail again
// are dropped and logged.
func (bp *BufferedPublisher) Flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]pendingWrite, 0, 64)
	bp.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		var err error
		if pw.report != nil {
			err = bp.sink.PublishReport(bp.ctx, pw.report)
		} else {
			err = bp.sink.PublishPatterns(bp.ctx, pw.batchID, *pw.patterns)
		}
		if err != nil {
			log.Printf("[buffered-writer] replay failed: %v", err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d/%d buffered writes", flushed, len(toFlush))
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

var _ Sink = (*Publisher)(nil)
