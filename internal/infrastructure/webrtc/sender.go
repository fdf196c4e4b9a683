package webrtc

import (
	"sync"
	"time"

	"audiocast/internal/core/domain"
	"audiocast/internal/core/ports"
	"audiocast/internal/infrastructure/monitoring"
	"audiocast/internal/protocol"

	"go.uber.org/zap"
)

// Sender streams one asset over one data channel: a metadata message first,
// every chunk in strictly increasing index order, then a complete message.
// Sends are paced at a fixed interval and gated on the channel's queued-bytes
// gauge; a gated tick defers the current chunk without advancing the cursor.
type Sender struct {
	channel   ports.DataChannel
	asset     *domain.Asset
	interval  time.Duration
	highWater uint64
	metrics   *monitoring.PrometheusCollector
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	active bool
	stop   chan struct{}
	done   chan struct{}
}

func NewSender(
	channel ports.DataChannel,
	asset *domain.Asset,
	interval time.Duration,
	highWater uint64,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *Sender {
	return &Sender{
		channel:   channel,
		asset:     asset,
		interval:  interval,
		highWater: highWater,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start launches the streaming loop. Starting an already-active sender is a
// no-op, so at most one loop runs per sender.
func (s *Sender) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run()
}

// Stop cancels the streaming loop. Safe to call at any time, from any state,
// more than once.
func (s *Sender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Done reports when the streaming loop has fully exited.
func (s *Sender) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Sender) run() {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()

	meta := protocol.Metadata(s.asset.TotalBytes(), s.asset.TotalChunks(), s.asset.ChunkSize())
	msg, err := meta.Encode()
	if err != nil {
		s.fail("failed to encode stream metadata: " + err.Error())
		return
	}
	if err := s.channel.SendText(msg); err != nil {
		s.fail("failed to send stream metadata: " + err.Error())
		return
	}

	s.logger.Infow("streaming started",
		"total_bytes", s.asset.TotalBytes(),
		"total_chunks", s.asset.TotalChunks(),
		"chunk_size", s.asset.ChunkSize(),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	index := 0
	total := s.asset.TotalChunks()

	for index < total {
		select {
		case <-s.stop:
			s.logger.Infow("streaming stopped", "chunks_sent", index, "total_chunks", total)
			return
		case <-ticker.C:
		}

		// Flow control: defer without advancing the cursor while the
		// transport's queue is at or above the high-water mark.
		if s.channel.BufferedAmount() >= s.highWater {
			s.metrics.RecordSendDeferred()
			s.logger.Debugw("send deferred by backpressure",
				"chunk_index", index,
				"buffered_amount", s.channel.BufferedAmount(),
			)
			continue
		}

		chunk, err := s.asset.Chunk(index)
		if err != nil {
			s.fail("failed to read chunk: " + err.Error())
			return
		}
		if err := s.channel.Send(chunk); err != nil {
			s.fail("failed to send chunk: " + err.Error())
			return
		}
		s.metrics.RecordChunkSent(len(chunk))
		index++
	}

	completeMsg, err := protocol.Complete().Encode()
	if err == nil {
		err = s.channel.SendText(completeMsg)
	}
	if err != nil {
		s.logger.Warnw("failed to send complete message", "error", err)
		return
	}
	s.logger.Infow("streaming complete", "chunks_sent", total)
}

// fail notifies the client best-effort and closes the channel. A failed
// notification is swallowed: the channel is going down either way.
func (s *Sender) fail(message string) {
	s.logger.Errorw("streaming failed", "error", message)
	if msg, err := protocol.Error(message).Encode(); err == nil {
		if sendErr := s.channel.SendText(msg); sendErr != nil {
			s.logger.Debugw("failed to notify client of error", "error", sendErr)
		}
	}
	if err := s.channel.Close(); err != nil {
		s.logger.Debugw("failed to close channel", "error", err)
	}
}
