package client

import (
	"sync"
	"time"

	"audiocast/internal/core/domain"
	"audiocast/internal/core/ports"

	"go.uber.org/zap"
)

// AccumulatorConfig tunes when decode attempts are made.
type AccumulatorConfig struct {
	// BufferThreshold gates the first decode: nothing is attempted until
	// the estimated buffered duration reaches it.
	BufferThreshold time.Duration
	// AssumedByteRate is the bytes-per-second constant behind the duration
	// estimate. Deliberately conservative relative to the real encoded
	// bitrate so the estimate under-reports and playback never starts early.
	AssumedByteRate int
	// GrowthFactor is how much the buffer must grow past the last decoded
	// size before redecoding (1.2 = 20%).
	GrowthFactor float64
}

func DefaultAccumulatorConfig() AccumulatorConfig {
	return AccumulatorConfig{
		BufferThreshold: 10 * time.Second,
		AssumedByteRate: 12 * 1024,
		GrowthFactor:    1.2,
	}
}

// Accumulator owns the growing byte buffer and the current decoded unit.
// Chunks append in arrival order; decodes run against an immutable snapshot
// and are serialized by a busy flag. A failed decode leaves the previous
// unit standing.
type Accumulator struct {
	config  AccumulatorConfig
	decoder ports.Decoder
	logger  *zap.SugaredLogger

	// onDecoded fires after every successful decode with the new unit.
	onDecoded func(*domain.AudioUnit)

	mu              sync.Mutex
	buf             []byte
	chunks          int
	unit            *domain.AudioUnit
	lastDecodedSize int
	decoding        bool
	pendingForce    bool
}

func NewAccumulator(config AccumulatorConfig, decoder ports.Decoder, onDecoded func(*domain.AudioUnit), logger *zap.SugaredLogger) *Accumulator {
	return &Accumulator{
		config:    config,
		decoder:   decoder,
		onDecoded: onDecoded,
		logger:    logger,
	}
}

// AddChunk appends received bytes and attempts a decode when the buffer has
// grown enough to make one worthwhile.
func (a *Accumulator) AddChunk(chunk []byte) {
	a.mu.Lock()
	a.buf = append(a.buf, chunk...)
	a.chunks++
	shouldDecode := a.decodeDueLocked()
	a.mu.Unlock()

	if shouldDecode {
		a.decode(false)
	}
}

// ForceDecode attempts a decode regardless of the growth gating. Used when
// the stream completes (so the tail is not stranded) and to salvage partial
// data after a transport error.
func (a *Accumulator) ForceDecode() {
	a.decode(true)
}

// EstimatedDuration is the cheap buffered-seconds estimate:
// bytes / assumed rate.
func (a *Accumulator) EstimatedDuration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.estimateLocked()
}

// BufferedBytes returns the accumulated byte count.
func (a *Accumulator) BufferedBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// Chunks returns the number of chunks received since the last reset.
func (a *Accumulator) Chunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks
}

// Unit returns the current decoded unit, or nil before the first
// successful decode.
func (a *Accumulator) Unit() *domain.AudioUnit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unit
}

// Reset clears the buffer, the decoded unit, and the decode baseline.
// Callers must not reset while a decode they issued is still in flight.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = nil
	a.chunks = 0
	a.unit = nil
	a.lastDecodedSize = 0
	a.pendingForce = false
}

func (a *Accumulator) estimateLocked() time.Duration {
	seconds := float64(len(a.buf)) / float64(a.config.AssumedByteRate)
	return time.Duration(seconds * float64(time.Second))
}

// decodeDueLocked decides whether the buffer warrants a decode attempt:
// first decode once the estimate crosses the threshold, then again on every
// 20% growth past the last successfully decoded size.
func (a *Accumulator) decodeDueLocked() bool {
	if a.unit == nil {
		return a.estimateLocked() >= a.config.BufferThreshold
	}
	return float64(len(a.buf)) >= a.config.GrowthFactor*float64(a.lastDecodedSize)
}

// decode snapshots the buffer and runs one decode attempt. At most one
// attempt is in flight; a forced trigger arriving during one is remembered
// and replayed once, a gated trigger is simply dropped (the next growth
// trigger re-evaluates).
func (a *Accumulator) decode(forced bool) {
	a.mu.Lock()
	if a.decoding {
		if forced {
			a.pendingForce = true
		}
		a.mu.Unlock()
		return
	}
	if len(a.buf) == 0 {
		a.mu.Unlock()
		return
	}
	a.decoding = true
	snapshot := make([]byte, len(a.buf))
	copy(snapshot, a.buf)
	a.mu.Unlock()

	unit, err := a.decoder.Decode(snapshot)

	a.mu.Lock()
	a.decoding = false
	replay := a.pendingForce
	a.pendingForce = false
	if err == nil {
		a.unit = unit
		a.lastDecodedSize = len(snapshot)
	}
	a.mu.Unlock()

	if err != nil {
		// Expected while the encoded data is still incomplete.
		a.logger.Debugw("decode attempt failed", "snapshot_bytes", len(snapshot), "error", err)
	} else {
		a.logger.Infow("decoded audio",
			"snapshot_bytes", len(snapshot),
			"duration", unit.Duration,
		)
		if a.onDecoded != nil {
			a.onDecoded(unit)
		}
	}

	if replay {
		a.decode(true)
	}
}
