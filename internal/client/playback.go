package client

import (
	"fmt"
	"sync"
	"time"

	"audiocast/internal/core/domain"
	"audiocast/internal/core/ports"
	"audiocast/internal/protocol"

	"go.uber.org/zap"
)

// Replacement policy: a newly decoded unit replaces the playing source when
// its duration has grown more than 10% past the duration the source started
// with, and either enough new content lies ahead of the play position or
// the absolute growth is large on its own.
const (
	replaceGrowthFraction = 0.10
	replaceAheadMinimum   = 5 * time.Second
	replaceGrowthAbsolute = 2 * time.Second
	endPositionFraction   = 0.99
)

// connectionControl is the slice of the connection the coordinator drives.
type connectionControl interface {
	Connect(isAuto bool) error
	Disconnect()
	State() domain.ConnectionState
}

// PlaybackStatus is a snapshot for display surfaces.
type PlaybackStatus struct {
	State      domain.PlaybackState
	Connection domain.ConnectionState
	Buffered   time.Duration
	Decoded    time.Duration
	Position   time.Duration
	Err        string
}

// Coordinator is the playback state machine: it reacts to decoder progress,
// user intent, and connection events, and drives the audible output,
// replacing the source in place as more of the asset is decoded.
type Coordinator struct {
	threshold time.Duration
	acc       *Accumulator
	conn      connectionControl
	output    ports.Output
	logger    *zap.SugaredLogger

	// now is the playback clock; replaced in tests.
	now func() time.Time

	mu             sync.Mutex
	state          domain.PlaybackState
	gesture        bool
	offset         time.Duration
	startTime      time.Time
	activeDuration time.Duration
	sourceGen      int
	errMsg         string
}

func NewCoordinator(threshold time.Duration, acc *Accumulator, conn connectionControl, output ports.Output, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		threshold: threshold,
		acc:       acc,
		conn:      conn,
		output:    output,
		logger:    logger,
		now:       time.Now,
		state:     domain.PlaybackIdle,
	}
}

// State returns the current playback state.
func (p *Coordinator) State() domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error overlay message, empty when healthy.
func (p *Coordinator) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errMsg
}

// Status reports a display snapshot.
func (p *Coordinator) Status() PlaybackStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := PlaybackStatus{
		State:      p.state,
		Connection: p.conn.State(),
		Buffered:   p.acc.EstimatedDuration(),
		Err:        p.errMsg,
	}
	if unit := p.acc.Unit(); unit != nil {
		status.Decoded = unit.Duration
	}
	switch p.state {
	case domain.PlaybackPlaying:
		status.Position = p.elapsedLocked()
	case domain.PlaybackPaused:
		status.Position = p.offset
	}
	return status
}

// MarkGesture records a qualifying user interaction. Auto-start stays
// blocked until one has occurred.
func (p *Coordinator) MarkGesture() {
	p.mu.Lock()
	p.gesture = true
	p.mu.Unlock()
	p.tryAutoStart()
}

// HandleConnectionState reacts to transport transitions: a fresh connection
// with nothing buffered and playback inactive enters buffering.
func (p *Coordinator) HandleConnectionState(state domain.ConnectionState) {
	if state != domain.ConnConnected {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == domain.PlaybackIdle && p.acc.BufferedBytes() == 0 {
		p.setStateLocked(domain.PlaybackBuffering)
	}
}

// HandleControl reacts to control messages from the channel.
func (p *Coordinator) HandleControl(ctrl protocol.Control) {
	switch ctrl.Type {
	case protocol.TypeMetadata:
		// Metadata opens a session's stream, which always restarts from
		// the first chunk. Bytes left over from a session that died
		// mid-stream would prefix the resent asset, so drop them.
		if stale := p.acc.BufferedBytes(); stale > 0 {
			p.logger.Infow("stream restarted, discarding stale buffer", "discarded_bytes", stale)
			p.acc.Reset()
		}
		p.logger.Infow("stream metadata",
			"total_size", ctrl.TotalSize,
			"total_chunks", ctrl.TotalChunks,
			"chunk_size", ctrl.ChunkSize,
		)
	case protocol.TypeComplete:
		p.logger.Infow("stream complete", "buffered_bytes", p.acc.BufferedBytes())
		// Force a final decode so the tail is not stranded behind the
		// growth threshold.
		p.acc.ForceDecode()
	case protocol.TypeError:
		p.HandleError(fmt.Errorf("server reported: %s", ctrl.Message))
	}
}

// HandleError records the error overlay, salvaging a decode of whatever
// bytes arrived so partial playback remains possible.
func (p *Coordinator) HandleError(err error) {
	p.logger.Errorw("stream error", "error", err)

	if p.acc.BufferedBytes() > 0 {
		p.acc.ForceDecode()
	}

	p.mu.Lock()
	p.errMsg = err.Error()
	p.mu.Unlock()
}

// HandleDecoded reacts to decoder progress: auto-start while buffering,
// source replacement while playing.
func (p *Coordinator) HandleDecoded(unit *domain.AudioUnit) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case domain.PlaybackBuffering:
		p.tryAutoStartLocked()
	case domain.PlaybackPlaying:
		p.maybeReplaceLocked(unit)
	}
}

// Play starts or resumes playback. Disconnected: initiate the connection
// and let auto-buffer/auto-start finish the job. Paused: resume at the
// recorded offset. Buffered past the threshold with a decoded unit: start
// now. Otherwise: buffer.
func (p *Coordinator) Play() error {
	p.MarkGesture()

	if p.conn.State() == domain.ConnDisconnected {
		return p.conn.Connect(true)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case domain.PlaybackPlaying:
		return nil
	case domain.PlaybackPaused:
		return p.startSourceLocked(p.offset)
	}

	if p.acc.Unit() != nil && p.acc.EstimatedDuration() >= p.threshold {
		return p.startSourceLocked(0)
	}

	p.setStateLocked(domain.PlaybackBuffering)
	return nil
}

// Pause stops the audible source and records the elapsed position for
// resume. Only valid while playing.
func (p *Coordinator) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != domain.PlaybackPlaying {
		return domain.ErrNotPlaying
	}

	p.sourceGen++
	p.output.Stop()
	p.offset = p.elapsedLocked()
	p.setStateLocked(domain.PlaybackPaused)
	return nil
}

// Stop tears everything down: audible source, connection, accumulation,
// error overlay. Valid and idempotent from every state.
func (p *Coordinator) Stop() {
	p.mu.Lock()
	p.sourceGen++
	p.output.Stop()
	p.offset = 0
	p.startTime = time.Time{}
	p.activeDuration = 0
	p.errMsg = ""
	p.setStateLocked(domain.PlaybackIdle)
	p.mu.Unlock()

	p.conn.Disconnect()
	p.acc.Reset()
}

// Retry performs a full teardown-and-reconnect after a terminal error.
func (p *Coordinator) Retry() error {
	p.Stop()
	return p.conn.Connect(true)
}

func (p *Coordinator) tryAutoStart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == domain.PlaybackBuffering {
		p.tryAutoStartLocked()
	}
}

// tryAutoStartLocked starts playback from offset zero once all three gates
// hold: a decoded unit exists, the buffered estimate has reached the
// threshold, and a qualifying gesture has occurred. Threshold crossing
// without a decoded unit keeps buffering.
func (p *Coordinator) tryAutoStartLocked() {
	if !p.gesture {
		return
	}
	if p.acc.Unit() == nil {
		return
	}
	if p.acc.EstimatedDuration() < p.threshold {
		return
	}
	if err := p.startSourceLocked(0); err != nil {
		p.logger.Errorw("auto-start failed", "error", err)
	}
}

// startSourceLocked starts the audible output at the given offset from the
// current decoded unit and records the playback cursor.
func (p *Coordinator) startSourceLocked(offset time.Duration) error {
	unit := p.acc.Unit()
	if unit == nil {
		return fmt.Errorf("%w: no decoded audio", domain.ErrDecodeFailed)
	}

	p.sourceGen++
	gen := p.sourceGen
	if err := p.output.Start(unit, offset, func() { p.handleEnded(gen) }); err != nil {
		return fmt.Errorf("failed to start output: %w", err)
	}

	p.offset = offset
	p.startTime = p.now()
	p.activeDuration = unit.Duration
	p.setStateLocked(domain.PlaybackPlaying)
	return nil
}

// maybeReplaceLocked swaps the playing source for a newly decoded, longer
// unit, resuming at the exact elapsed position.
func (p *Coordinator) maybeReplaceLocked(unit *domain.AudioUnit) {
	growth := unit.Duration - p.activeDuration
	if float64(growth) <= replaceGrowthFraction*float64(p.activeDuration) {
		return
	}

	elapsed := p.elapsedLocked()
	ahead := unit.Duration - elapsed
	if ahead <= replaceAheadMinimum && growth <= replaceGrowthAbsolute {
		return
	}

	p.logger.Infow("replacing source",
		"prior_duration", p.activeDuration,
		"new_duration", unit.Duration,
		"position", elapsed,
	)

	p.output.Stop()
	if err := p.startSourceLocked(elapsed); err != nil {
		p.logger.Errorw("source replacement failed", "error", err)
	}
}

// handleEnded reacts to the output's natural end signal. End signals from a
// replaced source (stale generation) and end signals arriving well short of
// the active duration are swap artifacts and are ignored.
func (p *Coordinator) handleEnded(gen int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.sourceGen || p.state != domain.PlaybackPlaying {
		return
	}

	elapsed := p.elapsedLocked()
	if elapsed.Seconds() < endPositionFraction*p.activeDuration.Seconds() {
		p.logger.Debugw("ignoring spurious end signal",
			"position", elapsed,
			"active_duration", p.activeDuration,
		)
		return
	}

	p.logger.Infow("playback finished", "duration", p.activeDuration)
	// The source has drained on its own; no output call is needed, and the
	// output's internal lock may still be held around the end signal.
	p.sourceGen++
	p.offset = 0
	p.setStateLocked(domain.PlaybackIdle)
}

// elapsedLocked computes the position in the current source:
// now - startTime + the offset the source started from.
func (p *Coordinator) elapsedLocked() time.Duration {
	if p.state != domain.PlaybackPlaying {
		return p.offset
	}
	return p.now().Sub(p.startTime) + p.offset
}

func (p *Coordinator) setStateLocked(state domain.PlaybackState) {
	if p.state == state {
		return
	}
	p.logger.Debugw("playback state changed", "from", p.state.String(), "to", state.String())
	p.state = state
}
