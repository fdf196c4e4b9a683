package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"audiocast/internal/core/domain"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"go.uber.org/zap"
)

// SpeakerOutput plays decoded units on the system audio device. One source
// is audible at a time; Start replaces whatever was playing. The device is
// initialized lazily from the first unit's sample rate.
type SpeakerOutput struct {
	logger *zap.SugaredLogger

	mu         sync.Mutex
	sampleRate int
}

func NewSpeakerOutput(logger *zap.SugaredLogger) *SpeakerOutput {
	return &SpeakerOutput{logger: logger}
}

func (o *SpeakerOutput) Start(unit *domain.AudioUnit, offset time.Duration, onEnded func()) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sampleRate != unit.SampleRate {
		sr := beep.SampleRate(unit.SampleRate)
		if err := speaker.Init(sr, sr.N(100*time.Millisecond)); err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		o.sampleRate = unit.SampleRate
	}

	streamer := &pcmStreamer{unit: unit, frame: unit.FrameAt(offset)}

	speaker.Clear()
	// beep runs callbacks on the speaker goroutine with the speaker lock
	// held; hand off so the handler may use the speaker again.
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		go onEnded()
	})))

	o.logger.Debugw("source started",
		"offset", offset,
		"duration", unit.Duration,
	)
	return nil
}

func (o *SpeakerOutput) Stop() {
	speaker.Clear()
}

// pcmStreamer adapts a unit's interleaved s16le stereo PCM to beep.Streamer.
type pcmStreamer struct {
	unit  *domain.AudioUnit
	frame int
}

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		pos := (s.frame + filled) * domain.BytesPerFrame
		if pos+domain.BytesPerFrame > len(s.unit.PCM) {
			break
		}
		left := int16(binary.LittleEndian.Uint16(s.unit.PCM[pos : pos+2]))
		right := int16(binary.LittleEndian.Uint16(s.unit.PCM[pos+2 : pos+4]))
		samples[filled][0] = float64(left) / 32768
		samples[filled][1] = float64(right) / 32768
		filled++
	}
	s.frame += filled
	if filled == 0 {
		return 0, false
	}
	return filled, true
}

func (s *pcmStreamer) Err() error { return nil }
