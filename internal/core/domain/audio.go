package domain

import "time"

// AudioUnit is a decoded, time-indexed playable representation of the
// accumulated bytes: interleaved 16-bit little-endian stereo PCM. At most
// one current unit exists per stream; a successful decode replaces it
// wholesale and the unit itself is never mutated afterwards.
type AudioUnit struct {
	PCM        []byte
	SampleRate int
	Duration   time.Duration
}

// BytesPerFrame is the size of one interleaved stereo frame (2 channels
// of 16-bit samples), matching the decoder output format.
const BytesPerFrame = 4

// Frames returns the number of sample frames in the unit.
func (u *AudioUnit) Frames() int {
	return len(u.PCM) / BytesPerFrame
}

// FrameAt returns the frame index corresponding to an offset into the unit.
func (u *AudioUnit) FrameAt(offset time.Duration) int {
	frame := int(offset.Seconds() * float64(u.SampleRate))
	if frame < 0 {
		frame = 0
	}
	if frame > u.Frames() {
		frame = u.Frames()
	}
	return frame
}
