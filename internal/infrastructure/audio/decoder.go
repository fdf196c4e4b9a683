package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"audiocast/internal/core/domain"

	mp3 "github.com/hajimehoshi/go-mp3"
	"go.uber.org/zap"
)

const readChunkSize = 32 * 1024

// MP3Decoder decodes accumulated MP3 bytes into interleaved 16-bit stereo
// PCM. Input snapshots are usually truncated mid-frame while the stream is
// still arriving; everything decoded before the truncation point is kept,
// and only a snapshot yielding no audio at all is an error.
type MP3Decoder struct {
	logger *zap.SugaredLogger
}

func NewMP3Decoder(logger *zap.SugaredLogger) *MP3Decoder {
	return &MP3Decoder{logger: logger}
}

func (d *MP3Decoder) Decode(data []byte) (*domain.AudioUnit, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecodeFailed, err)
	}

	var pcm bytes.Buffer
	buf := make([]byte, readChunkSize)
	for {
		n, err := decoder.Read(buf)
		if n > 0 {
			pcm.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			// Truncated or damaged tail frame; keep what decoded cleanly.
			d.logger.Debugw("decode stopped at damaged frame",
				"decoded_bytes", pcm.Len(),
				"error", err,
			)
			break
		}
	}

	if pcm.Len() < domain.BytesPerFrame {
		return nil, fmt.Errorf("%w: no complete frames in %d bytes", domain.ErrDecodeFailed, len(data))
	}

	frames := pcm.Len() / domain.BytesPerFrame
	duration := time.Duration(float64(frames) / float64(decoder.SampleRate()) * float64(time.Second))

	return &domain.AudioUnit{
		PCM:        pcm.Bytes(),
		SampleRate: decoder.SampleRate(),
		Duration:   duration,
	}, nil
}
