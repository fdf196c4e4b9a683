package client

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"audiocast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDecoder struct {
	mu        sync.Mutex
	snapshots [][]byte
	fail      bool
}

func (f *fakeDecoder) Decode(data []byte) (*domain.AudioUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	f.snapshots = append(f.snapshots, copied)
	if f.fail {
		return nil, domain.ErrDecodeFailed
	}
	// One decoded second per input byte keeps duration assertions readable.
	return &domain.AudioUnit{
		PCM:        make([]byte, len(data)*domain.BytesPerFrame),
		SampleRate: 44100,
		Duration:   time.Duration(len(data)) * time.Second,
	}, nil
}

func (f *fakeDecoder) calls() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.snapshots...)
}

func (f *fakeDecoder) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func newTestAccumulator(decoder *fakeDecoder, onDecoded func(*domain.AudioUnit)) *Accumulator {
	cfg := DefaultAccumulatorConfig()
	cfg.BufferThreshold = 10 * time.Second
	cfg.AssumedByteRate = 12288
	return NewAccumulator(cfg, decoder, onDecoded, zap.NewNop().Sugar())
}

func TestEstimatedDurationFollowsAssumedRate(t *testing.T) {
	acc := newTestAccumulator(&fakeDecoder{}, nil)

	assert.Equal(t, time.Duration(0), acc.EstimatedDuration())

	acc.AddChunk(make([]byte, 12288))
	assert.Equal(t, time.Second, acc.EstimatedDuration())

	acc.AddChunk(make([]byte, 6144))
	assert.Equal(t, 1500*time.Millisecond, acc.EstimatedDuration())
	assert.Equal(t, 18432, acc.BufferedBytes())
	assert.Equal(t, 2, acc.Chunks())
}

func TestNoDecodeBelowThreshold(t *testing.T) {
	decoder := &fakeDecoder{}
	acc := newTestAccumulator(decoder, nil)

	// One byte short of the 10s threshold at 12288 B/s.
	acc.AddChunk(make([]byte, 122879))
	assert.Empty(t, decoder.calls())
	assert.Nil(t, acc.Unit())

	acc.AddChunk(make([]byte, 1))
	require.Len(t, decoder.calls(), 1)
	require.NotNil(t, acc.Unit())
}

func TestRedecodeRequiresTwentyPercentGrowth(t *testing.T) {
	decoder := &fakeDecoder{}
	acc := newTestAccumulator(decoder, nil)

	acc.AddChunk(make([]byte, 122880))
	require.Len(t, decoder.calls(), 1)

	// 19% past the decoded size: not enough.
	acc.AddChunk(make([]byte, 23347))
	assert.Len(t, decoder.calls(), 1)

	// Crossing 1.2x the decoded size triggers the redecode.
	acc.AddChunk(make([]byte, 1300))
	assert.Len(t, decoder.calls(), 2)
}

func TestDecodeSnapshotPreservesChunkOrder(t *testing.T) {
	decoder := &fakeDecoder{}
	cfg := DefaultAccumulatorConfig()
	cfg.BufferThreshold = 0 // decode on every chunk
	acc := NewAccumulator(cfg, decoder, nil, zap.NewNop().Sugar())

	chunkA := []byte("first-")
	chunkB := []byte("second-")
	chunkC := []byte("third")
	acc.AddChunk(chunkA)
	acc.ForceDecode()
	acc.AddChunk(chunkB)
	acc.AddChunk(chunkC)
	acc.ForceDecode()

	calls := decoder.calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, bytes.Join([][]byte{chunkA, chunkB, chunkC}, nil), last)
}

func TestFailedDecodeKeepsPreviousUnit(t *testing.T) {
	decoder := &fakeDecoder{}
	acc := newTestAccumulator(decoder, nil)

	acc.AddChunk(make([]byte, 122880))
	first := acc.Unit()
	require.NotNil(t, first)

	decoder.setFail(true)
	acc.AddChunk(make([]byte, 30000))
	require.Len(t, decoder.calls(), 2)
	assert.Same(t, first, acc.Unit(), "failed decode must leave the prior unit standing")
}

func TestForceDecodeIgnoresGating(t *testing.T) {
	decoder := &fakeDecoder{}
	var decoded []*domain.AudioUnit
	acc := newTestAccumulator(decoder, func(unit *domain.AudioUnit) {
		decoded = append(decoded, unit)
	})

	acc.AddChunk(make([]byte, 100)) // far below the threshold
	require.Empty(t, decoder.calls())

	acc.ForceDecode()
	require.Len(t, decoder.calls(), 1)
	require.Len(t, decoded, 1)
	assert.Same(t, acc.Unit(), decoded[0])
}

func TestForceDecodeOnEmptyBufferIsNoop(t *testing.T) {
	decoder := &fakeDecoder{}
	acc := newTestAccumulator(decoder, nil)

	acc.ForceDecode()
	assert.Empty(t, decoder.calls())
}

func TestResetClearsEverything(t *testing.T) {
	decoder := &fakeDecoder{}
	acc := newTestAccumulator(decoder, nil)

	acc.AddChunk(make([]byte, 122880))
	require.NotNil(t, acc.Unit())

	acc.Reset()
	assert.Zero(t, acc.BufferedBytes())
	assert.Zero(t, acc.Chunks())
	assert.Nil(t, acc.Unit())
	assert.Equal(t, time.Duration(0), acc.EstimatedDuration())

	// The decode baseline is gone too: the threshold applies afresh.
	acc.AddChunk(make([]byte, 100))
	assert.Len(t, decoder.calls(), 1, "no new decode below the threshold after reset")
}

func TestFailedDecodeFiresNoCallback(t *testing.T) {
	decoder := &fakeDecoder{fail: true}
	fired := 0
	acc := newTestAccumulator(decoder, func(*domain.AudioUnit) { fired++ })

	acc.AddChunk(make([]byte, 122880))
	require.Len(t, decoder.calls(), 1)
	assert.Zero(t, fired)
	assert.Nil(t, acc.Unit())
}
