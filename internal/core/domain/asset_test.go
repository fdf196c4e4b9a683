package domain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetChunkMath(t *testing.T) {
	// 200000 bytes at 65536 per chunk: four chunks, the last one short.
	data := make([]byte, 200000)
	asset, err := NewAsset(data, 65536)
	require.NoError(t, err)

	assert.Equal(t, 200000, asset.TotalBytes())
	assert.Equal(t, 4, asset.TotalChunks())

	sizes := []int{65536, 65536, 65536, 3392}
	for i, want := range sizes {
		chunk, err := asset.Chunk(i)
		require.NoError(t, err)
		assert.Equal(t, want, len(chunk), "chunk %d", i)
	}
}

func TestAssetChunksConcatenateToOriginal(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	asset, err := NewAsset(data, 10)
	require.NoError(t, err)

	var rebuilt bytes.Buffer
	for i := 0; i < asset.TotalChunks(); i++ {
		chunk, err := asset.Chunk(i)
		require.NoError(t, err)
		rebuilt.Write(chunk)
	}
	assert.Equal(t, data, rebuilt.Bytes())
}

func TestAssetExactMultipleOfChunkSize(t *testing.T) {
	asset, err := NewAsset(make([]byte, 128), 64)
	require.NoError(t, err)
	assert.Equal(t, 2, asset.TotalChunks())

	last, err := asset.Chunk(1)
	require.NoError(t, err)
	assert.Equal(t, 64, len(last))
}

func TestAssetChunkOutOfRange(t *testing.T) {
	asset, err := NewAsset(make([]byte, 100), 64)
	require.NoError(t, err)

	_, err = asset.Chunk(2)
	assert.ErrorIs(t, err, ErrChunkOutOfRange)

	_, err = asset.Chunk(-1)
	assert.ErrorIs(t, err, ErrChunkOutOfRange)
}

func TestAssetRejectsEmptyData(t *testing.T) {
	_, err := NewAsset(nil, 64)
	assert.ErrorIs(t, err, ErrAssetEmpty)
}

func TestAssetRejectsBadChunkSize(t *testing.T) {
	_, err := NewAsset(make([]byte, 10), 0)
	assert.Error(t, err)
}
