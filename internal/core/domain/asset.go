package domain

import (
	"fmt"
	"os"
)

// Asset is an immutable audio byte sequence of known total length, sliced
// into fixed-size chunks. The final chunk may be shorter.
type Asset struct {
	data      []byte
	chunkSize int
}

// NewAsset wraps raw bytes as a streamable asset.
func NewAsset(data []byte, chunkSize int) (*Asset, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", chunkSize)
	}
	if len(data) == 0 {
		return nil, ErrAssetEmpty
	}
	return &Asset{data: data, chunkSize: chunkSize}, nil
}

// LoadAsset reads an asset from disk.
func LoadAsset(path string, chunkSize int) (*Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", path, err)
	}
	return NewAsset(data, chunkSize)
}

// TotalBytes returns the asset length in bytes.
func (a *Asset) TotalBytes() int {
	return len(a.data)
}

// ChunkSize returns the configured chunk size in bytes.
func (a *Asset) ChunkSize() int {
	return a.chunkSize
}

// TotalChunks returns ceil(totalBytes / chunkSize).
func (a *Asset) TotalChunks() int {
	return (len(a.data) + a.chunkSize - 1) / a.chunkSize
}

// Chunk returns the byte slice for the given chunk index. The returned
// slice aliases the asset data and must not be mutated.
func (a *Asset) Chunk(index int) ([]byte, error) {
	if index < 0 || index >= a.TotalChunks() {
		return nil, fmt.Errorf("%w: index %d of %d", ErrChunkOutOfRange, index, a.TotalChunks())
	}
	start := index * a.chunkSize
	end := start + a.chunkSize
	if end > len(a.data) {
		end = len(a.data)
	}
	return a.data[start:end], nil
}
