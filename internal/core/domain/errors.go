package domain

import "errors"

var (
	ErrAssetEmpty         = errors.New("asset is empty")
	ErrChunkOutOfRange    = errors.New("chunk index out of range")
	ErrSessionNotFound    = errors.New("session not found")
	ErrChannelClosed      = errors.New("data channel closed")
	ErrDecodeFailed       = errors.New("audio decode failed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrInvalidOffer       = errors.New("invalid session offer")
	ErrNotPlaying         = errors.New("not playing")
)
