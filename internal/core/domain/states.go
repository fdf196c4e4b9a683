package domain

// ConnectionState is the client-visible transport state.
type ConnectionState int

const (
	ConnDisconnected ConnectionState = iota
	ConnConnecting
	ConnConnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// PlaybackState is the playback coordinator state. A connection error is an
// overlay on top of these states, not a state of its own.
type PlaybackState int

const (
	PlaybackIdle PlaybackState = iota
	PlaybackBuffering
	PlaybackPlaying
	PlaybackPaused
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackBuffering:
		return "buffering"
	case PlaybackPlaying:
		return "playing"
	case PlaybackPaused:
		return "paused"
	default:
		return "idle"
	}
}
