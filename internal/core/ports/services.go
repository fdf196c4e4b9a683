package ports

import (
	"context"
	"time"

	"audiocast/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// DataChannel is the view of the transport the chunk sender needs: ordered
// reliable sends plus the queued-bytes backpressure gauge.
type DataChannel interface {
	Send(data []byte) error
	SendText(s string) error
	BufferedAmount() uint64
	Close() error
}

// Decoder turns a snapshot of accumulated bytes into a playable unit.
// Failures on truncated input are expected and must not be escalated.
type Decoder interface {
	Decode(data []byte) (*domain.AudioUnit, error)
}

// Output drives the audible device. Start begins playback of the unit at
// the given offset; onEnded fires when the unit drains naturally, not when
// Stop interrupts it, and may be delivered while the output's internal lock
// is held — handlers must not call back into the Output from it.
// Implementations must tolerate Stop without a prior Start.
type Output interface {
	Start(unit *domain.AudioUnit, offset time.Duration, onEnded func()) error
	Stop()
}

// PeerService owns server-side peer sessions keyed by client id.
type PeerService interface {
	CreateSession(ctx context.Context, clientID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	CloseSession(clientID string) error
	CloseAll()
}
