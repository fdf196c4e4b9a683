package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"audiocast/internal/core/domain"
	"audiocast/internal/protocol"
	"audiocast/pkg/backoff"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const dataChannelLabel = "audio"

// ConnectionConfig holds the parameters of the client transport.
type ConnectionConfig struct {
	ClientID             string
	ICEServers           []webrtc.ICEServer
	MaxReconnectAttempts int
	Backoff              backoff.Config
}

// ConnectionCallbacks are invoked from transport goroutines. Control and
// chunk callbacks arrive in channel order; state and error callbacks may
// interleave with them.
type ConnectionCallbacks struct {
	OnStateChange func(domain.ConnectionState)
	OnControl     func(protocol.Control)
	OnChunk       func([]byte)
	OnError       func(error)
}

// Connection owns the transport lifecycle: peer setup, the offer/answer
// exchange, demultiplexing of inbound traffic, and reconnection with
// exponential backoff after unexpected failures of auto-triggered sessions.
type Connection struct {
	config    ConnectionConfig
	callbacks ConnectionCallbacks
	signaling *SignalingClient
	logger    *zap.SugaredLogger

	mu             sync.Mutex
	state          domain.ConnectionState
	pc             *webrtc.PeerConnection
	dc             *webrtc.DataChannel
	manual         bool
	auto           bool
	attempt        int
	reconnectTimer *time.Timer
	generation     int
}

func NewConnection(config ConnectionConfig, signaling *SignalingClient, callbacks ConnectionCallbacks, logger *zap.SugaredLogger) *Connection {
	return &Connection{
		config:    config,
		callbacks: callbacks,
		signaling: signaling,
		logger:    logger,
		state:     domain.ConnDisconnected,
	}
}

// State returns the current connection state.
func (c *Connection) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes a fresh transport. A no-op when already connected.
// isAuto marks the session as pipeline-triggered: only such sessions are
// retried after unexpected failure. A dial failure that scheduled a retry
// returns nil; the caller hears about it through OnError only once the
// attempts are exhausted.
func (c *Connection) Connect(isAuto bool) error {
	c.mu.Lock()
	if c.state == domain.ConnConnected {
		c.mu.Unlock()
		return nil
	}

	c.manual = false
	c.auto = isAuto
	c.teardownLocked()
	c.generation++
	gen := c.generation
	c.state = domain.ConnConnecting
	c.mu.Unlock()

	c.emitState(domain.ConnConnecting)

	if err := c.dial(gen); err != nil {
		c.logger.Warnw("connect failed", "error", err)
		if c.handleFailure(gen, err) {
			return nil
		}
		return err
	}
	return nil
}

// Disconnect tears the transport down and suppresses reconnection. Safe to
// call in any state, more than once.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.attempt = 0
	c.generation++
	wasDisconnected := c.state == domain.ConnDisconnected
	c.teardownLocked()
	c.state = domain.ConnDisconnected
	c.mu.Unlock()

	if !wasDisconnected {
		c.emitState(domain.ConnDisconnected)
	}
}

// dial opens the peer connection, creates the data channel, and completes
// the signaling exchange. Connected is reported only once the data channel
// itself opens.
func (c *Connection) dial(gen int) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: c.config.ICEServers,
	})
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{})
	if err != nil {
		pc.Close()
		return fmt.Errorf("failed to create data channel: %w", err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		pc.Close()
		return domain.ErrChannelClosed
	}
	c.pc = pc
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.state = domain.ConnConnected
		c.attempt = 0
		c.mu.Unlock()

		c.logger.Infow("data channel open", "client_id", c.config.ClientID)
		c.emitState(domain.ConnConnected)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.stale(gen) {
			return
		}
		if msg.IsString {
			c.handleControl(msg.Data)
			return
		}
		if c.callbacks.OnChunk != nil {
			c.callbacks.OnChunk(msg.Data)
		}
	})

	dc.OnError(func(err error) {
		if c.stale(gen) {
			return
		}
		c.logger.Warnw("data channel error", "error", err)
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(fmt.Errorf("data delivery failed: %w", err))
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Infow("peer connection state changed", "connection_state", state)
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			c.handleFailure(gen, fmt.Errorf("transport %s", state))
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	<-gatherComplete

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	answer, err := c.signaling.Exchange(ctx, c.config.ClientID, *pc.LocalDescription())
	if err != nil {
		return err
	}

	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to apply answer: %w", err)
	}
	return nil
}

// handleControl parses a textual payload. Malformed payloads and unknown
// types are logged and swallowed; they must not take the pipeline down.
func (c *Connection) handleControl(data []byte) {
	ctrl, err := protocol.Parse(data)
	if err != nil {
		c.logger.Warnw("ignoring malformed control message", "error", err)
		return
	}

	switch ctrl.Type {
	case protocol.TypeMetadata, protocol.TypeComplete, protocol.TypeError:
		if c.callbacks.OnControl != nil {
			c.callbacks.OnControl(ctrl)
		}
	default:
		c.logger.Warnw("ignoring unknown control message", "type", ctrl.Type)
	}
}

// handleFailure reacts to an unexpected transport failure: retry with
// backoff for auto-triggered sessions with attempts remaining, terminal
// error otherwise. Reports whether a retry was scheduled.
func (c *Connection) handleFailure(gen int, cause error) bool {
	c.mu.Lock()
	if gen != c.generation || c.manual {
		c.mu.Unlock()
		return false
	}
	c.generation++
	c.teardownLocked()
	c.state = domain.ConnDisconnected

	if !c.auto {
		c.mu.Unlock()
		c.emitState(domain.ConnDisconnected)
		c.emitError(cause)
		return false
	}

	if c.attempt >= c.config.MaxReconnectAttempts {
		attempts := c.attempt
		c.mu.Unlock()
		c.emitState(domain.ConnDisconnected)
		c.emitError(fmt.Errorf("%w after %d attempts: %v", domain.ErrReconnectExhausted, attempts, cause))
		return false
	}

	c.attempt++
	delay := c.config.Backoff.Delay(c.attempt)
	attempt := c.attempt
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.logger.Infow("reconnecting", "attempt", attempt)
		if err := c.Connect(true); err != nil {
			c.logger.Warnw("reconnect attempt failed", "attempt", attempt, "error", err)
		}
	})
	c.mu.Unlock()

	c.logger.Warnw("transport failed, retry scheduled",
		"attempt", attempt,
		"delay", delay,
		"error", cause,
	)
	c.emitState(domain.ConnDisconnected)
	return true
}

// teardownLocked cancels the pending reconnect timer and closes the
// transport. Callers hold c.mu.
func (c *Connection) teardownLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.dc != nil {
		c.dc.Close()
		c.dc = nil
	}
	if c.pc != nil {
		c.pc.Close()
		c.pc = nil
	}
}

func (c *Connection) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.generation
}

func (c *Connection) emitState(state domain.ConnectionState) {
	if c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(state)
	}
}

func (c *Connection) emitError(err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}
