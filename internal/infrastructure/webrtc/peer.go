package webrtc

import (
	"context"
	"fmt"
	"time"

	"audiocast/internal/core/domain"
	"audiocast/internal/infrastructure/monitoring"
	"audiocast/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// PeerConfig holds WebRTC and streaming parameters for server peers.
type PeerConfig struct {
	ICEServers    []webrtc.ICEServer
	SendInterval  time.Duration
	HighWaterMark uint64
}

// PeerManager accepts client offers and runs one streaming session per
// client id. The client creates the data channel; the sender starts when
// that channel opens on this side.
type PeerManager struct {
	config   PeerConfig
	asset    *domain.Asset
	registry *Registry
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger
}

func NewPeerManager(
	config PeerConfig,
	asset *domain.Asset,
	registry *Registry,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *PeerManager {
	return &PeerManager{
		config:   config,
		asset:    asset,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// CreateSession applies a remote offer, answers it, and registers the
// session. The answer carries the full ICE candidate set, so signaling is a
// single round trip. A live session under the same client id is replaced
// with cleanup.
func (m *PeerManager) CreateSession(ctx context.Context, clientID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	ctx, span := tracing.TraceSession(ctx, "create", clientID)
	defer span.End()

	pc, err := m.createPeerConnection()
	if err != nil {
		err = fmt.Errorf("failed to create peer connection: %w", err)
		tracing.RecordError(ctx, err)
		return webrtc.SessionDescription{}, err
	}

	session := NewSession(clientID, pc)

	pc.OnDataChannel(m.handleDataChannel(session))
	pc.OnConnectionStateChange(m.handleConnectionState(session))

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", domain.ErrInvalidOffer, err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return webrtc.SessionDescription{}, fmt.Errorf("ICE gathering cancelled: %w", ctx.Err())
	}

	m.registry.Put(session)
	m.logger.Infow("session created", "client_id", clientID)

	return *pc.LocalDescription(), nil
}

// CloseSession tears down the session for a client id.
func (m *PeerManager) CloseSession(clientID string) error {
	return m.registry.Remove(clientID)
}

// CloseAll tears down every live session.
func (m *PeerManager) CloseAll() {
	m.registry.CloseAll()
}

func (m *PeerManager) createPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: m.config.ICEServers,
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(webrtc.SettingEngine{}))
	return api.NewPeerConnection(config)
}

func (m *PeerManager) handleDataChannel(session *Session) func(*webrtc.DataChannel) {
	return func(dc *webrtc.DataChannel) {
		m.logger.Infow("data channel announced",
			"client_id", session.ClientID,
			"label", dc.Label(),
		)

		dc.OnOpen(func() {
			sender := NewSender(dc, m.asset, m.config.SendInterval, m.config.HighWaterMark, m.metrics, m.logger)
			session.AttachSender(sender)
			sender.Start()
		})

		dc.OnClose(func() {
			m.logger.Infow("data channel closed", "client_id", session.ClientID)
			session.StopSender()
		})
	}
}

func (m *PeerManager) handleConnectionState(session *Session) func(webrtc.PeerConnectionState) {
	return func(state webrtc.PeerConnectionState) {
		m.logger.Infow("peer connection state changed",
			"client_id", session.ClientID,
			"connection_state", state,
		)

		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			session.StopSender()
			m.registry.RemoveSession(session)
		}
	}
}
