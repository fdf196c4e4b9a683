package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"audiocast/internal/core/domain"
	"audiocast/internal/protocol"
	"audiocast/pkg/backoff"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type callbackRecorder struct {
	mu       sync.Mutex
	states   []domain.ConnectionState
	controls []protocol.Control
	chunks   [][]byte
	errors   []error
}

func (r *callbackRecorder) callbacks() ConnectionCallbacks {
	return ConnectionCallbacks{
		OnStateChange: func(s domain.ConnectionState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnControl: func(ctrl protocol.Control) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.controls = append(r.controls, ctrl)
		},
		OnChunk: func(chunk []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.chunks = append(r.chunks, chunk)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, err)
		},
	}
}

func (r *callbackRecorder) recordedControls() []protocol.Control {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Control(nil), r.controls...)
}

func (r *callbackRecorder) recordedErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

func (r *callbackRecorder) recordedStates() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ConnectionState(nil), r.states...)
}

func newTestConnection(rec *callbackRecorder, maxAttempts int) *Connection {
	return NewConnection(ConnectionConfig{
		ClientID:             "client-1",
		MaxReconnectAttempts: maxAttempts,
		Backoff: backoff.Config{
			InitialDelay: time.Hour, // never fires within a test
			MaxDelay:     time.Hour,
			Multiplier:   2.0,
		},
	}, nil, rec.callbacks(), zap.NewNop().Sugar())
}

func TestHandleControlForwardsKnownTypes(t *testing.T) {
	rec := &callbackRecorder{}
	conn := newTestConnection(rec, 3)

	for _, ctrl := range []protocol.Control{
		protocol.Metadata(100, 2, 50),
		protocol.Complete(),
		protocol.Error("boom"),
	} {
		encoded, err := ctrl.Encode()
		require.NoError(t, err)
		conn.handleControl([]byte(encoded))
	}

	controls := rec.recordedControls()
	require.Len(t, controls, 3)
	assert.Equal(t, protocol.TypeMetadata, controls[0].Type)
	assert.Equal(t, protocol.TypeComplete, controls[1].Type)
	assert.Equal(t, protocol.TypeError, controls[2].Type)
	assert.Equal(t, "boom", controls[2].Message)
}

func TestHandleControlSwallowsMalformedAndUnknown(t *testing.T) {
	rec := &callbackRecorder{}
	conn := newTestConnection(rec, 3)

	conn.handleControl([]byte("{not json"))
	conn.handleControl([]byte(`{"type":"mystery"}`))

	assert.Empty(t, rec.recordedControls())
	assert.Empty(t, rec.recordedErrors())
}

func TestHandleFailureIgnoresStaleGeneration(t *testing.T) {
	rec := &callbackRecorder{}
	conn := newTestConnection(rec, 3)
	conn.generation = 5

	conn.handleFailure(4, errors.New("old session died"))

	assert.Empty(t, rec.recordedErrors())
	assert.Empty(t, rec.recordedStates())
	assert.Equal(t, 5, conn.generation)
}

func TestHandleFailureSuppressedAfterManualDisconnect(t *testing.T) {
	rec := &callbackRecorder{}
	conn := newTestConnection(rec, 3)
	conn.manual = true

	conn.handleFailure(conn.generation, errors.New("transport closed"))

	assert.Empty(t, rec.recordedErrors())
	assert.Empty(t, rec.recordedStates())
}

func TestHandleFailureManualSessionIsTerminal(t *testing.T) {
	rec := &callbackRecorder{}
	conn := newTestConnection(rec, 3)
	conn.state = domain.ConnConnected
	conn.auto = false

	cause := errors.New("transport failed")
	assert.False(t, conn.handleFailure(conn.generation, cause))

	assert.Equal(t, domain.ConnDisconnected, conn.State())
	states := rec.recordedStates()
	require.Len(t, states, 1)
	assert.Equal(t, domain.ConnDisconnected, states[0])

	errs := rec.recordedErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], cause)
}

func TestHandleFailureSchedulesRetryForAutoSession(t *testing.T) {
	rec := &callbackRecorder{}
	conn := newTestConnection(rec, 3)
	conn.state = domain.ConnConnected
	conn.auto = true

	assert.True(t, conn.handleFailure(conn.generation, errors.New("transport failed")))

	assert.Equal(t, domain.ConnDisconnected, conn.State())
	assert.Equal(t, 1, conn.attempt)
	conn.mu.Lock()
	assert.NotNil(t, conn.reconnectTimer)
	conn.mu.Unlock()
	assert.Empty(t, rec.recordedErrors(), "a scheduled retry is not an error")

	conn.Disconnect()
	conn.mu.Lock()
	assert.Nil(t, conn.reconnectTimer, "disconnect must cancel the pending retry")
	conn.mu.Unlock()
}

func TestHandleFailureExhaustedRetriesIsTerminal(t *testing.T) {
	rec := &callbackRecorder{}
	conn := newTestConnection(rec, 3)
	conn.state = domain.ConnConnected
	conn.auto = true
	conn.attempt = 3

	assert.False(t, conn.handleFailure(conn.generation, errors.New("still down")))

	errs := rec.recordedErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrReconnectExhausted)
	assert.Contains(t, errs[0].Error(), "3 attempts")
}

func TestConnectReturnsNilWhenRetryScheduled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse all signaling requests

	rec := &callbackRecorder{}
	conn := NewConnection(ConnectionConfig{
		ClientID:             "client-1",
		MaxReconnectAttempts: 3,
		Backoff: backoff.Config{
			InitialDelay: time.Hour,
			MaxDelay:     time.Hour,
			Multiplier:   2.0,
		},
	}, NewSignalingClient(server.URL), rec.callbacks(), zap.NewNop().Sugar())

	// The dial fails at signaling, but a retry is scheduled, so the
	// caller sees success-in-progress rather than a failure.
	require.NoError(t, conn.Connect(true))
	assert.Equal(t, 1, conn.attempt)
	assert.Empty(t, rec.recordedErrors())

	conn.Disconnect()
}

func TestConnectSurfacesFailureForManualSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	rec := &callbackRecorder{}
	conn := NewConnection(ConnectionConfig{
		ClientID:             "client-1",
		MaxReconnectAttempts: 3,
		Backoff:              backoff.DefaultConfig(),
	}, NewSignalingClient(server.URL), rec.callbacks(), zap.NewNop().Sugar())

	assert.Error(t, conn.Connect(false))
	assert.Equal(t, domain.ConnDisconnected, conn.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	rec := &callbackRecorder{}
	conn := newTestConnection(rec, 3)

	conn.Disconnect()
	conn.Disconnect()

	// Already disconnected: no state transitions are emitted.
	assert.Empty(t, rec.recordedStates())
	assert.Equal(t, domain.ConnDisconnected, conn.State())
}
