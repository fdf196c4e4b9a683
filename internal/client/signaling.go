package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pion/webrtc/v3"
)

// SignalingClient performs the single offer/answer exchange with the server.
type SignalingClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSignalingClient(baseURL string) *SignalingClient {
	return &SignalingClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type offerRequest struct {
	Offer    sessionDescription `json:"offer"`
	ClientID string             `json:"clientId"`
}

type sessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type answerResponse struct {
	Answer sessionDescription `json:"answer"`
	Error  string             `json:"error"`
}

// Exchange POSTs the local offer and returns the remote answer.
func (s *SignalingClient) Exchange(ctx context.Context, clientID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	body, err := json.Marshal(offerRequest{
		Offer:    sessionDescription{Type: offer.Type.String(), SDP: offer.SDP},
		ClientID: clientID,
	})
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to encode offer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/offer", bytes.NewReader(body))
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to build signaling request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("signaling request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to read signaling response: %w", err)
	}

	var parsed answerResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("malformed signaling response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return webrtc.SessionDescription{}, fmt.Errorf("signaling rejected offer: %s", parsed.Error)
		}
		return webrtc.SessionDescription{}, fmt.Errorf("signaling returned status %d", resp.StatusCode)
	}

	if parsed.Answer.Type == "" || parsed.Answer.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("signaling response missing answer")
	}

	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(parsed.Answer.Type),
		SDP:  parsed.Answer.SDP,
	}, nil
}
