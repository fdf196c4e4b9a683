// Package protocol defines the control messages exchanged over the data
// channel alongside the raw binary chunks. Control messages travel as JSON
// text; chunks travel as unframed binary payloads and rely on the channel's
// ordering guarantee for sequencing.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Control message types.
const (
	TypeMetadata = "metadata"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Control is a textual control message. Metadata fields are only populated
// for TypeMetadata, Message only for TypeError.
type Control struct {
	Type        string `json:"type"`
	TotalSize   int    `json:"totalSize,omitempty"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	ChunkSize   int    `json:"chunkSize,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Metadata builds the stream-opening announcement. It is always the first
// message on the channel.
func Metadata(totalSize, totalChunks, chunkSize int) Control {
	return Control{
		Type:        TypeMetadata,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		ChunkSize:   chunkSize,
	}
}

// Complete builds the end-of-stream marker sent after the final chunk.
func Complete() Control {
	return Control{Type: TypeComplete}
}

// Error builds a failure notification. The sender closes the channel
// immediately after sending one.
func Error(message string) Control {
	return Control{Type: TypeError, Message: message}
}

// Encode serializes the control message for SendText.
func (c Control) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode control message: %w", err)
	}
	return string(data), nil
}

// Parse decodes a textual payload into a control message. Payloads with an
// empty or missing type are rejected; unknown types are returned as-is so
// the caller can log and ignore them.
func Parse(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, fmt.Errorf("malformed control message: %w", err)
	}
	if c.Type == "" {
		return Control{}, fmt.Errorf("control message missing type")
	}
	return c, nil
}
