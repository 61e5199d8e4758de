package queue

import (
	"encoding/json"
	"fmt"
)

// Event types published by the client.
const (
	EventReportReady = "report.ready"
	EventReportSaved = "report.saved"
)

// MessageVersion is the current payload schema version.
const MessageVersion = 1

// Message is the payload sent to downstream consumers when an analysis
// reaches a new stage.
type Message struct {
	Event      string `json:"event"`
	AnalysisID int64  `json:"analysisId"`
	Owner      string `json:"owner,omitempty"`
	StorageKey string `json:"storageKey,omitempty"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message. Unknown versions are rejected.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Version > MessageVersion {
		return Message{}, fmt.Errorf("unsupported message version %d", msg.Version)
	}
	return msg, nil
}
