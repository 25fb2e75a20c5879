package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request operations understood by the worker.
const (
	OpUpload   = "upload"
	OpDownload = "download"
	OpExport   = "export"
)

// BackupRequestMessage asks the worker to run one operation for one user.
// It carries only the user id; the worker reads everything else locally.
type BackupRequestMessage struct {
	UserID    string    `json:"user_id"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBackupRequestMessage(userID, operation string) *BackupRequestMessage {
	return &BackupRequestMessage{
		UserID:    userID,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

// Validate rejects messages the worker could never process.
func (m *BackupRequestMessage) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("missing user_id")
	}
	switch m.Operation {
	case OpUpload, OpDownload, OpExport:
		return nil
	}
	return fmt.Errorf("unknown operation %q", m.Operation)
}

func (m *BackupRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BackupRequestMessageFromJSON(data []byte) (*BackupRequestMessage, error) {
	var msg BackupRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BackupEventMessage reports a finished backup, restore or export.
type BackupEventMessage struct {
	UserID       string    `json:"user_id"`
	Operation    string    `json:"operation"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Transactions int       `json:"transactions"`
	Defaulted    int       `json:"defaulted,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (m *BackupEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BackupEventMessageFromJSON(data []byte) (*BackupEventMessage, error) {
	var msg BackupEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
