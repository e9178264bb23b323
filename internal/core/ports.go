package core

import (
	"context"
)

// MessageType selects the gateway send endpoint
type MessageType string

const (
	MessageGroup   MessageType = "group"
	MessagePrivate MessageType = "private"
)

// Gateway defines the outbound operations of the messaging gateway
type Gateway interface {
	// SendMessage sends a text message to a group or a user
	SendMessage(ctx context.Context, messageType MessageType, targetID string, message string) error

	// DeleteMessage recalls a previously sent message
	DeleteMessage(ctx context.Context, messageID int64) error

	// FetchImage downloads attachment bytes; false means no data
	FetchImage(ctx context.Context, url string) ([]byte, bool)
}

// ImageClassifier scores image bytes and never fails the caller
type ImageClassifier interface {
	Classify(ctx context.Context, data []byte) *ClassificationResult
}

// PolicyReader is the read side of the policy store used by the pipeline
type PolicyReader interface {
	IsAdmin(userID string) bool
	IsWhitelisted(groupID string) bool
	IsAutoRecall(groupID string) bool
	Snapshot() PolicySnapshot
}

// PolicyWriter is the mutation side used by admin commands
type PolicyWriter interface {
	AddWhitelist(ctx context.Context, groupID string) bool
	RemoveWhitelist(ctx context.Context, groupID string) bool
	EnableAutoRecall(ctx context.Context, groupID string) bool
	ListWhitelist() []string
}

// Policy combines the read and write side of the policy store
type Policy interface {
	PolicyReader
	PolicyWriter
}

// EvidenceStore persists evidence records
type EvidenceStore interface {
	// Save writes the record and returns where it was stored
	Save(ctx context.Context, record *EvidenceRecord) (string, error)
}

// Notifier tells moderators about confirmed violations
type Notifier interface {
	Notify(ctx context.Context, notice *ViolationNotice) error
}

// Scheduler runs work off the event receive path
type Scheduler interface {
	// AddWork queues task; tasks sharing a key run in order
	AddWork(ctx context.Context, key string, task func(context.Context) error) error
}
