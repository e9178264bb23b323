package core

import (
	"errors"
	"sort"
	"time"
)

// EventKind is the gateway post_type of an event
type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindOther   EventKind = "other"
)

// Scope is the conversation type an event belongs to
type Scope string

const (
	ScopeGroup   Scope = "group"
	ScopePrivate Scope = "private"
	ScopeOther   Scope = "other"
)

// SegmentType is the type of one message content part
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentImage SegmentType = "image"
	SegmentOther SegmentType = "other"
)

// Segment is one typed part of a chat message
type Segment struct {
	Type SegmentType
	Text string
	URL  string
}

// Event represents one inbound chat event from the gateway
type Event struct {
	Kind      EventKind
	Scope     Scope
	GroupID   string
	UserID    string
	MessageID *int64
	Segments  []Segment
}

// Text concatenates all text segments in order
func (e *Event) Text() string {
	var text string
	for _, seg := range e.Segments {
		if seg.Type == SegmentText {
			text += seg.Text
		}
	}
	return text
}

// Images returns the image segments of the event
func (e *Event) Images() []Segment {
	var images []Segment
	for _, seg := range e.Segments {
		if seg.Type == SegmentImage {
			images = append(images, seg)
		}
	}
	return images
}

// HasImage reports whether the event carries at least one image segment
func (e *Event) HasImage() bool {
	for _, seg := range e.Segments {
		if seg.Type == SegmentImage {
			return true
		}
	}
	return false
}

var (
	// ErrDecodeFailed is set on a result when the image bytes cannot be decoded
	ErrDecodeFailed = errors.New("image decode failed")
	// ErrOracleFailed is set on a result when the oracle returned an error
	ErrOracleFailed = errors.New("classification oracle failed")
	// ErrOracleTimeout is set on a result when the oracle did not answer in time
	ErrOracleTimeout = errors.New("classification oracle timed out")
)

// LabelScore is the confidence the oracle assigned to one label
type LabelScore struct {
	Label      string
	Confidence float64
}

// ClassificationResult represents the scores produced for one image
type ClassificationResult struct {
	Scores       []LabelScore
	Mock         bool
	Source       string
	Err          error
	ClassifiedAt time.Time
}

// SortScores orders scores by confidence descending. Ties keep the position
// of the label in labelOrder; labels missing from labelOrder follow in
// lexical order.
func SortScores(scores []LabelScore, labelOrder []string) {
	rank := make(map[string]int, len(labelOrder))
	for i, label := range labelOrder {
		if _, ok := rank[label]; !ok {
			rank[label] = i
		}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Confidence != scores[j].Confidence {
			return scores[i].Confidence > scores[j].Confidence
		}
		ri, iok := rank[scores[i].Label]
		rj, jok := rank[scores[j].Label]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return scores[i].Label < scores[j].Label
		}
	})
}

// PolicySnapshot is an immutable copy of the moderation policy
type PolicySnapshot struct {
	AdminIDs            []string
	WhitelistGroups     []string
	AutoRecallGroups    []string
	ViolationKeywords   []string
	ConfidenceThreshold float64
	EvidencePath        string
}

// ModerationVerdict is the decision made for one classified image
type ModerationVerdict struct {
	Violated      bool
	MatchedLabels []string
	ReportText    string
}

// EvidenceRecord is the raw image persisted for a confirmed violation
type EvidenceRecord struct {
	GroupID    string
	UserID     string
	Labels     []string
	Data       []byte
	CapturedAt time.Time
}

// ViolationNotice summarizes the actions taken for one event
type ViolationNotice struct {
	GroupID   string
	UserID    string
	MessageID *int64
	Labels    []string
	Report    string
	Recalled  bool
	Evidence  []string
	At        time.Time
}
