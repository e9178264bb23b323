package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mikey/image-mod-relay/internal/core"
)

// flexID accepts an identifier sent either as a JSON number or a string
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*id = flexID(n.String())
	return nil
}

type wireFrame struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	GroupID     flexID          `json:"group_id"`
	UserID      flexID          `json:"user_id"`
	MessageID   flexID          `json:"message_id"`
	Message     json.RawMessage `json:"message"`
}

type wireSegment struct {
	Type string `json:"type"`
	Data struct {
		Text string `json:"text"`
		URL  string `json:"url"`
		File string `json:"file"`
	} `json:"data"`
}

// DecodeEvent parses one gateway frame. Frames without a post_type, such
// as API responses, decode to an event of kind other.
func DecodeEvent(raw []byte) (*core.Event, error) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("failed to decode gateway frame: %w", err)
	}

	ev := &core.Event{
		Kind:    core.EventKindOther,
		Scope:   core.ScopeOther,
		GroupID: string(frame.GroupID),
		UserID:  string(frame.UserID),
	}
	if frame.PostType == string(core.EventKindMessage) {
		ev.Kind = core.EventKindMessage
	}
	switch frame.MessageType {
	case string(core.ScopeGroup):
		ev.Scope = core.ScopeGroup
	case string(core.ScopePrivate):
		ev.Scope = core.ScopePrivate
	}
	if frame.MessageID != "" {
		if id, err := strconv.ParseInt(string(frame.MessageID), 10, 64); err == nil {
			ev.MessageID = &id
		}
	}

	segments, err := decodeSegments(frame.Message)
	if err != nil {
		return nil, err
	}
	ev.Segments = segments
	return ev, nil
}

// decodeSegments handles both message formats: an array of typed segments
// or a plain string, which becomes one text segment
func decodeSegments(raw json.RawMessage) ([]core.Segment, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("failed to decode message string: %w", err)
		}
		return []core.Segment{{Type: core.SegmentText, Text: text}}, nil
	}

	var wire []wireSegment
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode message segments: %w", err)
	}

	segments := make([]core.Segment, 0, len(wire))
	for _, w := range wire {
		switch w.Type {
		case "text":
			segments = append(segments, core.Segment{Type: core.SegmentText, Text: w.Data.Text})
		case "image":
			url := w.Data.URL
			if url == "" && isHTTPURL(w.Data.File) {
				url = w.Data.File
			}
			segments = append(segments, core.Segment{Type: core.SegmentImage, URL: url})
		default:
			segments = append(segments, core.Segment{Type: core.SegmentOther})
		}
	}
	return segments, nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
