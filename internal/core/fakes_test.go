package core

import (
	"context"
	"errors"
	"sync"
)

type sentMessage struct {
	Type    MessageType
	Target  string
	Message string
}

type fakeGateway struct {
	mu       sync.Mutex
	sent     []sentMessage
	deleted  []int64
	images   map[string][]byte
	sendErr  error
	fetchErr map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{images: map[string][]byte{}, fetchErr: map[string]bool{}}
}

func (g *fakeGateway) SendMessage(ctx context.Context, messageType MessageType, targetID string, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, sentMessage{Type: messageType, Target: targetID, Message: message})
	return nil
}

func (g *fakeGateway) DeleteMessage(ctx context.Context, messageID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, messageID)
	return nil
}

func (g *fakeGateway) FetchImage(ctx context.Context, url string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr[url] {
		return nil, false
	}
	data, ok := g.images[url]
	return data, ok
}

func (g *fakeGateway) Sent() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}

// fakeClassifier answers by image content
type fakeClassifier struct {
	mu      sync.Mutex
	results map[string]*ClassificationResult
	calls   int
}

func (c *fakeClassifier) Classify(ctx context.Context, data []byte) *ClassificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if r, ok := c.results[string(data)]; ok {
		return r
	}
	return &ClassificationResult{Err: ErrDecodeFailed}
}

type fakePolicy struct {
	mu         sync.Mutex
	admins     map[string]bool
	whitelist  []string
	autoRecall map[string]bool
	keywords   []string
	threshold  float64
}

func newFakePolicy() *fakePolicy {
	return &fakePolicy{
		admins:     map[string]bool{"10001": true},
		autoRecall: map[string]bool{},
		keywords:   []string{"porn", "politic", "sex", "色情"},
		threshold:  0.65,
	}
}

func (p *fakePolicy) IsAdmin(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admins[userID]
}

func (p *fakePolicy) IsWhitelisted(groupID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexOf(groupID) >= 0
}

func (p *fakePolicy) IsAutoRecall(groupID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoRecall[groupID]
}

func (p *fakePolicy) Snapshot() PolicySnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PolicySnapshot{
		WhitelistGroups:     append([]string(nil), p.whitelist...),
		ViolationKeywords:   append([]string(nil), p.keywords...),
		ConfidenceThreshold: p.threshold,
	}
}

func (p *fakePolicy) AddWhitelist(ctx context.Context, groupID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexOf(groupID) >= 0 {
		return false
	}
	p.whitelist = append(p.whitelist, groupID)
	return true
}

func (p *fakePolicy) RemoveWhitelist(ctx context.Context, groupID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexOf(groupID)
	if i < 0 {
		return false
	}
	p.whitelist = append(p.whitelist[:i], p.whitelist[i+1:]...)
	delete(p.autoRecall, groupID)
	return true
}

func (p *fakePolicy) EnableAutoRecall(ctx context.Context, groupID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.autoRecall[groupID] {
		return false
	}
	p.autoRecall[groupID] = true
	return true
}

func (p *fakePolicy) ListWhitelist() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.whitelist...)
}

func (p *fakePolicy) indexOf(groupID string) int {
	for i, g := range p.whitelist {
		if g == groupID {
			return i
		}
	}
	return -1
}

type fakeEvidence struct {
	mu      sync.Mutex
	records []*EvidenceRecord
	err     error
}

func (e *fakeEvidence) Save(ctx context.Context, record *EvidenceRecord) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.records = append(e.records, record)
	return "evidence/" + record.GroupID, nil
}

type fakeNotifier struct {
	notices []*ViolationNotice
}

func (n *fakeNotifier) Notify(ctx context.Context, notice *ViolationNotice) error {
	n.notices = append(n.notices, notice)
	return nil
}

// inlineScheduler runs work synchronously on the caller
type inlineScheduler struct {
	keys []string
	errs []error
}

func (s *inlineScheduler) AddWork(ctx context.Context, key string, task func(context.Context) error) error {
	s.keys = append(s.keys, key)
	s.errs = append(s.errs, task(ctx))
	return nil
}

var errSendFailed = errors.New("send failed")
