package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pornScores = []LabelScore{
		{Label: "porn", Confidence: 0.82},
		{Label: "other", Confidence: 0.10},
		{Label: "cartoon", Confidence: 0.08},
	}
	lowPornScores = []LabelScore{
		{Label: "porn", Confidence: 0.60},
		{Label: "other", Confidence: 0.30},
		{Label: "cartoon", Confidence: 0.10},
	}
)

type serviceFixture struct {
	policy   *fakePolicy
	gateway  *fakeGateway
	cls      *fakeClassifier
	evidence *fakeEvidence
	notifier *fakeNotifier
	service  *ModerationService
}

func newServiceFixture(settings ModerationSettings) *serviceFixture {
	f := &serviceFixture{
		policy:   newFakePolicy(),
		gateway:  newFakeGateway(),
		cls:      &fakeClassifier{results: map[string]*ClassificationResult{}},
		evidence: &fakeEvidence{},
		notifier: &fakeNotifier{},
	}
	f.policy.whitelist = []string{"G1"}
	f.service = NewModerationService(f.gateway, f.cls, NewEngine(nil), f.policy, f.evidence, f.notifier, settings, zap.NewNop())
	f.service.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC) }
	return f
}

func (f *serviceFixture) image(url, content string, result *ClassificationResult) {
	f.gateway.images[url] = []byte(content)
	f.cls.results[content] = result
}

func msgID(id int64) *int64 {
	return &id
}

// Scenario A
func TestModerateEventViolation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 4})
	f.image("http://img/a", "porn-bytes", &ClassificationResult{Scores: pornScores, Source: "http"})

	ev := groupEvent("G1", "20002", imageSeg("http://img/a"))
	ev.MessageID = msgID(777)

	outcome, err := f.service.ModerateEvent(context.Background(), ev)
	require.NoError(err)
	assert.True(outcome.Violated)
	assert.Equal([]string{"色情"}, outcome.Labels)
	assert.True(outcome.Warned)
	assert.False(outcome.Recalled)
	assert.Equal([]string{"evidence/G1"}, outcome.Evidence)

	require.Len(f.evidence.records, 1)
	record := f.evidence.records[0]
	assert.Equal("G1", record.GroupID)
	assert.Equal("20002", record.UserID)
	assert.Equal([]string{"色情"}, record.Labels)
	assert.Equal([]byte("porn-bytes"), record.Data)

	sent := f.gateway.Sent()
	require.Len(sent, 1)
	assert.Equal(MessageGroup, sent[0].Type)
	assert.Equal("G1", sent[0].Target)
	assert.Equal("⚠️ 检测到可能的违规内容!\n"+
		"🔍 图片检测结果:\n"+
		"1. 色情: 82.00%\n"+
		"2. 其他: 10.00%\n"+
		"3. 动漫: 8.00%\n"+
		"\n请注意群规，维护良好的聊天环境。", sent[0].Message)

	assert.Empty(f.gateway.deleted)
	require.Len(f.notifier.notices, 1)
	assert.Equal(msgID(777), f.notifier.notices[0].MessageID)
}

// Scenario B
func TestModerateEventBelowThreshold(t *testing.T) {
	assert := assert.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 4})
	f.image("http://img/b", "low-bytes", &ClassificationResult{Scores: lowPornScores, Source: "http"})

	outcome, err := f.service.ModerateEvent(context.Background(), groupEvent("G1", "20002", imageSeg("http://img/b")))
	assert.NoError(err)
	assert.False(outcome.Violated)
	assert.False(outcome.Warned)
	assert.Empty(f.evidence.records)
	assert.Empty(f.gateway.Sent())
	assert.Empty(f.notifier.notices)
}

// Scenario E: one download fails, the rest still run
func TestModerateEventSkipsFailedFetch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 4})
	f.gateway.fetchErr["http://img/404"] = true
	f.image("http://img/ok", "porn-bytes", &ClassificationResult{Scores: pornScores, Source: "http"})

	ev := groupEvent("G1", "20002", imageSeg("http://img/404"), imageSeg("http://img/ok"))
	outcome, err := f.service.ModerateEvent(context.Background(), ev)
	require.NoError(err)
	require.Len(outcome.Images, 2)

	assert.False(outcome.Images[0].Fetched)
	assert.Nil(outcome.Images[0].Result)
	assert.True(outcome.Images[1].Fetched)
	assert.Equal(1, f.cls.calls)
	assert.True(outcome.Violated)
	assert.Len(f.gateway.Sent(), 1)
}

func TestModerateEventSkipsClassifierFailure(t *testing.T) {
	assert := assert.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 1})
	f.image("http://img/t", "slow", &ClassificationResult{Err: ErrOracleTimeout, Source: "http"})

	outcome, err := f.service.ModerateEvent(context.Background(), groupEvent("G1", "20002", imageSeg("http://img/t")))
	assert.NoError(err)
	assert.False(outcome.Violated)
	assert.Nil(outcome.Images[0].Verdict)
	assert.Empty(f.gateway.Sent())
}

func TestModerateEventAutoRecall(t *testing.T) {
	assert := assert.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 4})
	f.policy.autoRecall["G1"] = true
	f.image("http://img/a", "porn-bytes", &ClassificationResult{Scores: pornScores, Source: "http"})

	ev := groupEvent("G1", "20002", imageSeg("http://img/a"))
	ev.MessageID = msgID(42)

	outcome, err := f.service.ModerateEvent(context.Background(), ev)
	assert.NoError(err)
	assert.True(outcome.Recalled)
	assert.Equal([]int64{42}, f.gateway.deleted)
	assert.True(f.notifier.notices[0].Recalled)
}

func TestModerateEventAutoRecallWithoutMessageID(t *testing.T) {
	assert := assert.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 4})
	f.policy.autoRecall["G1"] = true
	f.image("http://img/a", "porn-bytes", &ClassificationResult{Scores: pornScores, Source: "http"})

	outcome, err := f.service.ModerateEvent(context.Background(), groupEvent("G1", "20002", imageSeg("http://img/a")))
	assert.NoError(err)
	assert.True(outcome.Warned)
	assert.False(outcome.Recalled)
	assert.Empty(f.gateway.deleted)
}

func TestModerateEventCombinesWarnings(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 2})
	f.image("http://img/1", "one", &ClassificationResult{Scores: pornScores, Source: "http"})
	f.image("http://img/2", "two", &ClassificationResult{Scores: []LabelScore{
		{Label: "politic", Confidence: 0.91},
		{Label: "other", Confidence: 0.09},
	}, Source: "http"})
	f.image("http://img/3", "three", &ClassificationResult{Scores: lowPornScores, Source: "http"})

	ev := groupEvent("G1", "20002", imageSeg("http://img/1"), imageSeg("http://img/2"), imageSeg("http://img/3"))
	outcome, err := f.service.ModerateEvent(context.Background(), ev)
	require.NoError(err)

	assert.Equal([]string{"色情", "涉政"}, outcome.Labels)
	assert.Len(f.evidence.records, 2)

	sent := f.gateway.Sent()
	require.Len(sent, 1)
	assert.Equal(2, strings.Count(sent[0].Message, "🔍 图片检测结果:"))
	assert.True(strings.Index(sent[0].Message, "色情") < strings.Index(sent[0].Message, "涉政"))
}

func TestModerateEventMockResultsDoNotAct(t *testing.T) {
	assert := assert.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 4})
	f.image("http://img/m", "mock", &ClassificationResult{Scores: pornScores, Source: "mock", Mock: true})

	outcome, err := f.service.ModerateEvent(context.Background(), groupEvent("G1", "20002", imageSeg("http://img/m")))
	assert.NoError(err)
	assert.True(outcome.Images[0].Verdict.Violated)
	assert.False(outcome.Images[0].Actionable)
	assert.False(outcome.Violated)
	assert.Empty(f.gateway.Sent())
	assert.Empty(f.evidence.records)
}

func TestModerateEventActOnMock(t *testing.T) {
	assert := assert.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 4, ActOnMock: true})
	f.image("http://img/m", "mock", &ClassificationResult{Scores: pornScores, Source: "mock", Mock: true})

	outcome, err := f.service.ModerateEvent(context.Background(), groupEvent("G1", "20002", imageSeg("http://img/m")))
	assert.NoError(err)
	assert.True(outcome.Violated)
	assert.Len(f.gateway.Sent(), 1)
}

func TestModerateEventEvidenceFailureStillWarns(t *testing.T) {
	assert := assert.New(t)

	f := newServiceFixture(ModerationSettings{MaxParallelImages: 4})
	f.evidence.err = errors.New("disk full")
	f.image("http://img/a", "porn-bytes", &ClassificationResult{Scores: pornScores, Source: "http"})

	outcome, err := f.service.ModerateEvent(context.Background(), groupEvent("G1", "20002", imageSeg("http://img/a")))
	assert.NoError(err)
	assert.True(outcome.Warned)
	assert.Empty(outcome.Evidence)
}

func TestModerateEventWithoutImages(t *testing.T) {
	assert := assert.New(t)

	f := newServiceFixture(ModerationSettings{})
	outcome, err := f.service.ModerateEvent(context.Background(), groupEvent("G1", "20002", textSeg("hi")))
	assert.NoError(err)
	assert.Empty(outcome.Images)
	assert.Equal(0, f.cls.calls)
}
