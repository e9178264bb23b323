package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/image-mod-relay/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	warningPrefix = "⚠️ 检测到可能的违规内容!\n"
	warningSuffix = "\n请注意群规，维护良好的聊天环境。"
)

// ModerationSettings tunes how verdicts are acted on
type ModerationSettings struct {
	// ActOnMock allows synthetic results from the mock classifier to
	// trigger warnings and recalls
	ActOnMock bool
	// MaxParallelImages bounds concurrent image inspections per event
	MaxParallelImages int
}

// ImageOutcome is what happened to one image segment
type ImageOutcome struct {
	URL     string
	Fetched bool
	Result  *ClassificationResult
	Verdict *ModerationVerdict
	// Actionable is false when the verdict came from a result that may not
	// trigger actions
	Actionable bool
	data       []byte
}

// EventOutcome summarizes the moderation of one event
type EventOutcome struct {
	Images   []ImageOutcome
	Violated bool
	Labels   []string
	Warned   bool
	Recalled bool
	Evidence []string
}

// ModerationService runs the image path for one routed event
type ModerationService struct {
	gateway    Gateway
	classifier ImageClassifier
	engine     *Engine
	policy     PolicyReader
	evidence   EvidenceStore
	notifier   Notifier
	settings   ModerationSettings
	logger     *zap.Logger
	now        func() time.Time
}

// NewModerationService creates a new moderation service. notifier may be nil.
func NewModerationService(
	gateway Gateway,
	classifier ImageClassifier,
	engine *Engine,
	policy PolicyReader,
	evidence EvidenceStore,
	notifier Notifier,
	settings ModerationSettings,
	logger *zap.Logger,
) *ModerationService {
	if settings.MaxParallelImages < 1 {
		settings.MaxParallelImages = 1
	}
	return &ModerationService{
		gateway:    gateway,
		classifier: classifier,
		engine:     engine,
		policy:     policy,
		evidence:   evidence,
		notifier:   notifier,
		settings:   settings,
		logger:     logger,
		now:        time.Now,
	}
}

// ModerateEvent inspects every image of ev and, once all of them are done,
// acts on the union of violations: evidence, one warning, optional recall.
func (s *ModerationService) ModerateEvent(ctx context.Context, ev *Event) (*EventOutcome, error) {
	images := ev.Images()
	outcome := &EventOutcome{Images: make([]ImageOutcome, len(images))}
	if len(images) == 0 {
		return outcome, nil
	}

	logger := s.logger.With(
		zap.String("group_id", ev.GroupID),
		zap.String("user_id", ev.UserID))

	snapshot := s.policy.Snapshot()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.MaxParallelImages)
	for i, seg := range images {
		i := i
		url := seg.URL
		g.Go(func() error {
			outcome.Images[i] = s.inspect(gctx, logger, url, snapshot)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return outcome, fmt.Errorf("image inspection aborted: %w", err)
	}

	var reports []string
	var records []*EvidenceRecord
	for _, img := range outcome.Images {
		if img.Verdict == nil || !img.Verdict.Violated || !img.Actionable {
			continue
		}
		outcome.Violated = true
		outcome.Labels = appendUnique(outcome.Labels, img.Verdict.MatchedLabels...)
		reports = append(reports, img.Verdict.ReportText)
		records = append(records, &EvidenceRecord{
			GroupID:    ev.GroupID,
			UserID:     ev.UserID,
			Labels:     img.Verdict.MatchedLabels,
			Data:       img.data,
			CapturedAt: s.now(),
		})
	}

	if !outcome.Violated {
		logger.Info("No violation detected", zap.Int("images", len(images)))
		return outcome, nil
	}

	logger.Info("Violation detected", zap.Strings("labels", outcome.Labels))

	for _, record := range records {
		location, err := s.evidence.Save(ctx, record)
		if err != nil {
			metrics.EvidenceWrites.WithLabelValues("error").Inc()
			logger.Error("Failed to save violation evidence", zap.Error(err))
			continue
		}
		metrics.EvidenceWrites.WithLabelValues("ok").Inc()
		outcome.Evidence = append(outcome.Evidence, location)
		logger.Info("Saved violation evidence", zap.String("location", location))
	}

	warning := warningPrefix + strings.Join(reports, "\n") + warningSuffix
	if err := s.gateway.SendMessage(ctx, MessageGroup, ev.GroupID, warning); err != nil {
		logger.Warn("Failed to send violation warning", zap.Error(err))
	} else {
		outcome.Warned = true
		metrics.Violations.WithLabelValues("warned").Inc()
	}

	if s.policy.IsAutoRecall(ev.GroupID) && ev.MessageID != nil {
		if err := s.gateway.DeleteMessage(ctx, *ev.MessageID); err != nil {
			logger.Warn("Failed to recall message", zap.Int64("message_id", *ev.MessageID), zap.Error(err))
		} else {
			outcome.Recalled = true
			metrics.Violations.WithLabelValues("recalled").Inc()
			logger.Info("Recalled violating message", zap.Int64("message_id", *ev.MessageID))
		}
	}

	if s.notifier != nil {
		notice := &ViolationNotice{
			GroupID:   ev.GroupID,
			UserID:    ev.UserID,
			MessageID: ev.MessageID,
			Labels:    outcome.Labels,
			Report:    strings.Join(reports, "\n"),
			Recalled:  outcome.Recalled,
			Evidence:  outcome.Evidence,
			At:        s.now(),
		}
		if err := s.notifier.Notify(ctx, notice); err != nil {
			logger.Warn("Failed to notify moderators", zap.Error(err))
		}
	}

	return outcome, nil
}

func (s *ModerationService) inspect(ctx context.Context, logger *zap.Logger, url string, snapshot PolicySnapshot) ImageOutcome {
	img := ImageOutcome{URL: url}
	if url == "" {
		logger.Warn("Image segment has no URL")
		return img
	}

	data, ok := s.gateway.FetchImage(ctx, url)
	if !ok {
		logger.Warn("Image download failed, skipping", zap.String("url", url))
		return img
	}
	img.Fetched = true
	img.data = data

	result := s.classifier.Classify(ctx, data)
	img.Result = result
	if result.Err != nil {
		logger.Warn("Image classification failed, skipping",
			zap.String("url", url),
			zap.Error(result.Err))
		return img
	}

	img.Verdict = s.engine.Decide(result, snapshot)
	img.Actionable = !result.Mock || s.settings.ActOnMock
	if result.Mock && img.Verdict.Violated {
		logger.Warn("Mock classification matched a violation",
			zap.String("url", url),
			zap.Strings("labels", img.Verdict.MatchedLabels),
			zap.Bool("acting", img.Actionable))
	}
	logger.Debug("Image inspected",
		zap.String("url", url),
		zap.String("source", result.Source),
		zap.Bool("violated", img.Verdict.Violated))
	return img
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
