package classifier

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/mikey/image-mod-relay/internal/metrics"
	"go.uber.org/zap"
)

// Client scores image bytes through an oracle. It never returns an error:
// failures are reported on the result. A nil oracle puts the client in
// mock mode.
type Client struct {
	oracle    Oracle
	labels    []string
	timeout   time.Duration
	maxPixels int64
	cache     *ResultCache
	logger    *zap.Logger
}

// NewClient creates a classification client
func NewClient(oracle Oracle, cfg config.ClassifierConfig, logger *zap.Logger) *Client {
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = config.DefaultLabels
	}

	maxPixels := cfg.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	c := &Client{
		oracle:    oracle,
		labels:    labels,
		timeout:   cfg.Timeout,
		maxPixels: maxPixels,
		logger:    logger,
	}
	if cfg.CacheEnabled && oracle != nil {
		c.cache = NewResultCache(cfg.CacheTTL, cfg.CacheCleanupFrequency, logger)
	}

	if oracle == nil {
		logger.Warn("No classification oracle available, results will be synthetic",
			zap.Strings("labels", labels))
	} else {
		logger.Info("Classification client ready",
			zap.String("oracle", oracle.Name()),
			zap.Strings("labels", labels),
			zap.Duration("timeout", c.timeout),
			zap.Bool("cache", c.cache != nil))
	}
	return c
}

// Mock reports whether the client produces synthetic results
func (c *Client) Mock() bool {
	return c.oracle == nil
}

// Labels returns the configured label order
func (c *Client) Labels() []string {
	return c.labels
}

type oracleReply struct {
	scores map[string]float64
	err    error
}

// Classify decodes data, normalizes it and asks the oracle for scores.
// Scores come back sorted by confidence, ties in configured label order.
func (c *Client) Classify(ctx context.Context, data []byte) *core.ClassificationResult {
	start := time.Now()
	result := &core.ClassificationResult{Source: c.sourceName()}

	var key string
	if c.cache != nil {
		key = Key(data)
		if scores, source, ok := c.cache.Get(key); ok {
			metrics.ClassifyCacheHits.Inc()
			result.Scores = scores
			result.Source = source
			result.ClassifiedAt = time.Now()
			return result
		}
	}

	img, err := Normalize(data, c.maxPixels)
	if err != nil {
		c.logger.Warn("Failed to prepare image for classification", zap.Error(err))
		result.Err = fmt.Errorf("%w: %v", core.ErrDecodeFailed, err)
		c.observe(result, start, "decode_error")
		return result
	}

	if c.oracle == nil {
		c.logger.Warn("Using mock classification result",
			zap.Int("width", img.Width),
			zap.Int("height", img.Height))
		result.Mock = true
		result.Scores = c.sorted(mockScores(c.labels))
		result.ClassifiedAt = time.Now()
		c.observe(result, start, "mock")
		return result
	}

	scores, err := c.callOracle(ctx, img)
	if err != nil {
		c.logger.Error("Classification oracle failed",
			zap.String("oracle", c.oracle.Name()),
			zap.Error(err))
		result.Err = err
		c.observe(result, start, "error")
		return result
	}

	result.Scores = c.sorted(scores)
	result.ClassifiedAt = time.Now()
	if c.cache != nil {
		c.cache.Set(key, result.Scores, result.Source)
	}
	c.observe(result, start, "ok")
	return result
}

// callOracle runs the oracle on its own goroutine so a hung oracle only
// costs the caller the configured timeout
func (c *Client) callOracle(ctx context.Context, img *NormalizedImage) (map[string]float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan oracleReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- oracleReply{err: fmt.Errorf("oracle panic: %v", r)}
			}
		}()
		scores, err := c.oracle.Classify(ctx, img)
		done <- oracleReply{scores: scores, err: err}
	}()

	select {
	case reply := <-done:
		if reply.err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w after %s", core.ErrOracleTimeout, c.timeout)
			}
			return nil, fmt.Errorf("%w: %v", core.ErrOracleFailed, reply.err)
		}
		return reply.scores, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s", core.ErrOracleTimeout, c.timeout)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrOracleFailed, ctx.Err())
	}
}

func (c *Client) sorted(scores map[string]float64) []core.LabelScore {
	out := make([]core.LabelScore, 0, len(scores))
	for label, confidence := range scores {
		out = append(out, core.LabelScore{Label: label, Confidence: confidence})
	}
	core.SortScores(out, c.labels)
	return out
}

func (c *Client) sourceName() string {
	if c.oracle == nil {
		return MockSource
	}
	return c.oracle.Name()
}

func (c *Client) observe(result *core.ClassificationResult, start time.Time, outcome string) {
	metrics.ClassifyDuration.WithLabelValues(result.Source).Observe(time.Since(start).Seconds())
	metrics.ClassifyResults.WithLabelValues(result.Source, outcome).Inc()
}

// Close stops the cache and releases the oracle
func (c *Client) Close() error {
	if c.cache != nil {
		c.cache.Stop()
	}
	if closer, ok := c.oracle.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

var _ core.ImageClassifier = (*Client)(nil)
