package httporacle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/mikey/image-mod-relay/internal/classifier"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// Client sends images to an HTTP classification service. The image is
// uploaded as a multipart form together with the model settings; the
// service answers with a label to confidence object, either bare or under
// "scores".
type Client struct {
	httpClient *http.Client
	url        string
	version    string
	modelPath  string
	labels     []string
	logger     *zap.Logger
}

type classifyResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// labelScore is one entry of a list response; "class" and "confidence" are
// accepted as aliases
type labelScore struct {
	Label      string   `json:"label"`
	Class      string   `json:"class"`
	Score      *float64 `json:"score"`
	Confidence *float64 `json:"confidence"`
}

// NewClient creates a new HTTP oracle client
func NewClient(httpClient *http.Client, url, version, modelPath string, labels []string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		url:        url,
		version:    version,
		modelPath:  modelPath,
		labels:     labels,
		logger:     logger,
	}
}

func (c *Client) Name() string {
	return "http"
}

// Classify uploads the normalized JPEG and decodes the scores
func (c *Client) Classify(ctx context.Context, img *classifier.NormalizedImage) (map[string]float64, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "image.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(img.JPEG); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"labels":  strings.Join(c.labels, ","),
		"version": c.version,
	}
	if c.modelPath != "" {
		fields["model_path"] = c.modelPath
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Sending image to classifier",
		zap.String("url", c.url),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Int("bytes", len(img.JPEG)))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classify request failed statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read classify response: %w", err)
	}

	return decodeScores(respBytes)
}

func decodeScores(respBytes []byte) (map[string]float64, error) {
	trimmed := bytes.TrimSpace(respBytes)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return decodeScoreList(trimmed)
	}

	var wrapped classifyResponse
	if err := json.Unmarshal(respBytes, &wrapped); err == nil && len(wrapped.Scores) > 0 {
		return wrapped.Scores, nil
	}

	var bare map[string]float64
	if err := json.Unmarshal(respBytes, &bare); err != nil {
		return nil, fmt.Errorf("failed to parse classify response: %w", err)
	}
	if len(bare) == 0 {
		return nil, fmt.Errorf("classify response has no scores")
	}
	return bare, nil
}

func decodeScoreList(respBytes []byte) (map[string]float64, error) {
	var list []labelScore
	if err := json.Unmarshal(respBytes, &list); err != nil {
		return nil, fmt.Errorf("failed to parse classify response: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("classify response has no scores")
	}

	scores := make(map[string]float64, len(list))
	for i, entry := range list {
		label := entry.Label
		if label == "" {
			label = entry.Class
		}
		score := entry.Score
		if score == nil {
			score = entry.Confidence
		}
		if label == "" || score == nil {
			return nil, fmt.Errorf("classify response entry %d has no label or score", i)
		}
		scores[label] = *score
	}
	return scores, nil
}

var _ classifier.Oracle = (*Client)(nil)
