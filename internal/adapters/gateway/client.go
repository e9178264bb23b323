package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/mikey/image-mod-relay/internal/metrics"
	"github.com/mikey/image-mod-relay/internal/utils"
	"go.uber.org/zap"
)

// Client issues commands to the gateway HTTP API and downloads
// attachments
type Client struct {
	baseURL        string
	token          string
	commandClient  *http.Client
	fetchClient    *http.Client
	commandTimeout time.Duration
	maxImageBytes  int64
	logger         *zap.Logger
}

// NewClient creates a gateway command client. Commands are sent once;
// image downloads go through a retrying client.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	logger = logger.With(zap.String("system", "gateway-client"))
	return &Client{
		baseURL:        strings.TrimRight(cfg.HTTPURL, "/"),
		token:          cfg.AccessToken,
		commandClient:  &http.Client{Timeout: cfg.CommandTimeout},
		fetchClient:    utils.RobustHTTPClient(logger, cfg.FetchRetries, cfg.FetchTimeout),
		commandTimeout: cfg.CommandTimeout,
		maxImageBytes:  cfg.MaxImageBytes,
		logger:         logger,
	}
}

// SendMessage posts a text message to a group or a private chat
func (c *Client) SendMessage(ctx context.Context, messageType core.MessageType, targetID string, message string) error {
	var action string
	body := map[string]interface{}{"message": message}
	switch messageType {
	case core.MessageGroup:
		action = "send_group_msg"
		body["group_id"] = numericID(targetID)
	case core.MessagePrivate:
		action = "send_private_msg"
		body["user_id"] = numericID(targetID)
	default:
		return fmt.Errorf("unsupported message type: %s", messageType)
	}

	if err := c.post(ctx, action, body); err != nil {
		return err
	}
	c.logger.Info("Message sent",
		zap.String("message_type", string(messageType)),
		zap.String("target_id", targetID))
	return nil
}

// DeleteMessage recalls a message
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	if err := c.post(ctx, "delete_msg", map[string]interface{}{"message_id": messageID}); err != nil {
		return err
	}
	c.logger.Info("Message recalled", zap.Int64("message_id", messageID))
	return nil
}

func (c *Client) post(ctx context.Context, action string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	if c.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.commandTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.commandClient.Do(req)
	if err != nil {
		metrics.GatewayCommands.WithLabelValues(action, "error").Inc()
		c.logger.Warn("Gateway command failed", zap.String("action", action), zap.Error(err))
		return fmt.Errorf("%s request failed: %w", action, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	metrics.GatewayCommands.WithLabelValues(action, strconv.Itoa(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		c.logger.Warn("Gateway command rejected",
			zap.String("action", action),
			zap.Int("status", res.StatusCode))
		return fmt.Errorf("%s request failed statusCode=%d", action, res.StatusCode)
	}
	return nil
}

// FetchImage downloads an attachment. Any failure, a non-200 status or an
// oversized body yields no data.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.ImageFetches.WithLabelValues("error").Inc()
		c.logger.Warn("Invalid image URL", zap.String("url", url), zap.Error(err))
		return nil, false
	}

	res, err := c.fetchClient.Do(req)
	if err != nil {
		metrics.ImageFetches.WithLabelValues("error").Inc()
		c.logger.Warn("Image download failed", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		metrics.ImageFetches.WithLabelValues(strconv.Itoa(res.StatusCode)).Inc()
		c.logger.Warn("Image download rejected",
			zap.String("url", url),
			zap.Int("status", res.StatusCode))
		return nil, false
	}

	reader := io.Reader(res.Body)
	if c.maxImageBytes > 0 {
		reader = io.LimitReader(res.Body, c.maxImageBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		metrics.ImageFetches.WithLabelValues("error").Inc()
		c.logger.Warn("Failed to read image body", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	if c.maxImageBytes > 0 && int64(len(data)) > c.maxImageBytes {
		metrics.ImageFetches.WithLabelValues("too_large").Inc()
		c.logger.Warn("Image exceeds size limit",
			zap.String("url", url),
			zap.Int64("max_bytes", c.maxImageBytes))
		return nil, false
	}
	if len(data) == 0 {
		metrics.ImageFetches.WithLabelValues("empty").Inc()
		return nil, false
	}

	metrics.ImageFetches.WithLabelValues("200").Inc()
	return data, true
}

// numericID sends ids as integers when they are numeric
func numericID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

var _ core.Gateway = (*Client)(nil)
