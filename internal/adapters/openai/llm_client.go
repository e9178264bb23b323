package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mikey/image-mod-relay/internal/classifier"
	"github.com/mikey/image-mod-relay/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient classifies images with an OpenAI vision model
type OpenAIClient struct {
	client      *openai.Client
	modelName   string
	maxTokens   int
	temperature float32
	labels      []string
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI oracle
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	labels []string,
	logger *zap.Logger,
) *OpenAIClient {
	return &OpenAIClient{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		labels:      labels,
		logger:      logger,
	}
}

func (c *OpenAIClient) Name() string {
	return "openai:" + c.modelName
}

// Classify sends the image as a data URI and parses the JSON scores
func (c *OpenAIClient) Classify(ctx context.Context, img *classifier.NormalizedImage) (map[string]float64, error) {
	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img.JPEG)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an image moderation system. Respond only with JSON.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: utils.ClassificationPrompt(c.labels),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURI,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	// Call OpenAI API
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	responseText := resp.Choices[0].Message.Content
	c.logger.Debug("OpenAI classification response",
		zap.String("id", resp.ID),
		zap.String("response", responseText))

	return utils.ParseLabelScores(responseText, c.labels)
}

var _ classifier.Oracle = (*OpenAIClient)(nil)
