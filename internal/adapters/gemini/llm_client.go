package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/image-mod-relay/internal/classifier"
	"github.com/mikey/image-mod-relay/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiClient classifies images with a Google Gemini model
type GeminiClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	labels    []string
	logger    *zap.Logger
}

// NewGeminiClient creates a new Gemini oracle
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	labels []string,
	logger *zap.Logger,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"

	return &GeminiClient{
		client:    client,
		model:     model,
		modelName: modelName,
		labels:    labels,
		logger:    logger,
	}, nil
}

func (c *GeminiClient) Name() string {
	return "gemini:" + c.modelName
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Classify sends the image inline with the prompt and parses the JSON scores
func (c *GeminiClient) Classify(ctx context.Context, img *classifier.NormalizedImage) (map[string]float64, error) {
	resp, err := c.model.GenerateContent(ctx,
		genai.ImageData("jpeg", img.JPEG),
		genai.Text(utils.ClassificationPrompt(c.labels)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	responseText := sb.String()
	c.logger.Debug("Gemini classification response", zap.String("response", responseText))

	return utils.ParseLabelScores(responseText, c.labels)
}

var _ classifier.Oracle = (*GeminiClient)(nil)
