package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mikey/image-mod-relay/internal/classifier"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenAIClassify(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID: "chatcmpl-1",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: `{"porn": 0.85, "other": 0.15}`,
				},
			}},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	client := NewOpenAIClient(openai.NewClientWithConfig(cfg), "gpt-4o-mini", 300, 0, []string{"porn", "other"}, zap.NewNop())

	scores, err := client.Classify(context.Background(), &classifier.NormalizedImage{JPEG: []byte{0xff, 0xd8, 0xff}})
	require.NoError(err)
	assert.Equal(map[string]float64{"porn": 0.85, "other": 0.15}, scores)
	assert.Equal("openai:gpt-4o-mini", client.Name())

	assert.Equal("gpt-4o-mini", got.Model)
	require.Len(got.Messages, 2)
	parts := got.Messages[1].MultiContent
	require.Len(parts, 2)
	assert.Equal(openai.ChatMessagePartTypeImageURL, parts[1].Type)
	assert.True(strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,/9j/"))
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	client := NewOpenAIClient(openai.NewClientWithConfig(cfg), "gpt-4o-mini", 300, 0, []string{"porn"}, zap.NewNop())

	_, err := client.Classify(context.Background(), &classifier.NormalizedImage{JPEG: []byte{1}})
	assert.ErrorContains(t, err, "empty response")
}
