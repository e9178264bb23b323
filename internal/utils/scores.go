package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

const promptFormat = `You are an image moderation system. Classify the attached image into the following categories: %s.
Respond with a JSON object that maps every category name to a probability between 0 and 1.
The probabilities must add up to 1.

Respond only with the JSON object and nothing else.`

// ClassificationPrompt returns the instruction sent with an image to a
// language model oracle
func ClassificationPrompt(labels []string) string {
	return fmt.Sprintf(promptFormat, strings.Join(labels, ", "))
}

// ExtractJSON returns the outermost JSON object in text, tolerating prose
// or code fences around it
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in model response")
	}
	return text[start : end+1], nil
}

// ParseLabelScores decodes a label to probability object from a model
// response. Labels outside the requested set are dropped, requested labels
// missing from the response score zero.
func ParseLabelScores(text string, labels []string) (map[string]float64, error) {
	raw := map[string]float64{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		jsonStr, extractErr := ExtractJSON(text)
		if extractErr != nil {
			return nil, fmt.Errorf("failed to extract JSON from model response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
		}
	}

	byFold := make(map[string]float64, len(raw))
	for k, v := range raw {
		byFold[strings.ToLower(strings.TrimSpace(k))] = v
	}

	scores := make(map[string]float64, len(labels))
	for _, label := range labels {
		v := byFold[strings.ToLower(label)]
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		scores[label] = v
	}
	return scores, nil
}
