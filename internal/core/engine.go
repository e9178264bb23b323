package core

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

const reportHeader = "🔍 图片检测结果:\n"

// DefaultLabelNames maps classifier labels to the names shown in chat
var DefaultLabelNames = map[string]string{
	"cartoon":  "动漫",
	"carton":   "动漫",
	"porn":     "色情",
	"politic":  "涉政",
	"other":    "其他",
	"explicit": "露骨",
	"sexual":   "性暗示",
	"sex":      "性相关",
	"敏感":       "敏感",
	"色情":       "色情",
}

// Engine turns classification results into moderation verdicts
type Engine struct {
	labelNames map[string]string
}

// NewEngine creates an engine; overrides replace or extend the default
// label display names
func NewEngine(overrides map[string]string) *Engine {
	names := make(map[string]string, len(DefaultLabelNames)+len(overrides))
	for k, v := range DefaultLabelNames {
		names[k] = v
	}
	for k, v := range overrides {
		names[strings.ToLower(k)] = v
	}
	return &Engine{labelNames: names}
}

// DisplayName returns the chat name of a label, or the label marked as
// untranslated
func (e *Engine) DisplayName(label string) string {
	if name, ok := e.labelNames[strings.ToLower(label)]; ok {
		return name
	}
	return label + "(未翻译)"
}

// Decide evaluates a classification result against the policy
func (e *Engine) Decide(result *ClassificationResult, policy PolicySnapshot) *ModerationVerdict {
	verdict := &ModerationVerdict{}
	if result == nil || len(result.Scores) == 0 {
		return verdict
	}

	scores := make([]LabelScore, len(result.Scores))
	copy(scores, result.Scores)
	// ties keep the classifier's label order
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Confidence > scores[j].Confidence
	})

	// a Caser carries state and is not safe for concurrent use
	fold := cases.Fold()
	keywords := make([]string, 0, len(policy.ViolationKeywords))
	for _, kw := range policy.ViolationKeywords {
		if kw = fold.String(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	var report strings.Builder
	report.WriteString(reportHeader)
	for i, score := range scores {
		name := e.DisplayName(score.Label)
		fmt.Fprintf(&report, "%d. %s: %.2f%%\n", i+1, name, score.Confidence*100)

		if score.Confidence > policy.ConfidenceThreshold && matchesKeyword(fold.String(score.Label), keywords) {
			verdict.MatchedLabels = append(verdict.MatchedLabels, name)
		}
	}

	verdict.Violated = len(verdict.MatchedLabels) > 0
	verdict.ReportText = report.String()
	return verdict
}

func matchesKeyword(foldedLabel string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(foldedLabel, kw) {
			return true
		}
	}
	return false
}
