// Package narrative asks an OpenAI-compatible model for a short written
// assessment of a verdict.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gkobilansky/ga4-goat/internal/judge"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

const systemPrompt = "あなたはWebサイトのA/Bテストを分析するマーケティングアナリストです。" +
	"与えられた統計的判定結果をもとに、簡潔で実務的な日本語の評価コメントを書いてください。"

// Input is what the model is told about one evaluation.
type Input struct {
	ExperimentName string
	Verdict        judge.Verdict
	Variants       []judge.Variant
}

// Narrator writes a narrative for a verdict.
type Narrator interface {
	Narrate(ctx context.Context, in Input) (string, error)
}

// OpenAIClient is a Narrator backed by the chat completions API.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ Narrator = (*OpenAIClient)(nil)

// NewOpenAIClient returns a client for apiKey. baseURL may point at any
// OpenAI-compatible endpoint; empty keeps the default.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("AI_API_KEY is not set")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	log.Debug().Str("model", model).Msg("Initializing narrative client")
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 600,
	}, nil
}

func (c *OpenAIClient) Narrate(ctx context.Context, in Input) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(in)},
		},
		MaxCompletionTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat completion returned empty content")
	}
	return text, nil
}

// Generate runs n and returns nil when n is nil or fails. A missing
// narrative never fails an evaluation.
func Generate(ctx context.Context, n Narrator, in Input) *string {
	if n == nil {
		return nil
	}
	text, err := n.Narrate(ctx, in)
	if err != nil {
		log.Warn().Err(err).Str("experiment", in.ExperimentName).Msg("AI evaluation skipped")
		return nil
	}
	return &text
}

// BuildPrompt renders the verdict as the user message.
func BuildPrompt(in Input) string {
	v := in.Verdict
	var b strings.Builder

	if in.ExperimentName != "" {
		fmt.Fprintf(&b, "テスト名: %s\n", in.ExperimentName)
	}

	b.WriteString("\n## パターン別実績\n")
	for _, x := range in.Variants {
		fmt.Fprintf(&b, "- パターン%s: PV %d / CV %d / CVR %.2f%%\n", x.Label, x.PV, x.CV, x.CVR()*100)
	}

	b.WriteString("\n## 判定結果\n")
	fmt.Fprintf(&b, "- 勝者: パターン%s（次点: パターン%s、比較対象: パターン%s）\n", v.Winner, v.RunnerUp, v.Baseline)
	fmt.Fprintf(&b, "- 有意差: %d%%（必要水準 %d%%、z=%.3f）%s\n",
		v.Significance.Value, v.Significance.Required, v.Significance.ZScore, mark(v.Significance.Passed))
	fmt.Fprintf(&b, "- サンプルサイズ: 勝者 %d / 次点 %d（最低 %d）%s\n",
		v.SampleSize.WinnerPV, v.SampleSize.RunnerUpPV, v.SampleSize.MinPV, mark(v.SampleSize.Passed))
	fmt.Fprintf(&b, "- 期間: %d日（最低 %d日、%s: %s）%s\n",
		v.Period.Days, v.Period.MinDays, v.Period.Reliability, v.Period.Note, mark(v.Period.Passed))
	fmt.Fprintf(&b, "- 改善: 改善率 %.1f%% / 差 %+.2fpt（基準 %.1f%% または %.2fpt）%s\n",
		v.Improvement.Rate, v.Improvement.DifferencePt, v.Improvement.MinRate, v.Improvement.MinDifferencePt, mark(v.Improvement.Passed))
	fmt.Fprintf(&b, "- 総合: %s\n", v.Recommendation)

	b.WriteString("\n上記を踏まえ、結果の解釈、注意点、次のアクションを300字程度でまとめてください。")
	return b.String()
}

func mark(passed bool) string {
	if passed {
		return "✅"
	}
	return "❌"
}
