package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkoukk/tiktoken-go"

	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/llm"
)

// SummarizationName is the node name under which summarization output is
// emitted. Consumers that only want agent-authored text filter on it.
const SummarizationName = "SummarizationMiddleware"

const (
	defaultSummaryModel      = "gpt-4o-mini"
	defaultTriggerTokens     = 4000
	defaultKeepMessages      = 20
	summarizationPrompt      = "Summarize the following conversation concisely, preserving facts, decisions, and open tasks. Respond with the summary only."
	tokensPerMessageOverhead = 4
)

type Threshold struct {
	Type  string `mapstructure:"type"`
	Value int    `mapstructure:"value"`
}

type summarizationConfig struct {
	Model   string    `mapstructure:"model"`
	Trigger Threshold `mapstructure:"trigger"`
	Keep    Threshold `mapstructure:"keep"`
}

// Summarization compresses old conversation turns into a single summary
// message once the history crosses a size threshold. Trigger and keep
// thresholds are measured in "tokens" or "messages".
type Summarization struct {
	model   llm.Model
	trigger Threshold
	keep    Threshold
	encoder *tiktoken.Tiktoken
}

// BuildSummarization is the builder for "summarization" middleware
// specs. The summary model resolves through the LLM provider registry.
func BuildSummarization(spec config.MiddlewareSpec) (Middleware, error) {
	cfg := summarizationConfig{
		Model:   defaultSummaryModel,
		Trigger: Threshold{Type: "tokens", Value: defaultTriggerTokens},
		Keep:    Threshold{Type: "messages", Value: defaultKeepMessages},
	}
	if err := mapstructure.Decode(spec.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid summarization config: %w", err)
	}

	model, err := llm.Resolve(cfg.Model, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve summary model: %w", err)
	}

	return NewSummarization(model, cfg.Trigger, cfg.Keep), nil
}

// NewSummarization creates the middleware with an already-built model.
func NewSummarization(model llm.Model, trigger, keep Threshold) *Summarization {
	encoder, err := tiktoken.EncodingForModel(model.Name())
	if err != nil {
		encoder, _ = tiktoken.GetEncoding("cl100k_base")
	}
	return &Summarization{
		model:   model,
		trigger: trigger,
		keep:    keep,
		encoder: encoder,
	}
}

func (s *Summarization) Name() string {
	return SummarizationName
}

// Process replaces everything before the kept tail with one summary
// message. The leading system message, when present, always survives
// untouched. Histories under the trigger threshold pass through as-is.
func (s *Summarization) Process(ctx context.Context, messages []llm.Message, emit func(string)) ([]llm.Message, error) {
	if !s.exceedsTrigger(messages) {
		return messages, nil
	}

	start := 0
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		start = 1
	}

	cut := s.cutIndex(messages, start)
	if cut <= start {
		return messages, nil
	}

	summary, err := s.summarize(ctx, messages[start:cut])
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	if emit != nil {
		emit(summary)
	}

	slog.Info("Summarized conversation history",
		"replaced_messages", cut-start,
		"kept_messages", len(messages)-cut)

	rebuilt := make([]llm.Message, 0, start+1+len(messages)-cut)
	rebuilt = append(rebuilt, messages[:start]...)
	rebuilt = append(rebuilt, llm.Message{
		Role:    llm.RoleUser,
		Content: "Summary of the conversation so far:\n" + summary,
	})
	rebuilt = append(rebuilt, messages[cut:]...)
	return rebuilt, nil
}

func (s *Summarization) exceedsTrigger(messages []llm.Message) bool {
	switch s.trigger.Type {
	case "messages":
		return len(messages) > s.trigger.Value
	default:
		return s.countTokens(messages) > s.trigger.Value
	}
}

// cutIndex returns the index of the first message to keep verbatim.
// Everything in [start, cut) gets summarized. A tool result is never
// separated from the assistant message that requested it.
func (s *Summarization) cutIndex(messages []llm.Message, start int) int {
	var cut int
	switch s.keep.Type {
	case "tokens":
		cut = len(messages)
		kept := 0
		for cut > start {
			kept += s.countTokens(messages[cut-1 : cut])
			if kept > s.keep.Value {
				break
			}
			cut--
		}
	default:
		cut = len(messages) - s.keep.Value
	}

	if cut < start {
		cut = start
	}
	for cut < len(messages) && messages[cut].Role == llm.RoleTool {
		cut++
	}
	return cut
}

func (s *Summarization) countTokens(messages []llm.Message) int {
	if s.encoder == nil {
		// Rough fallback when no encoding is available.
		total := 0
		for _, msg := range messages {
			total += len(msg.Content)/4 + tokensPerMessageOverhead
		}
		return total
	}

	total := 0
	for _, msg := range messages {
		total += len(s.encoder.Encode(msg.Content, nil, nil)) + tokensPerMessageOverhead
		for _, tc := range msg.ToolCalls {
			total += len(s.encoder.Encode(tc.Arguments, nil, nil))
		}
	}
	return total
}

func (s *Summarization) summarize(ctx context.Context, messages []llm.Message) (string, error) {
	var transcript strings.Builder
	for _, msg := range messages {
		transcript.WriteString(string(msg.Role))
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(&transcript, " [called %s(%s)]", tc.Name, tc.Arguments)
		}
		transcript.WriteString("\n")
	}

	text, _, err := llm.Complete(ctx, s.model, []llm.Message{
		{Role: llm.RoleSystem, Content: summarizationPrompt},
		{Role: llm.RoleUser, Content: transcript.String()},
	}, nil)
	return text, err
}
