package reply

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// Fixed user-visible strings. These are contract text, not copy: tests
// and the pending-clarification scan match them byte for byte.
const (
	// ClarificationQuestion is returned when a proximity question
	// carries no recognizable place.
	ClarificationQuestion = "どのあたりをお探しですか？近くの駅名や地名を教えてください！"

	// FallbackText replaces empty or failed generation.
	FallbackText = "ごめんなさい、うまく答えられませんでした。もう少し具体的に教えてもらえますか？"

	// TextOnlyReply answers non-text payloads.
	TextOnlyReply = "ごめんなさい、いまはテキストメッセージだけ対応しています！"

	// QuotaExceededReply answers users past their daily allowance.
	QuotaExceededReply = "今日の利用上限に達しました。また明日話しかけてください！"

	// ResetDoneReply and ResetFailedReply acknowledge the reset command.
	ResetDoneReply   = "会話の履歴をリセットしました！"
	ResetFailedReply = "ごめんなさい、履歴のリセットに失敗しました。少し待ってもう一度試してください。"
)

const (
	synthesisTemperature = 0.5
	synthesisMaxTokens   = 600
)

// Options tune invariant enforcement. Hot-reloadable through Retune.
type Options struct {
	// CitationCap bounds the appended sources block.
	CitationCap int
	// AlwaysCrossSell appends the marketplace link even when the model
	// already worked it into the text.
	AlwaysCrossSell bool
}

// Synthesizer issues the final generation call and guarantees the reply
// invariants: mandatory links present, non-empty text always returned.
type Synthesizer struct {
	llm types.LLMClient

	mu   sync.RWMutex
	opts Options
}

func NewSynthesizer(llm types.LLMClient, opts Options) *Synthesizer {
	if opts.CitationCap <= 0 {
		opts.CitationCap = 2
	}
	return &Synthesizer{llm: llm, opts: opts}
}

// Retune swaps the invariant options. Called from the config reload
// path; Synthesize reads opts once per call so a mid-flight reload only
// affects subsequent replies.
func (s *Synthesizer) Retune(opts Options) {
	if opts.CitationCap <= 0 {
		opts.CitationCap = 2
	}
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

func (s *Synthesizer) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Synthesize generates the reply and enforces post-generation
// invariants. It never returns an error: every failure path resolves to
// the fixed fallback text so the user always gets a reply.
func (s *Synthesizer) Synthesize(ctx context.Context, utterance string, history []types.Turn, intent types.Intent, evidence types.EvidenceBundle, marketplaceURL string) types.ReplyDraft {
	opts := s.options()
	msgs := BuildMessages(utterance, history, intent, evidence)

	text, err := s.llm.Chat(ctx, msgs, types.GenerateOptions{
		System:      systemPrompt,
		Temperature: synthesisTemperature,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		logging.LLMError("reply synthesis failed: %v", err)
		text = ""
	}
	text = strings.TrimSpace(text)

	if text == "" {
		return types.ReplyDraft{Text: FallbackText}
	}

	draft := types.ReplyDraft{Text: text, MarketplaceURL: marketplaceURL}

	if intent == types.IntentProduct && marketplaceURL != "" {
		if opts.AlwaysCrossSell || !strings.Contains(draft.Text, marketplaceURL) {
			draft.Text += fmt.Sprintf("\n\n横断検索はこちら: %s", marketplaceURL)
		}
	}

	if !evidence.Empty() && !containsURL(draft.Text) {
		draft.Text += SourcesBlock(evidence.Results, opts.CitationCap)
		for i, r := range evidence.Results {
			if i >= opts.CitationCap {
				break
			}
			draft.CitationLinks = append(draft.CitationLinks, r.Link)
		}
	}

	return draft
}

func containsURL(text string) bool {
	return strings.Contains(text, "https://") || strings.Contains(text, "http://")
}
