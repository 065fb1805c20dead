// Package refine turns raw utterances into compact search queries and,
// for purchase intents, canonical marketplace terms.
package refine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// maxQueryRunes bounds accepted model output. The instruction asks for
// 20-60 characters but short valid queries are common; only runaway
// output is rejected.
const maxQueryRunes = 100

const refineInstruction = "ユーザーの発言を、検索エンジンに入力する20〜60文字の検索クエリに書き換えてください。" +
	"クエリ文字列のみを返し、引用符や説明、改行は含めないでください。"

// intentHints bias the rewrite toward the research strategy the intent
// implies.
var intentHints = map[types.Intent]string{
	types.IntentProduct:   "通販・価格・在庫を調べるためのクエリにしてください。",
	types.IntentProximity: "周辺の店舗・スポットを探すためのクエリにしてください。",
	types.IntentAddress:   "住所・所在地を調べるためのクエリにしてください。",
	types.IntentDescribe:  "場所の特徴・雰囲気を調べるためのクエリにしてください。",
}

// fallbackSuffixes are appended to the raw utterance when the model path
// fails.
var fallbackSuffixes = map[types.Intent]string{
	types.IntentProduct:   " 通販 価格",
	types.IntentProximity: " 周辺 おすすめ",
	types.IntentAddress:   " 住所",
	types.IntentDescribe:  " 特徴",
}

// Refiner rewrites utterances into search queries through one bounded
// model call with a deterministic fallback.
type Refiner struct {
	llm types.LLMClient
}

func NewRefiner(llm types.LLMClient) *Refiner {
	return &Refiner{llm: llm}
}

// Refine returns a compact search query for the utterance. The model path
// gets one retry; any failure after that resolves to the raw utterance
// plus a fixed intent suffix, so the caller always receives a usable
// query.
func (r *Refiner) Refine(ctx context.Context, utterance string, intent types.Intent) string {
	instruction := refineInstruction
	if hint, ok := intentHints[intent]; ok {
		instruction += hint
	}

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := r.llm.Chat(ctx, []types.Message{
			{Role: types.RoleUser, Content: utterance},
		}, types.GenerateOptions{
			System:      instruction,
			Temperature: 0.2,
			MaxTokens:   64,
		})
		if err != nil {
			logging.LLMWarn("query refinement attempt %d failed: %v", attempt+1, err)
			continue
		}
		if q, ok := sanitizeQuery(raw); ok {
			return q
		}
		logging.LLMWarn("query refinement attempt %d returned malformed output %q", attempt+1, raw)
	}
	return FallbackQuery(utterance, intent)
}

// FallbackQuery is the deterministic path: the raw utterance with an
// intent-specific suffix.
func FallbackQuery(utterance string, intent types.Intent) string {
	return strings.TrimSpace(utterance) + fallbackSuffixes[intent]
}

// sanitizeQuery strips quoting the model tends to add and rejects
// multi-line or runaway output.
func sanitizeQuery(raw string) (string, bool) {
	q := strings.TrimSpace(raw)
	q = strings.Trim(q, "\"'「」『』")
	q = strings.TrimSpace(q)
	if q == "" || strings.ContainsAny(q, "\n\r") {
		return "", false
	}
	if utf8.RuneCountInString(q) > maxQueryRunes {
		return "", false
	}
	return q, true
}

// MergePending combines a previously pending query with the follow-up
// utterance that resolves a location clarification.
func MergePending(pending, utterance string) string {
	return fmt.Sprintf("%s %s", strings.TrimSpace(pending), strings.TrimSpace(utterance))
}
