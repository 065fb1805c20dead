package refine

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// marketplaceTemplate is the single search-endpoint template. The sort
// parameter is intentionally left empty so the marketplace applies its
// default ranking.
const marketplaceTemplate = "https://jp.mercari.com/search/?q=%s&sort="

const extractInstruction = "ユーザーの発言から商品名だけを抜き出してください。" +
	"「どこで買える」「安く」「教えて」などの疑問・取引の言葉はすべて除き、" +
	"商品名と最小限の修飾語のみをスペース区切りで返してください。" +
	"商品が含まれない場合は空文字を返してください。\n" +
	"例:\n" +
	"「ナルトのフィギュアを安く買うには？」→「ナルト フィギュア」\n" +
	"「switchのソフトどこで売ってる」→「switch ソフト」\n" +
	"「おすすめのカフェ教えて」→「」"

// Extractor pulls a canonical product term out of purchase-intent
// utterances. An empty result is a valid outcome, not an error.
type Extractor struct {
	llm types.LLMClient
}

func NewExtractor(llm types.LLMClient) *Extractor {
	return &Extractor{llm: llm}
}

// ExtractProductTerm returns the product name plus minimal modifiers, or
// "" when the model fails or finds no product. Callers skip the
// marketplace link on empty output.
func (e *Extractor) ExtractProductTerm(ctx context.Context, utterance string) string {
	raw, err := e.llm.Chat(ctx, []types.Message{
		{Role: types.RoleUser, Content: utterance},
	}, types.GenerateOptions{
		System:      extractInstruction,
		Temperature: 0.1,
		MaxTokens:   32,
	})
	if err != nil {
		logging.LLMWarn("product term extraction failed: %v", err)
		return ""
	}
	term := strings.TrimSpace(raw)
	term = strings.Trim(term, "\"'「」『』")
	term = strings.TrimSpace(term)
	if strings.ContainsAny(term, "\n\r") {
		return ""
	}
	return term
}

// BuildMarketplaceURL percent-encodes the term into the fixed search
// template. Spaces are encoded as %20, not +, to match the marketplace's
// own URLs. Empty terms produce no URL.
func BuildMarketplaceURL(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	encoded := strings.ReplaceAll(url.QueryEscape(term), "+", "%20")
	return fmt.Sprintf(marketplaceTemplate, encoded)
}
