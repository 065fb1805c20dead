// Package reply assembles model prompts and enforces the link and
// fallback invariants on synthesized text.
package reply

import (
	"fmt"
	"strings"

	"aikun/internal/types"
)

// systemPrompt pins the persona and the canonical answer shape.
const systemPrompt = `あなたは「AIくん」。日本語で、具体的・実用的に答えます。
- 一般論だけで終わらせない。「公式サイト/SNSで確認してください」「データに含まれていません」等の逃げ表現は使わない。
- 情報が足りない時は、先に最大2問だけ補足質問をしつつ、同時に暫定案（Top3）を必ず提示。
- 可能なら名称/住所/目印/目安価格/営業時間/URLを含める。URLはhttpsから始まる簡潔なもの。
- 出力テンプレ:
  1) 要点1行
  2) 具体候補(最大3)
  3) 代替案 or 在庫確認の手順
  4) 次の一手（短い指示）`

// intentGuidance steers the final user-turn payload per intent.
var intentGuidance = map[types.Intent]string{
	types.IntentProduct:   "購入先・価格帯・在庫の傾向を具体的に答えてください。",
	types.IntentProximity: "近くの具体的な店舗やスポットを、場所の目印つきで答えてください。",
	types.IntentAddress:   "住所・所在地を正確に答えてください。",
	types.IntentDescribe:  "その場所の特徴・雰囲気・客層を具体的に説明してください。",
}

// BuildMessages produces the full message sequence for one synthesis
// call: replayed history followed by the utterance with guidance and
// rendered evidence. The system instruction travels separately in
// GenerateOptions.
func BuildMessages(utterance string, history []types.Turn, intent types.Intent, evidence types.EvidenceBundle) []types.Message {
	msgs := make([]types.Message, 0, len(history)+1)
	for _, t := range history {
		if t.Role != types.RoleUser && t.Role != types.RoleAssistant {
			continue
		}
		msgs = append(msgs, types.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: buildUserPayload(utterance, intent, evidence)})
	return msgs
}

func buildUserPayload(utterance string, intent types.Intent, evidence types.EvidenceBundle) string {
	var b strings.Builder
	b.WriteString(utterance)
	if g, ok := intentGuidance[intent]; ok {
		b.WriteString("\n\n")
		b.WriteString(g)
	}
	if !evidence.Empty() {
		b.WriteString("\n\n【参考情報】\n")
		for _, r := range evidence.Results {
			fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Link)
		}
		b.WriteString("回答には参考情報のURLを最大2件まで根拠として添えてください。")
	}
	return b.String()
}

// SourcesBlock renders the "sources" appendix used when generation
// omitted every evidence link.
func SourcesBlock(results []types.SearchResult, limit int) string {
	if len(results) == 0 {
		return ""
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	var b strings.Builder
	b.WriteString("\n\n参考:")
	for _, r := range results {
		b.WriteString("\n")
		b.WriteString(r.Link)
	}
	return b.String()
}
