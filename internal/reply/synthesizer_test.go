package reply

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aikun/internal/types"
)

type fakeLLM struct {
	reply    string
	err      error
	calls    int
	lastMsgs []types.Message
	lastOpts types.GenerateOptions
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []types.Message, opts types.GenerateOptions) (string, error) {
	f.calls++
	f.lastMsgs = msgs
	f.lastOpts = opts
	return f.reply, f.err
}

func evidence(links ...string) types.EvidenceBundle {
	b := types.EvidenceBundle{Query: "q"}
	for _, l := range links {
		b.Results = append(b.Results, types.SearchResult{Title: "t", Link: l, Platform: types.PlatformWeb})
	}
	return b
}

func TestSynthesize_PromptShape(t *testing.T) {
	llm := &fakeLLM{reply: "回答 https://example.com/a"}
	s := NewSynthesizer(llm, Options{})

	history := []types.Turn{
		{Role: types.RoleUser, Content: "前の質問"},
		{Role: types.RoleAssistant, Content: "前の回答"},
	}
	s.Synthesize(context.Background(), "渋谷のカフェは？", history, types.IntentDescribe, evidence("https://example.com/a"), "")

	if len(llm.lastMsgs) != 3 {
		t.Fatalf("messages = %d, want history(2)+payload(1)", len(llm.lastMsgs))
	}
	last := llm.lastMsgs[2]
	if last.Role != types.RoleUser {
		t.Errorf("final message role = %s", last.Role)
	}
	if !strings.Contains(last.Content, "渋谷のカフェは？") {
		t.Error("payload missing utterance")
	}
	if !strings.Contains(last.Content, "https://example.com/a") {
		t.Error("payload missing evidence link")
	}
	if !strings.Contains(llm.lastOpts.System, "AIくん") {
		t.Error("system instruction missing persona")
	}
	if llm.lastOpts.Temperature != 0.5 || llm.lastOpts.MaxTokens != 600 {
		t.Errorf("generation params = %v/%v", llm.lastOpts.Temperature, llm.lastOpts.MaxTokens)
	}
}

func TestSynthesize_AppendsMarketplaceLink(t *testing.T) {
	llm := &fakeLLM{reply: "フィギュアなら家電量販店が安いです"}
	s := NewSynthesizer(llm, Options{})

	url := "https://jp.mercari.com/search/?q=%E3%83%8A%E3%83%AB%E3%83%88%20%E3%83%95%E3%82%A3%E3%82%AE%E3%83%A5%E3%82%A2&sort="
	draft := s.Synthesize(context.Background(), "ナルトのフィギュアを安く買うには？", nil, types.IntentProduct, types.EvidenceBundle{}, url)

	if !strings.Contains(draft.Text, url) {
		t.Errorf("reply missing marketplace url: %q", draft.Text)
	}
}

func TestSynthesize_SkipsMarketplaceLinkWhenPresent(t *testing.T) {
	url := "https://jp.mercari.com/search/?q=switch&sort="
	llm := &fakeLLM{reply: "こちらで探せます " + url}
	s := NewSynthesizer(llm, Options{})

	draft := s.Synthesize(context.Background(), "switch", nil, types.IntentProduct, types.EvidenceBundle{}, url)
	if strings.Count(draft.Text, url) != 1 {
		t.Errorf("url duplicated: %q", draft.Text)
	}
}

func TestSynthesize_AlwaysCrossSellDuplicates(t *testing.T) {
	url := "https://jp.mercari.com/search/?q=switch&sort="
	llm := &fakeLLM{reply: "こちらで探せます " + url}
	s := NewSynthesizer(llm, Options{AlwaysCrossSell: true})

	draft := s.Synthesize(context.Background(), "switch", nil, types.IntentProduct, types.EvidenceBundle{}, url)
	if strings.Count(draft.Text, url) != 2 {
		t.Errorf("cross-sell flag should force the appended link: %q", draft.Text)
	}
}

func TestSynthesize_AppendsSourcesWhenLinksOmitted(t *testing.T) {
	llm := &fakeLLM{reply: "渋谷は若者の街です"}
	s := NewSynthesizer(llm, Options{CitationCap: 2})

	ev := evidence("https://example.com/a", "https://example.com/b", "https://example.com/c")
	draft := s.Synthesize(context.Background(), "渋谷ってどんな街？", nil, types.IntentDescribe, ev, "")

	if !strings.Contains(draft.Text, "参考:") {
		t.Fatalf("missing sources block: %q", draft.Text)
	}
	if !strings.Contains(draft.Text, "https://example.com/a") || !strings.Contains(draft.Text, "https://example.com/b") {
		t.Errorf("sources block missing links: %q", draft.Text)
	}
	if strings.Contains(draft.Text, "https://example.com/c") {
		t.Errorf("sources block exceeds citation cap: %q", draft.Text)
	}
	if len(draft.CitationLinks) != 2 {
		t.Errorf("citation links = %d, want 2", len(draft.CitationLinks))
	}
}

func TestSynthesize_NoSourcesWithoutEvidence(t *testing.T) {
	llm := &fakeLLM{reply: "こんにちは！"}
	s := NewSynthesizer(llm, Options{})

	draft := s.Synthesize(context.Background(), "こんにちは", nil, types.IntentGeneral, types.EvidenceBundle{}, "")
	if strings.Contains(draft.Text, "参考:") {
		t.Errorf("sources block must not appear without evidence: %q", draft.Text)
	}
}

func TestSynthesize_NoSourcesWhenTextAlreadyCites(t *testing.T) {
	llm := &fakeLLM{reply: "詳しくは https://example.com/a をどうぞ"}
	s := NewSynthesizer(llm, Options{})

	draft := s.Synthesize(context.Background(), "渋谷", nil, types.IntentDescribe, evidence("https://example.com/b"), "")
	if strings.Contains(draft.Text, "参考:") {
		t.Errorf("text already carries a url, no block expected: %q", draft.Text)
	}
}

func TestSynthesize_EmptyGenerationFallsBack(t *testing.T) {
	llm := &fakeLLM{reply: "   \n "}
	s := NewSynthesizer(llm, Options{})

	draft := s.Synthesize(context.Background(), "？", nil, types.IntentGeneral, types.EvidenceBundle{}, "")
	if draft.Text != FallbackText {
		t.Errorf("draft = %q, want fallback", draft.Text)
	}
}

func TestSynthesize_EmptyGenerationDropsMarketplaceLink(t *testing.T) {
	llm := &fakeLLM{reply: ""}
	s := NewSynthesizer(llm, Options{})

	url := "https://jp.mercari.com/search/?q=switch&sort="
	draft := s.Synthesize(context.Background(), "switch", nil, types.IntentProduct, types.EvidenceBundle{}, url)
	if draft.Text != FallbackText {
		t.Errorf("draft = %q, failed generation resolves to the plain fallback", draft.Text)
	}
}

func TestRetune_ConcurrentWithSynthesize(t *testing.T) {
	llm := &fakeLLM{reply: "渋谷は若者の街です"}
	s := NewSynthesizer(llm, Options{CitationCap: 2})
	ev := evidence("https://example.com/a", "https://example.com/b")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.Retune(Options{CitationCap: 1 + i%2, AlwaysCrossSell: i%2 == 0})
		}
	}()
	for i := 0; i < 200; i++ {
		draft := s.Synthesize(context.Background(), "渋谷", nil, types.IntentDescribe, ev, "")
		if draft.Text == "" {
			t.Fatal("empty draft")
		}
	}
	<-done
}

func TestSynthesize_ErrorFallsBack(t *testing.T) {
	llm := &fakeLLM{err: errors.New("backend down")}
	s := NewSynthesizer(llm, Options{})

	draft := s.Synthesize(context.Background(), "？", nil, types.IntentGeneral, types.EvidenceBundle{}, "")
	if draft.Text != FallbackText {
		t.Errorf("draft = %q, want fallback", draft.Text)
	}
}
