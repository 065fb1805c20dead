package refine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aikun/internal/types"
)

type fakeLLM struct {
	replies []string
	errs    []error
	calls   int
	lastSys string
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []types.Message, opts types.GenerateOptions) (string, error) {
	i := f.calls
	f.calls++
	f.lastSys = opts.System
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

func TestRefine_UsesModelOutput(t *testing.T) {
	llm := &fakeLLM{replies: []string{"渋谷 カフェ おすすめ 営業時間"}}
	r := NewRefiner(llm)

	got := r.Refine(context.Background(), "渋谷でいい感じのカフェ知らない？", types.IntentProximity)
	if got != "渋谷 カフェ おすすめ 営業時間" {
		t.Errorf("query = %q", got)
	}
	if llm.calls != 1 {
		t.Errorf("calls = %d, want 1", llm.calls)
	}
	if !strings.Contains(llm.lastSys, "周辺") {
		t.Errorf("system instruction missing proximity hint: %q", llm.lastSys)
	}
}

func TestRefine_StripsQuotes(t *testing.T) {
	llm := &fakeLLM{replies: []string{"「ナルト フィギュア 通販」"}}
	r := NewRefiner(llm)

	if got := r.Refine(context.Background(), "ナルトのフィギュア", types.IntentProduct); got != "ナルト フィギュア 通販" {
		t.Errorf("query = %q", got)
	}
}

func TestRefine_RetriesOnceThenFallsBack(t *testing.T) {
	llm := &fakeLLM{errs: []error{errors.New("429"), errors.New("429")}}
	r := NewRefiner(llm)

	got := r.Refine(context.Background(), "ナルトのフィギュアを安く買うには？", types.IntentProduct)
	if llm.calls != 2 {
		t.Errorf("calls = %d, want exactly one retry", llm.calls)
	}
	want := "ナルトのフィギュアを安く買うには？ 通販 価格"
	if got != want {
		t.Errorf("fallback query = %q, want %q", got, want)
	}
}

func TestRefine_MalformedOutputFallsBack(t *testing.T) {
	llm := &fakeLLM{replies: []string{"クエリは以下です:\n渋谷 カフェ", strings.Repeat("あ", 200)}}
	r := NewRefiner(llm)

	got := r.Refine(context.Background(), "渋谷のカフェ", types.IntentDescribe)
	if got != "渋谷のカフェ 特徴" {
		t.Errorf("query = %q", got)
	}
}

func TestRefine_GeneralIntentHasNoSuffix(t *testing.T) {
	llm := &fakeLLM{errs: []error{errors.New("down"), errors.New("down")}}
	r := NewRefiner(llm)

	if got := r.Refine(context.Background(), "こんにちは", types.IntentGeneral); got != "こんにちは" {
		t.Errorf("query = %q", got)
	}
}

func TestMergePending(t *testing.T) {
	if got := MergePending("近くのカフェ", "渋谷 カフェ"); got != "近くのカフェ 渋谷 カフェ" {
		t.Errorf("merged = %q", got)
	}
}
