package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"aikun/internal/types"
)

type failingStore struct {
	loadErr   error
	appendErr error
	deleteErr error
	appended  int
}

func (f *failingStore) LoadTurns(ctx context.Context, id string, limit int) ([]types.Turn, error) {
	return nil, f.loadErr
}

func (f *failingStore) AppendTurn(ctx context.Context, id string, role types.Role, content string) error {
	f.appended++
	return f.appendErr
}

func (f *failingStore) DeleteTurns(ctx context.Context, id string) error {
	return f.deleteErr
}

func TestDeriveConversationID(t *testing.T) {
	tests := []struct {
		group, room, user string
		want              string
	}{
		{"g1", "r1", "u1", "group:g1"},
		{"", "r1", "u1", "room:r1"},
		{"", "", "u1", "user:u1"},
		{"", "", "", "unknown"},
	}
	for _, tt := range tests {
		if got := DeriveConversationID(tt.group, tt.room, tt.user); got != tt.want {
			t.Errorf("DeriveConversationID(%q,%q,%q) = %q, want %q", tt.group, tt.room, tt.user, got, tt.want)
		}
	}
}

func TestManager_LoadFailsSoft(t *testing.T) {
	m := NewManager(&failingStore{loadErr: errors.New("storage down")}, 12)
	turns := m.Load(context.Background(), "c")
	if turns != nil {
		t.Errorf("expected nil history on storage error, got %v", turns)
	}
}

func TestManager_AppendSwallowsError(t *testing.T) {
	fs := &failingStore{appendErr: errors.New("disk full")}
	m := NewManager(fs, 12)
	// Must not panic or surface the error.
	m.Append(context.Background(), "c", types.RoleUser, "hello")
	if fs.appended != 1 {
		t.Errorf("expected one append attempt, got %d", fs.appended)
	}
}

func TestManager_AppendSkipsBlank(t *testing.T) {
	fs := &failingStore{}
	m := NewManager(fs, 12)
	m.Append(context.Background(), "c", types.RoleUser, "   ")
	if fs.appended != 0 {
		t.Errorf("blank content should not be written, got %d appends", fs.appended)
	}
}

func TestManager_ResetSurfacesError(t *testing.T) {
	m := NewManager(&failingStore{deleteErr: errors.New("locked")}, 12)
	if err := m.Reset(context.Background(), "c"); err == nil {
		t.Fatal("reset error must be surfaced")
	}
}

const prompt = "どのあたりをお探しですか？"

func turn(role types.Role, content string, offset int) types.Turn {
	return types.Turn{Role: role, Content: content, CreatedAt: time.Unix(int64(1000+offset), 0)}
}

func TestFindPendingQuery(t *testing.T) {
	turns := []types.Turn{
		turn(types.RoleUser, "近くのカフェ", 0),
		turn(types.RoleAssistant, prompt, 1),
	}
	got, ok := FindPendingQuery(turns, prompt, 6)
	if !ok {
		t.Fatal("expected pending query")
	}
	if got != "近くのカフェ" {
		t.Errorf("pending query = %q, want 近くのカフェ", got)
	}
}

func TestFindPendingQuery_ResolvedClarification(t *testing.T) {
	turns := []types.Turn{
		turn(types.RoleUser, "近くのカフェ", 0),
		turn(types.RoleAssistant, prompt, 1),
		turn(types.RoleUser, "渋谷", 2),
		turn(types.RoleAssistant, "渋谷ならこのあたりがおすすめです", 3),
	}
	if _, ok := FindPendingQuery(turns, prompt, 6); ok {
		t.Error("a later assistant reply means the clarification is resolved")
	}
}

func TestFindPendingQuery_NoPending(t *testing.T) {
	turns := []types.Turn{
		turn(types.RoleUser, "こんにちは", 0),
		turn(types.RoleAssistant, "どうも！", 1),
	}
	if _, ok := FindPendingQuery(turns, prompt, 6); ok {
		t.Error("expected no pending query")
	}
}

func TestFindPendingQuery_RespectsLookback(t *testing.T) {
	turns := []types.Turn{
		turn(types.RoleUser, "近くのカフェ", 0),
		turn(types.RoleAssistant, prompt, 1),
		turn(types.RoleUser, "話題変更1", 2),
		turn(types.RoleUser, "話題変更2", 3),
		turn(types.RoleUser, "話題変更3", 4),
	}
	// Prompt sits 4 turns back; a lookback of 2 must not find it.
	if _, ok := FindPendingQuery(turns, prompt, 2); ok {
		t.Error("lookback window should bound the scan")
	}
	if _, ok := FindPendingQuery(turns, prompt, 6); !ok {
		t.Error("wider lookback should find the pending prompt")
	}
}

func TestFindPendingQuery_Empty(t *testing.T) {
	if _, ok := FindPendingQuery(nil, prompt, 6); ok {
		t.Error("empty history has no pending query")
	}
}
