package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sentellent/senti/internal/llm"
)

func TestMemoryStore_AppendAndHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	turns := []Turn{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
		{Role: RoleUser, Content: "bye"},
	}
	for _, turn := range turns {
		if err := s.Append(ctx, "u1", turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(got))
	}
	for i := range turns {
		if got[i].Content != turns[i].Content || got[i].Role != turns[i].Role {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], turns[i])
		}
	}
}

func TestMemoryStore_UnknownUserEmpty(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.History(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty history, got %d turns", len(got))
	}
}

func TestMemoryStore_UserIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Append(ctx, "u1", Turn{Role: RoleUser, Content: "u1 secret"})
	s.Append(ctx, "u2", Turn{Role: RoleUser, Content: "u2 secret"})

	got, _ := s.History(ctx, "u1")
	if len(got) != 1 || got[0].Content != "u1 secret" {
		t.Errorf("u1 history = %+v", got)
	}
	got, _ = s.History(ctx, "u2")
	if len(got) != 1 || got[0].Content != "u2 secret" {
		t.Errorf("u2 history = %+v", got)
	}
}

func TestMemoryStore_HistoryReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Append(ctx, "u1", Turn{Role: RoleUser, Content: "original"})

	got, _ := s.History(ctx, "u1")
	got[0].Content = "mutated"

	again, _ := s.History(ctx, "u1")
	if again[0].Content != "original" {
		t.Error("caller mutation leaked into stored state")
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	tc := llm.NewToolCall("call_1", "read_inbox", map[string]any{"limit": float64(5)})

	turns := []Turn{
		{Role: RoleUser, Content: "check my mail", Images: []string{"data:image/png;base64,AA"}},
		{Role: RoleAssistant, Content: "", ToolCalls: []llm.ToolCall{tc}},
		{Role: RoleTool, Content: "no new mail", ToolCallID: "call_1"},
		{Role: RoleAssistant, Content: "Your inbox is empty."},
	}
	for _, turn := range turns {
		if err := s.Append(ctx, "u1", turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(got))
	}

	if got[0].Images[0] != "data:image/png;base64,AA" {
		t.Errorf("images not round-tripped: %v", got[0].Images)
	}
	if len(got[1].ToolCalls) != 1 || got[1].ToolCalls[0].Function.Name != "read_inbox" {
		t.Errorf("tool calls not round-tripped: %+v", got[1].ToolCalls)
	}
	if got[1].ToolCalls[0].Function.Arguments["limit"] != float64(5) {
		t.Errorf("tool call arguments = %v", got[1].ToolCalls[0].Function.Arguments)
	}
	if got[2].ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q", got[2].ToolCallID)
	}
	if got[2].Timestamp.IsZero() {
		t.Error("timestamp not persisted")
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	s.Append(ctx, "u1", Turn{Role: RoleUser, Content: "remember me"})
	s.Close()

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 || got[0].Content != "remember me" {
		t.Errorf("history after reopen = %+v", got)
	}
}

func TestSQLiteStore_UserIsolation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	s.Append(ctx, "u1", Turn{Role: RoleUser, Content: "mine"})
	s.Append(ctx, "u2", Turn{Role: RoleUser, Content: "theirs"})

	got, _ := s.History(ctx, "u1")
	if len(got) != 1 || got[0].Content != "mine" {
		t.Errorf("u1 history = %+v", got)
	}

	users, err := s.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("users = %v", users)
	}
}

func TestUserLocks_SameUserExcludes(t *testing.T) {
	locks := NewUserLocks()
	var inCritical int
	var maxConcurrent int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("u1")
			defer locks.Unlock("u1")

			mu.Lock()
			inCritical++
			if inCritical > maxConcurrent {
				maxConcurrent = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxConcurrent != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxConcurrent)
	}
}

func TestUserLocks_DifferentUsersParallel(t *testing.T) {
	locks := NewUserLocks()
	locks.Lock("u1")
	defer locks.Unlock("u1")

	done := make(chan struct{})
	go func() {
		locks.Lock("u2")
		locks.Unlock("u2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("u2 blocked behind u1's lock")
	}
}

func TestTurn_Message(t *testing.T) {
	turn := Turn{
		Role:       RoleTool,
		Content:    "result text",
		ToolCallID: "call_9",
	}
	msg := turn.Message()
	if msg.Role != "tool" || msg.Content != "result text" || msg.ToolCallID != "call_9" {
		t.Errorf("Message() = %+v", msg)
	}
}
