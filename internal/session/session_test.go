package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/dfranca/folio-chat/internal/config"
)

type mockRelay struct {
	SendFunc func(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)

	sent [][]openai.ChatCompletionMessage
}

func (m *mockRelay) Send(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	m.sent = append(m.sent, messages)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, messages)
	}
	return "ok", nil
}

func staticConfig(maxHistory int) ConfigLoader {
	return func() (*ChatConfig, error) {
		return &ChatConfig{
			Endpoint:       "http://relay.local/chat",
			SystemPrompt:   "You are the portfolio assistant.",
			WelcomeMessage: "Welcome!",
			MaxHistory:     maxHistory,
		}, nil
	}
}

func staticFacts(facts ...string) FactLoader {
	return func() ([]string, error) { return facts, nil }
}

var testRanking = config.RankingConfig{
	Limit:    config.DefaultRankingLimit,
	Fallback: config.DefaultRankingFallback,
}

func TestOpen_WelcomeShownOnce(t *testing.T) {
	s := New(&mockRelay{}, staticConfig(14), staticFacts(), testRanking)
	require.Equal(t, StateUnopened, s.State())

	require.NoError(t, s.Open(context.Background()))
	require.Equal(t, StateOpen, s.State())
	require.Equal(t, []Entry{{Role: RoleBot, Text: "Welcome!"}}, s.Transcript())

	// Re-opening must not repeat the welcome.
	require.NoError(t, s.Open(context.Background()))
	require.Len(t, s.Transcript(), 1)
}

func TestOpen_ConfigFailureDisablesSession(t *testing.T) {
	s := New(&mockRelay{}, func() (*ChatConfig, error) {
		return nil, errors.New("missing resource")
	}, staticFacts(), testRanking)

	require.NoError(t, s.Open(context.Background()))
	require.Len(t, s.Transcript(), 1)
	require.Equal(t, RoleBot, s.Transcript()[0].Role)

	_, err := s.Submit(context.Background(), "hello")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSubmit_EmptyInputIsNoop(t *testing.T) {
	relay := &mockRelay{}
	s := New(relay, staticConfig(14), staticFacts(), testRanking)
	require.NoError(t, s.Open(context.Background()))

	for _, input := range []string{"", "   ", "\n\t "} {
		_, err := s.Submit(context.Background(), input)
		require.ErrorIs(t, err, ErrEmptyMessage)
	}
	require.Empty(t, relay.sent)
	// Rejected input never reaches the conversation; only the seeded
	// system message is there.
	require.Len(t, s.Conversation(), 1)
	require.Equal(t, openai.ChatMessageRoleSystem, s.Conversation()[0].Role)
}

func TestSubmit_AssemblesPrompt(t *testing.T) {
	relay := &mockRelay{SendFunc: func(_ context.Context, _ []openai.ChatCompletionMessage) (string, error) {
		return "I can help with that.", nil
	}}
	s := New(relay, staticConfig(14), staticFacts("Name: Alice", "Skills: Go, Rust"), testRanking)
	require.NoError(t, s.Open(context.Background()))

	reply, err := s.Submit(context.Background(), "  does alice know rust?  ")
	require.NoError(t, err)
	require.Equal(t, "I can help with that.", reply)

	require.Len(t, relay.sent, 1)
	outbound := relay.sent[0]
	require.Len(t, outbound, 3)
	require.Equal(t, openai.ChatMessageRoleSystem, outbound[0].Role)
	require.Equal(t, "You are the portfolio assistant.", outbound[0].Content)
	require.Equal(t, openai.ChatMessageRoleSystem, outbound[1].Role)
	require.Contains(t, outbound[1].Content, "Use these portfolio facts:")
	require.Contains(t, outbound[1].Content, "Name: Alice")
	require.Equal(t, openai.ChatMessageRoleUser, outbound[2].Role)
	require.Equal(t, "does alice know rust?", outbound[2].Content)

	// Both turns land in the conversation; the facts message does not.
	conv := s.Conversation()
	require.Len(t, conv, 3)
	require.Equal(t, openai.ChatMessageRoleAssistant, conv[2].Role)
	require.Equal(t, "I can help with that.", conv[2].Content)
}

func TestSubmit_NoFactsOmitsFactsMessage(t *testing.T) {
	relay := &mockRelay{}
	s := New(relay, staticConfig(14), staticFacts(), testRanking)
	require.NoError(t, s.Open(context.Background()))

	_, err := s.Submit(context.Background(), "hello there")
	require.NoError(t, err)

	outbound := relay.sent[0]
	require.Len(t, outbound, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, outbound[0].Role)
	require.Equal(t, openai.ChatMessageRoleUser, outbound[1].Role)
}

func TestSubmit_HistoryTrimmedSystemPreserved(t *testing.T) {
	relay := &mockRelay{}
	s := New(relay, staticConfig(4), staticFacts(), testRanking)
	require.NoError(t, s.Open(context.Background()))

	for _, q := range []string{"first question", "second question", "third question"} {
		_, err := s.Submit(context.Background(), q)
		require.NoError(t, err)
	}

	// maxHistory 4 leaves room for 2 trailing turns after the system
	// message. By the third submit the conversation holds five entries
	// past the system message, so only the last two go out.
	last := relay.sent[len(relay.sent)-1]
	require.Len(t, last, 3)
	require.Equal(t, openai.ChatMessageRoleSystem, last[0].Role)
	require.Equal(t, "You are the portfolio assistant.", last[0].Content)
	require.Equal(t, openai.ChatMessageRoleAssistant, last[1].Role)
	require.Equal(t, "third question", last[2].Content)

	// The full conversation is untouched by trimming.
	require.Len(t, s.Conversation(), 7)
}

func TestSubmit_FailureKeepsUserTurn(t *testing.T) {
	relay := &mockRelay{SendFunc: func(_ context.Context, _ []openai.ChatCompletionMessage) (string, error) {
		return "", errors.New("boom")
	}}
	s := New(relay, staticConfig(14), staticFacts(), testRanking)
	require.NoError(t, s.Open(context.Background()))

	_, err := s.Submit(context.Background(), "hello")
	require.Error(t, err)
	require.Equal(t, StateOpen, s.State())

	// Failed turns never append an assistant message; the user's message
	// stays last so the next submission re-supplies context.
	conv := s.Conversation()
	require.Equal(t, openai.ChatMessageRoleUser, conv[len(conv)-1].Role)

	entries := s.Transcript()
	require.Equal(t, Entry{Role: RoleBot, Text: fallbackReply}, entries[len(entries)-1])

	// The session recovers: a later submit goes through.
	relay.SendFunc = nil
	reply, err := s.Submit(context.Background(), "are you back?")
	require.NoError(t, err)
	require.Equal(t, "ok", reply)
}

func TestSubmit_RejectsOverlappingSubmission(t *testing.T) {
	var s *Session
	relay := &mockRelay{SendFunc: func(ctx context.Context, _ []openai.ChatCompletionMessage) (string, error) {
		require.Equal(t, StateSending, s.State())
		_, err := s.Submit(ctx, "second")
		require.ErrorIs(t, err, ErrBusy)
		return "done", nil
	}}
	s = New(relay, staticConfig(14), staticFacts(), testRanking)
	require.NoError(t, s.Open(context.Background()))

	reply, err := s.Submit(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, "done", reply)
	require.Equal(t, StateOpen, s.State())
	require.Len(t, relay.sent, 1)
}

func TestSubmit_EmptyReplyGetsDefaultText(t *testing.T) {
	relay := &mockRelay{SendFunc: func(_ context.Context, _ []openai.ChatCompletionMessage) (string, error) {
		return "", nil
	}}
	s := New(relay, staticConfig(14), staticFacts(), testRanking)

	reply, err := s.Submit(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, emptyReplyText, reply)
}

func TestFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat-config.json")
	content := `{"endpoint":"https://relay.example/chat","maxHistory":1}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := FileConfig(path)()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Endpoint != "https://relay.example/chat" {
		t.Fatalf("unexpected endpoint: %s", cfg.Endpoint)
	}
	if cfg.SystemPrompt != config.DefaultSystemPrompt {
		t.Fatalf("expected default system prompt, got %q", cfg.SystemPrompt)
	}
	if cfg.WelcomeMessage != config.DefaultWelcomeMessage {
		t.Fatalf("expected default welcome, got %q", cfg.WelcomeMessage)
	}
	if cfg.MaxHistory != config.DefaultMaxHistory {
		t.Fatalf("maxHistory below 2 should use the default, got %d", cfg.MaxHistory)
	}
}

func TestFileConfig_MissingEndpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat-config.json")
	if err := os.WriteFile(path, []byte(`{"systemPrompt":"x"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := FileConfig(path)(); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
}

func TestFileConfig_MissingFile(t *testing.T) {
	if _, err := FileConfig(filepath.Join(t.TempDir(), "nope.json"))(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFileFacts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site-data.json")
	content := `{"name":"Alice","skills":["Go","Rust"]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	facts, err := FileFacts(path)()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(facts) != 2 || facts[0] != "Name: Alice" || facts[1] != "Skills: Go, Rust" {
		t.Fatalf("unexpected facts: %v", facts)
	}
}
