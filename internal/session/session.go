// Package session holds the client side of the chat: one Session per
// browser tab, owning the conversation, the transcript shown to the user,
// and the prompt assembly for each turn. A Session is single-threaded by
// design (one event at a time, like the page that hosts it) and is not
// safe for concurrent use.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/dfranca/folio-chat/internal/config"
	"github.com/dfranca/folio-chat/internal/knowledge"
	"github.com/dfranca/folio-chat/internal/logger"
)

// FSM states. A session starts Unopened, becomes Open on first use, and
// bounces through Sending while a turn is in flight.
var (
	StateUnopened stateless.State = "Unopened"
	StateOpen     stateless.State = "Open"
	StateSending  stateless.State = "Sending"
)

// FSM triggers.
var (
	triggerOpen          stateless.Trigger = "Open"
	triggerSubmit        stateless.Trigger = "Submit"
	triggerReplyReceived stateless.Trigger = "ReplyReceived"
	triggerSendFailed    stateless.Trigger = "SendFailed"
)

var (
	// ErrEmptyMessage rejects whitespace-only input before any state change.
	ErrEmptyMessage = errors.New("empty message")
	// ErrBusy means a turn is already in flight; at most one per session.
	ErrBusy = errors.New("submission in flight")
	// ErrUnavailable means the chat configuration could not be loaded and
	// the session is disabled.
	ErrUnavailable = errors.New("chat unavailable")
)

const (
	fallbackReply      = "Oops—something went wrong. Please try again."
	emptyReplyText     = "(no reply)"
	unavailableMessage = "Chat is unavailable right now: configuration could not be loaded."
)

// Transcript entry roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Entry is one rendered transcript line. The transcript is what the user
// sees; it includes welcome and fallback lines that never reach the wire.
type Entry struct {
	Role string
	Text string
}

// ChatConfig is the static configuration resource consumed by a session.
type ChatConfig struct {
	Endpoint       string `json:"endpoint"`
	SystemPrompt   string `json:"systemPrompt"`
	WelcomeMessage string `json:"welcomeMessage"`
	MaxHistory     int    `json:"maxHistory"`
}

// Relay sends one assembled message list and returns the reply text.
type Relay interface {
	Send(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
}

// ConfigLoader produces the session's ChatConfig. An error disables the
// session.
type ConfigLoader func() (*ChatConfig, error)

// FactLoader produces the knowledge facts. An error is tolerated; the
// session runs with an empty fact set.
type FactLoader func() ([]string, error)

// Session owns one conversation. The hosting page constructs exactly one
// and passes it in; there is no package-level instance.
type Session struct {
	id         string
	relay      Relay
	loadConfig ConfigLoader
	loadFacts  FactLoader
	ranking    config.RankingConfig

	fsm         *stateless.StateMachine
	loaded      bool
	unavailable bool
	cfg         *ChatConfig
	ranker      *knowledge.Ranker
	messages    []openai.ChatCompletionMessage
	transcript  []Entry
}

// New creates a session. Configuration and facts are loaded lazily on
// first open, so constructing a session is free until the user engages.
func New(relay Relay, loadConfig ConfigLoader, loadFacts FactLoader, ranking config.RankingConfig) *Session {
	s := &Session{
		id:         uuid.NewString(),
		relay:      relay,
		loadConfig: loadConfig,
		loadFacts:  loadFacts,
		ranking:    ranking,
	}

	fsm := stateless.NewStateMachine(StateUnopened)
	fsm.Configure(StateUnopened).
		Permit(triggerOpen, StateOpen)
	fsm.Configure(StateOpen).
		PermitReentry(triggerOpen).
		Permit(triggerSubmit, StateSending)
	fsm.Configure(StateSending).
		Permit(triggerReplyReceived, StateOpen).
		Permit(triggerSendFailed, StateOpen)
	s.fsm = fsm

	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// State exposes the current FSM state.
func (s *Session) State() stateless.State { return s.fsm.MustState() }

// Transcript returns the rendered entries in order.
func (s *Session) Transcript() []Entry { return s.transcript }

// Conversation returns the wire-level message history, system message first.
func (s *Session) Conversation() []openai.ChatCompletionMessage { return s.messages }

// Open moves the session to Open, loading configuration and facts on the
// first call. The welcome message is shown exactly once, and only when the
// transcript is still empty. Opening mid-send is a no-op.
func (s *Session) Open(ctx context.Context) error {
	if s.fsm.MustState() == StateSending {
		return nil
	}
	if err := s.fsm.FireCtx(ctx, triggerOpen); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	s.ensureLoaded()
	if len(s.transcript) == 0 {
		if s.unavailable {
			s.transcript = append(s.transcript, Entry{Role: RoleBot, Text: unavailableMessage})
		} else {
			s.transcript = append(s.transcript, Entry{Role: RoleBot, Text: s.cfg.WelcomeMessage})
		}
	}
	return nil
}

// Submit runs one chat turn: validate, append the user's message, select
// facts, assemble the bounded prompt, and call the relay. On failure the
// conversation keeps the user's message as its latest entry and only the
// transcript gets a fallback line, so the next turn re-supplies context.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}

	if s.fsm.MustState() == StateUnopened {
		if err := s.Open(ctx); err != nil {
			return "", err
		}
	}
	if s.unavailable {
		return "", ErrUnavailable
	}
	if s.fsm.MustState() == StateSending {
		return "", ErrBusy
	}

	if err := s.fsm.FireCtx(ctx, triggerSubmit); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	// Optimistic append: the user's turn is part of the conversation even
	// if the relay call fails.
	s.messages = append(s.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: trimmed,
	})
	s.transcript = append(s.transcript, Entry{Role: RoleUser, Text: trimmed})

	outbound := s.assemble(s.ranker.ContextMessage(trimmed))

	reply, err := s.relay.Send(ctx, outbound)
	if err != nil {
		logger.L.Warn("chat turn failed", "session", s.id, "error", err)
		if fireErr := s.fsm.FireCtx(ctx, triggerSendFailed); fireErr != nil {
			logger.L.Warn("fsm fire error", "session", s.id, "error", fireErr)
		}
		s.transcript = append(s.transcript, Entry{Role: RoleBot, Text: fallbackReply})
		return "", fmt.Errorf("send: %w", err)
	}
	if fireErr := s.fsm.FireCtx(ctx, triggerReplyReceived); fireErr != nil {
		logger.L.Warn("fsm fire error", "session", s.id, "error", fireErr)
	}

	if reply == "" {
		reply = emptyReplyText
	}
	s.messages = append(s.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	s.transcript = append(s.transcript, Entry{Role: RoleBot, Text: reply})
	return reply, nil
}

// assemble builds the outbound list: the leading system message, the
// selected facts as a second system message when present, then the most
// recent maxHistory-2 turns. The system message is never trimmed away.
func (s *Session) assemble(factsMessage string) []openai.ChatCompletionMessage {
	system := s.messages[0]
	recent := s.messages[1:]
	if max := s.cfg.MaxHistory - 2; len(recent) > max {
		recent = recent[len(recent)-max:]
	}

	outbound := make([]openai.ChatCompletionMessage, 0, len(recent)+2)
	outbound = append(outbound, system)
	if factsMessage != "" {
		outbound = append(outbound, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: factsMessage,
		})
	}
	return append(outbound, recent...)
}

func (s *Session) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true

	cfg, err := s.loadConfig()
	if err != nil {
		logger.L.Warn("chat config unavailable; disabling session", "session", s.id, "error", err)
		s.unavailable = true
		return
	}
	s.cfg = cfg
	s.messages = []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: cfg.SystemPrompt,
	}}

	var facts []string
	if s.loadFacts != nil {
		facts, err = s.loadFacts()
		if err != nil {
			logger.L.Warn("site data unavailable; running without facts", "session", s.id, "error", err)
			facts = nil
		}
	}
	s.ranker = &knowledge.Ranker{
		Facts:    facts,
		Limit:    s.ranking.Limit,
		Fallback: s.ranking.Fallback,
	}
	logger.L.Debug("session ready", "session", s.id, "facts", len(facts))
}

// FileConfig loads the ChatConfig resource from a JSON file, applying
// typed defaults. A missing endpoint is an error: without it the widget
// cannot reach the relay and must stay disabled.
func FileConfig(path string) ConfigLoader {
	return func() (*ChatConfig, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read chat config: %w", err)
		}
		var cfg ChatConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse chat config: %w", err)
		}
		if cfg.Endpoint == "" {
			return nil, errors.New("chat config: endpoint required")
		}
		if cfg.SystemPrompt == "" {
			cfg.SystemPrompt = config.DefaultSystemPrompt
		}
		if cfg.WelcomeMessage == "" {
			cfg.WelcomeMessage = config.DefaultWelcomeMessage
		}
		if cfg.MaxHistory < 2 {
			cfg.MaxHistory = config.DefaultMaxHistory
		}
		return &cfg, nil
	}
}

// FileFacts loads and flattens the site-data resource.
func FileFacts(path string) FactLoader {
	return func() ([]string, error) {
		data, err := knowledge.Load(path)
		if err != nil {
			return nil, err
		}
		return data.Facts(), nil
	}
}
