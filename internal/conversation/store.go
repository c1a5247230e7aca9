// internal/conversation/store.go

// Package conversation keeps the per-session model dialogue. The store is
// append-only during normal operation; model turns are stored exactly as
// received so opaque thought signatures survive replay byte for byte.
package conversation

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
)

// Store holds one session's ordered turn history.
type Store struct {
	mu     sync.RWMutex
	turns  []schemas.Turn
	logger *zap.Logger
}

// NewStore creates an empty history.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger.Named("Conversation")}
}

// AppendUser appends a user turn with the given parts. Empty part lists are
// ignored.
func (s *Store) AppendUser(parts ...schemas.Part) {
	if len(parts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, schemas.Turn{Role: schemas.RoleUser, Parts: parts})
}

// AppendModelTurnVerbatim appends a model turn exactly as received from the
// upstream. Turns with any other role, or with no parts, are dropped with a
// warning; rewriting them would corrupt the signature chain.
func (s *Store) AppendModelTurnVerbatim(turn schemas.Turn) {
	if turn.Role != schemas.RoleModel {
		s.logger.Warn("Dropping non-model turn passed to verbatim append.",
			zap.String("role", turn.Role))
		return
	}
	if len(turn.Parts) == 0 {
		s.logger.Warn("Dropping empty model turn.")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// AppendFunctionResponses appends all tool results from one step as a single
// user turn, one functionResponse part per result, in execution order. Extra
// parts (the post-action screenshot) follow the responses in the same turn.
func (s *Store) AppendFunctionResponses(responses []schemas.FunctionResponse, extra ...schemas.Part) {
	if len(responses) == 0 && len(extra) == 0 {
		return
	}
	parts := make([]schemas.Part, 0, len(responses)+len(extra))
	for i := range responses {
		r := responses[i]
		parts = append(parts, schemas.Part{FunctionResponse: &r})
	}
	parts = append(parts, extra...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, schemas.Turn{Role: schemas.RoleUser, Parts: parts})
}

// Snapshot returns a copy of the history safe to hand to a request builder.
// The part slices are shared; callers must not mutate them.
func (s *Store) Snapshot() []schemas.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schemas.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear discards the entire history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Validate checks the signature invariant: within the window after the most
// recent user turn carrying visible text, every model turn's first
// function-call part must carry a non-empty thought signature. A violation is
// returned as an error; the caller decides whether it is fatal.
func (s *Store) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	windowStart := 0
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role != schemas.RoleUser {
			continue
		}
		if hasVisibleText(s.turns[i]) {
			windowStart = i + 1
			break
		}
	}

	for i := windowStart; i < len(s.turns); i++ {
		turn := s.turns[i]
		if turn.Role != schemas.RoleModel {
			continue
		}
		for _, part := range turn.Parts {
			if part.FunctionCall == nil {
				continue
			}
			if part.ThoughtSignature == "" {
				return fmt.Errorf(
					"model turn %d: first function call %q is missing its thought signature",
					i, part.FunctionCall.Name)
			}
			break
		}
	}
	return nil
}

func hasVisibleText(turn schemas.Turn) bool {
	for _, part := range turn.Parts {
		if part.IsText() {
			return true
		}
	}
	return false
}
