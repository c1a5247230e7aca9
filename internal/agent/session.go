// internal/agent/session.go
package agent

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/conversation"
)

// Session is the per-task unit of state: the conversation history, the
// notebook, progress counters and the terminal summary.
type Session struct {
	ID           string
	Task         string
	Mode         schemas.SessionMode
	ScreenWidth  int
	ScreenHeight int

	History *conversation.Store
	notes   notebook

	mu        sync.Mutex
	stepCount int
	completed bool
	summary   string
	succeeded bool

	// lastScreenshot keeps the most recent successful capture so a failed
	// settle re-capture can fall back to it.
	lastScreenshot string

	running       atomic.Bool
	stopRequested atomic.Bool
}

func newSession(id, task string, mode schemas.SessionMode, width, height int, logger *zap.Logger) *Session {
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	return &Session{
		ID:           id,
		Task:         task,
		Mode:         mode,
		ScreenWidth:  width,
		ScreenHeight: height,
		History:      conversation.NewStore(logger),
	}
}

// StepCount returns the number of completed steps.
func (s *Session) StepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepCount
}

func (s *Session) incrementStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepCount++
	return s.stepCount
}

// Completed reports whether a terminal tool call has ended the task.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Summary returns the terminal summary, empty until completion.
func (s *Session) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Succeeded reports the model's own verdict from the terminal call, false
// until completion.
func (s *Session) Succeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.succeeded
}

func (s *Session) complete(summary string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	s.summary = summary
	s.succeeded = success
}

func (s *Session) setLastScreenshot(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScreenshot = data
}

func (s *Session) lastScreenshotData() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScreenshot
}

// Info snapshots the externally visible session state.
func (s *Session) Info() schemas.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schemas.SessionInfo{
		SessionID: s.ID,
		Task:      s.Task,
		Mode:      s.Mode,
		StepCount: s.stepCount,
		Completed: s.completed,
		Summary:   s.summary,
		NoteCount: s.notes.Count(),
	}
}
