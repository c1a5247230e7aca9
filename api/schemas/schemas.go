// api/schemas/schemas.go
package schemas

import "time"

// SessionMode selects which actuator backend a session is bound to.
type SessionMode string

const (
	ModeBrowser    SessionMode = "browser"    // Managed browser via CDP.
	ModeDesktop    SessionMode = "desktop"    // OS-level input driver.
	ModeBackground SessionMode = "background" // Background window driver.
)

// Valid reports whether the mode names a known backend class.
func (m SessionMode) Valid() bool {
	switch m {
	case ModeBrowser, ModeDesktop, ModeBackground:
		return true
	}
	return false
}

// TabInfo describes one open browser tab in a screenshot result.
type TabInfo struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	IsActive bool   `json:"is_active"`
}

// ScreenshotResult is the observation an actuator produces on request.
// Screenshot is base64 PNG, usually with a data-URI prefix.
type ScreenshotResult struct {
	Success    bool      `json:"success"`
	Screenshot string    `json:"screenshot,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	URL        string    `json:"url,omitempty"`
	Tabs       []TabInfo `json:"tabs,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ActionRequest is a single action handed to an actuator. Params carries the
// tool arguments after any coordinate denormalization.
type ActionRequest struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// ActionResult is the open-shaped outcome of one tool call. It is marshaled
// directly into the function-response part, so echoed parameters survive.
type ActionResult map[string]interface{}

// OKResult builds a success result with a human-readable message.
func OKResult(message string) ActionResult {
	return ActionResult{"status": "success", "message": message}
}

// FailedResult builds an error result with a human-readable message.
func FailedResult(message string) ActionResult {
	return ActionResult{"status": "error", "message": message}
}

// FailedResultCode builds an error result carrying a machine-readable
// classification alongside the message.
func FailedResultCode(code ErrorCode, message string) ActionResult {
	return ActionResult{"status": "error", "message": message, "error_type": string(code)}
}

// Succeeded reports whether the result's status field indicates success.
func (r ActionResult) Succeeded() bool {
	s, _ := r["status"].(string)
	return s == "success" || s == "completed"
}

// NoteCategory classifies a task note.
type NoteCategory string

const (
	NoteInfo      NoteCategory = "info"
	NoteProgress  NoteCategory = "progress"
	NoteTodo      NoteCategory = "todo"
	NoteImportant NoteCategory = "important"
	NoteError     NoteCategory = "error"
)

// Valid reports whether the category is one of the known values.
func (c NoteCategory) Valid() bool {
	switch c {
	case NoteInfo, NoteProgress, NoteTodo, NoteImportant, NoteError:
		return true
	}
	return false
}

// Note is one entry in a session's task notebook.
type Note struct {
	Content   string       `json:"content"`
	Category  NoteCategory `json:"category"`
	Timestamp time.Time    `json:"timestamp"`
	Step      int          `json:"step"`
}

// ActionOutcome pairs a tool name with its result inside a StepResult.
type ActionOutcome struct {
	Tool   string       `json:"tool"`
	Result ActionResult `json:"result"`
}

// ErrorCode is a machine-readable failure classification carried alongside
// the human-readable error string in step and loop results.
type ErrorCode string

const (
	ErrCodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionCompleted  ErrorCode = "SESSION_COMPLETED"
	ErrCodeActuatorUnbound   ErrorCode = "ACTUATOR_UNBOUND"
	ErrCodeCaptureFailed     ErrorCode = "CAPTURE_FAILED"
	ErrCodeSignatureInvalid  ErrorCode = "SIGNATURE_INVALID"
	ErrCodeUpstreamTransient ErrorCode = "UPSTREAM_TRANSIENT"
	ErrCodeUpstreamPermanent ErrorCode = "UPSTREAM_PERMANENT"
	ErrCodeNoToolCall        ErrorCode = "NO_TOOL_CALL"
	ErrCodeUnknownTool       ErrorCode = "UNKNOWN_TOOL"
	ErrCodeUnsupportedInMode ErrorCode = "UNSUPPORTED_IN_MODE"
	ErrCodeMaxStepsReached   ErrorCode = "MAX_STEPS_REACHED"
	ErrCodeTooManyFailures   ErrorCode = "TOO_MANY_CONSECUTIVE_FAILURES"
	ErrCodeStepAborted       ErrorCode = "STEP_ABORTED"
)

// StepResult reports one runStep invocation. Failures are structured values,
// never panics: Success=false with Error/ErrorType set.
type StepResult struct {
	Success   bool            `json:"success"`
	Step      int             `json:"step,omitempty"`
	Actions   []ActionOutcome `json:"actions,omitempty"`
	Completed bool            `json:"completed"`
	Summary   string          `json:"summary,omitempty"`
	Continue  bool            `json:"continue"`

	Error     string    `json:"error,omitempty"`
	ErrorType ErrorCode `json:"error_type,omitempty"`

	// Populated on a NO_TOOL_CALL failure so the caller can decide whether
	// to re-prompt.
	ThoughtSummary string `json:"thought_summary,omitempty"`
	TextResponse   string `json:"text_response,omitempty"`
}

// LoopResult reports a full runLoop invocation.
type LoopResult struct {
	Success    bool          `json:"success"`
	Completed  bool          `json:"completed"`
	Stopped    bool          `json:"stopped,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	TotalSteps int           `json:"total_steps"`
	Steps      []*StepResult `json:"steps,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorType  ErrorCode     `json:"error_type,omitempty"`
}

// SessionInfo is the externally visible snapshot of a session.
type SessionInfo struct {
	SessionID string      `json:"session_id"`
	Task      string      `json:"task"`
	Mode      SessionMode `json:"mode"`
	StepCount int         `json:"step_count"`
	Completed bool        `json:"completed"`
	Summary   string      `json:"summary,omitempty"`
	NoteCount int         `json:"note_count"`
}

// EventType classifies progress events on the per-session stream.
type EventType string

const (
	EventConnected  EventType = "connected"
	EventScreenshot EventType = "screenshot"
	EventAction     EventType = "action"
	EventNotes      EventType = "notes"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
	EventHeartbeat  EventType = "heartbeat"
)

// Event is a transient progress notification. Timestamp is epoch seconds.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp float64                `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
