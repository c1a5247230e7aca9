// api/schemas/interfaces.go
package schemas

import "context"

// Actuator is the port over a concrete backend (browser, desktop, background
// window) that turns action requests into real side effects and produces
// observations. Implementations live outside the orchestration core.
type Actuator interface {
	// TakeScreenshot captures the current visual state. A failed capture is
	// reported either through the result's Success/Error fields or an error;
	// callers must tolerate both.
	TakeScreenshot(ctx context.Context) (*ScreenshotResult, error)

	// ExecuteAction performs one action. The returned result is an open map
	// so backends can echo parameters back to the model.
	ExecuteAction(ctx context.Context, action ActionRequest) (ActionResult, error)
}

// GenerateRequest carries everything one generateContent call needs. History
// is replayed exactly as stored, including opaque thought signatures.
type GenerateRequest struct {
	History           []Turn
	Tools             []ToolDeclaration
	Temperature       float64
	ThinkingLevel     string
	IncludeThoughts   bool
	SystemInstruction string
}

// ModelClient is the request/response mapper to the remote reasoning model.
// Implementations classify upstream failures as transient (overloaded,
// unavailable) or permanent so the caller can apply retry policy; they never
// retry internally.
type ModelClient interface {
	Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error)
}
