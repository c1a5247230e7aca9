// internal/agent/step.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/modelclient"
)

// RunStep executes one perceive-decide-act cycle: capture, prompt, model
// call, tool dispatch, settle. userMessage carries the task on the first step
// of a session and is empty afterwards. Failures come back as structured
// results, never as panics.
func (o *Orchestrator) RunStep(ctx context.Context, sessionID, userMessage string) *schemas.StepResult {
	session, ok := o.sessions.get(sessionID)
	if !ok {
		return stepFailure(schemas.ErrCodeSessionNotFound, fmt.Sprintf("session %s does not exist", sessionID))
	}
	if session.Completed() {
		result := stepFailure(schemas.ErrCodeSessionCompleted, "task already completed")
		result.Summary = session.Summary()
		return result
	}
	actuator, ok := o.actuatorFor(session)
	if !ok {
		return stepFailure(schemas.ErrCodeActuatorUnbound,
			fmt.Sprintf("no actuator bound for mode %q", session.Mode))
	}

	logger := o.logger.With(zap.String("session_id", sessionID), zap.Int("step", session.StepCount()+1))

	// 1. Capture the current state.
	shot, err := o.captureWithRetry(ctx, actuator, logger)
	if err != nil {
		o.bus.PublishError(sessionID, schemas.ErrCodeCaptureFailed, err.Error())
		return stepFailure(schemas.ErrCodeCaptureFailed,
			fmt.Sprintf("screenshot failed after %d attempts: %v", o.cfg.CaptureAttempts, err))
	}
	session.setLastScreenshot(shot.Screenshot)
	o.bus.PublishScreenshot(sessionID, session.StepCount()+1, shot, "")

	// 2. Build the prompt and extend the history.
	var prompt string
	if userMessage != "" {
		prompt = buildInitialPrompt(session, userMessage, shot)
	} else {
		prompt = buildContinuePrompt(session, shot, o.cfg.RecentNotes)
	}
	session.History.AppendUser(
		schemas.TextPart(prompt),
		schemas.ImagePart(stripDataURI(shot.Screenshot), "image/png"),
	)

	if err := session.History.Validate(); err != nil {
		if o.cfg.StrictSignatures {
			return stepFailure(schemas.ErrCodeSignatureInvalid, err.Error())
		}
		logger.Warn("History signature check failed; the upstream may reject this request.", zap.Error(err))
	}

	// 3. Call the model.
	logger.Info("Calling model.")
	resp, err := o.generateWithRetry(ctx, session)
	if err != nil {
		code := schemas.ErrCodeUpstreamPermanent
		if modelclient.IsTransient(err) {
			code = schemas.ErrCodeUpstreamTransient
		}
		o.bus.PublishError(sessionID, code, err.Error())
		return stepFailure(code, err.Error())
	}

	// The model turn goes into history exactly as received, signatures and
	// all, before anything else can fail.
	if turn := resp.FirstModelTurn(); turn != nil {
		session.History.AppendModelTurnVerbatim(*turn)
	}

	calls := resp.FunctionCalls()
	if len(calls) == 0 {
		logger.Warn("Model returned no function calls.")
		result := stepFailure(schemas.ErrCodeNoToolCall, "model returned no function calls")
		result.ThoughtSummary = resp.ThoughtSummary()
		result.TextResponse = resp.Text()
		return result
	}

	// 4. Dispatch the calls in order. Individual failures are reported back
	// to the model as results; they do not abort the batch, and a terminal
	// call does not stop its siblings from running.
	outcomes := make([]schemas.ActionOutcome, 0, len(calls))
	completed := false
	for _, call := range calls {
		result := o.dispatch(ctx, session, actuator, call, logger)
		if kindOf(call.Name) == KindTerminal {
			completed = true
		}
		outcomes = append(outcomes, schemas.ActionOutcome{Tool: call.Name, Result: result})
		o.bus.PublishAction(sessionID, session.StepCount()+1, call.Name, result)
	}

	// 5. Settle and report the results back into the history.
	if !completed {
		if err := sleepCtx(ctx, o.cfg.SettleDelay); err != nil {
			return stepFailure(schemas.ErrCodeStepAborted, err.Error())
		}
		o.settle(ctx, session, actuator, shot, outcomes, logger)
	}

	step := session.incrementStep()
	result := &schemas.StepResult{
		Success:   true,
		Step:      step,
		Actions:   outcomes,
		Completed: completed,
		Continue:  !completed,
	}
	if completed {
		result.Summary = session.Summary()
	}
	return result
}

// captureWithRetry takes a screenshot, retrying on failure with a fixed
// delay. Both transport errors and unsuccessful results count as failures.
func (o *Orchestrator) captureWithRetry(ctx context.Context, actuator schemas.Actuator, logger *zap.Logger) (*schemas.ScreenshotResult, error) {
	var shot *schemas.ScreenshotResult
	attempt := 0

	op := func() error {
		attempt++
		s, err := actuator.TakeScreenshot(ctx)
		if err != nil {
			logger.Warn("Screenshot attempt failed.",
				zap.Int("attempt", attempt), zap.Int("max_attempts", o.cfg.CaptureAttempts), zap.Error(err))
			return err
		}
		if s == nil || !s.Success {
			msg := "empty screenshot result"
			if s != nil && s.Error != "" {
				msg = s.Error
			}
			logger.Warn("Screenshot attempt unsuccessful.",
				zap.Int("attempt", attempt), zap.Int("max_attempts", o.cfg.CaptureAttempts), zap.String("error", msg))
			return fmt.Errorf("%s", msg)
		}
		shot = s
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.cfg.CaptureRetryDelay), uint64(o.cfg.CaptureAttempts-1)),
		ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return shot, nil
}

// generateWithRetry calls the model, retrying only transient upstream
// failures with a fixed delay. Permanent failures surface immediately.
func (o *Orchestrator) generateWithRetry(ctx context.Context, session *Session) (*schemas.ModelResponse, error) {
	req := schemas.GenerateRequest{
		History:         session.History.Snapshot(),
		Tools:           Declarations(),
		Temperature:     o.temperature,
		ThinkingLevel:   o.thinkingLevel,
		IncludeThoughts: o.includeThoughts,
	}

	var resp *schemas.ModelResponse
	attempt := 0
	op := func() error {
		attempt++
		r, err := o.model.Generate(ctx, req)
		if err != nil {
			if modelclient.IsTransient(err) {
				o.logger.Warn("Model call failed, will retry if attempts remain.",
					zap.Int("attempt", attempt), zap.Int("max_attempts", o.cfg.ModelAttempts), zap.Error(err))
				return err
			}
			o.logger.Error("Model call failed permanently.", zap.Error(err))
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.cfg.ModelRetryDelay), uint64(o.cfg.ModelAttempts-1)),
		ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

// dispatch routes one tool call by kind and returns its result.
func (o *Orchestrator) dispatch(ctx context.Context, session *Session, actuator schemas.Actuator, call schemas.ToolCall, logger *zap.Logger) schemas.ActionResult {
	logger.Info("Executing tool.", zap.String("tool", call.Name))

	switch kindOf(call.Name) {
	case KindTerminal:
		summary, _ := call.Args["summary"].(string)
		if summary == "" {
			summary = "task completed"
		}
		success := true
		if v, ok := call.Args["success"].(bool); ok {
			success = v
		}
		session.complete(summary, success)
		return schemas.ActionResult{"status": "completed", "summary": summary, "success": success}

	case KindActuator:
		denormalizeArgs(call.Name, call.Args, session.ScreenWidth, session.ScreenHeight)
		return o.execute(ctx, actuator, call)

	case KindBrowser:
		if session.Mode != schemas.ModeBrowser {
			return schemas.FailedResultCode(schemas.ErrCodeUnsupportedInMode,
				fmt.Sprintf("tool %s is only available in browser mode", call.Name))
		}
		return o.execute(ctx, actuator, call)

	case KindNotes:
		result := session.handleNoteTool(call.Name, call.Args)
		if result.Succeeded() {
			o.bus.PublishNotes(session.ID, call.Name, session.notes.List(""))
		}
		return result

	case KindWait:
		return o.waitTool(ctx, call.Args)
	}

	logger.Warn("Unknown tool requested.", zap.String("tool", call.Name))
	return schemas.FailedResultCode(schemas.ErrCodeUnknownTool, fmt.Sprintf("unknown tool: %s", call.Name))
}

func (o *Orchestrator) execute(ctx context.Context, actuator schemas.Actuator, call schemas.ToolCall) schemas.ActionResult {
	result, err := actuator.ExecuteAction(ctx, schemas.ActionRequest{Type: call.Name, Params: call.Args})
	if err != nil {
		return schemas.FailedResult(err.Error())
	}
	if result == nil {
		return schemas.FailedResult("actuator returned no result")
	}
	return result
}

// waitTool pauses the step for the requested number of seconds, clamped to
// the 1-30 range the declaration documents.
func (o *Orchestrator) waitTool(ctx context.Context, args map[string]interface{}) schemas.ActionResult {
	seconds := 1.0
	if v, ok := args["seconds"].(float64); ok {
		seconds = v
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds > 30 {
		seconds = 30
	}
	if err := sleepCtx(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
		return schemas.FailedResult(err.Error())
	}
	return schemas.ActionResult{
		"status":  "success",
		"message": fmt.Sprintf("waited %.0f seconds", seconds),
		"seconds": seconds,
	}
}

// settle captures the post-action state and appends the tool results plus the
// fresh screenshot to the history as a single user turn. A failed re-capture
// falls back to the pre-action screenshot; the step never fails here.
func (o *Orchestrator) settle(ctx context.Context, session *Session, actuator schemas.Actuator, before *schemas.ScreenshotResult, outcomes []schemas.ActionOutcome, logger *zap.Logger) {
	screenshotData := before.Screenshot
	currentURL := before.URL
	lastAction := ""
	if len(outcomes) > 0 {
		lastAction = outcomes[len(outcomes)-1].Tool
	}

	after, err := actuator.TakeScreenshot(ctx)
	if err == nil && after != nil && after.Success {
		screenshotData = after.Screenshot
		if after.URL != "" {
			currentURL = after.URL
		}
		session.setLastScreenshot(after.Screenshot)
		o.bus.PublishScreenshot(session.ID, session.StepCount()+1, after, lastAction)
	} else {
		logger.Warn("Post-action screenshot failed; reusing the previous capture.", zap.Error(err))
	}

	responses := make([]schemas.FunctionResponse, 0, len(outcomes))
	for _, outcome := range outcomes {
		payload := make(map[string]interface{}, len(outcome.Result)+1)
		payload["url"] = currentURL
		for k, v := range outcome.Result {
			payload[k] = v
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			logger.Warn("Failed to encode tool result.", zap.String("tool", outcome.Tool), zap.Error(err))
			encoded = []byte(`{"status":"error","message":"result encoding failed"}`)
		}
		responses = append(responses, schemas.FunctionResponse{Name: outcome.Tool, Response: encoded})
	}

	session.History.AppendFunctionResponses(responses,
		schemas.ImagePart(stripDataURI(screenshotData), "image/png"))
}

func stepFailure(code schemas.ErrorCode, message string) *schemas.StepResult {
	return &schemas.StepResult{Success: false, Error: message, ErrorType: code}
}

// stripDataURI removes a data URI prefix, leaving bare base64.
func stripDataURI(data string) string {
	if idx := strings.IndexByte(data, ','); idx >= 0 {
		return data[idx+1:]
	}
	return data
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
