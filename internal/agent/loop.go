// internal/agent/loop.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
)

const (
	minLoopSteps = 1
	maxLoopSteps = 100
)

// ClampMaxSteps bounds a requested step budget. Zero or negative falls back
// to the configured default before clamping.
func (o *Orchestrator) ClampMaxSteps(requested int) int {
	if requested <= 0 {
		requested = o.cfg.DefaultMaxSteps
	}
	if requested < minLoopSteps {
		return minLoopSteps
	}
	if requested > maxLoopSteps {
		return maxLoopSteps
	}
	return requested
}

// RunLoop drives a session step by step until the task completes, the step
// budget is spent, too many consecutive steps fail, or a stop is requested.
// A stop takes effect at the iteration boundary; the in-flight step finishes.
func (o *Orchestrator) RunLoop(ctx context.Context, sessionID, initialTask string, maxSteps int) *schemas.LoopResult {
	session, ok := o.sessions.get(sessionID)
	if !ok {
		return &schemas.LoopResult{
			Success:   false,
			Error:     fmt.Sprintf("session %s does not exist", sessionID),
			ErrorType: schemas.ErrCodeSessionNotFound,
		}
	}

	maxSteps = o.ClampMaxSteps(maxSteps)
	logger := o.logger.With(zap.String("session_id", sessionID), zap.Int("max_steps", maxSteps))

	session.stopRequested.Store(false)
	session.running.Store(true)
	defer session.running.Store(false)

	var steps []*schemas.StepResult
	consecutiveFailures := 0

	record := func(result *schemas.StepResult) {
		steps = append(steps, result)
		if result.Success {
			consecutiveFailures = 0
			return
		}
		consecutiveFailures++
		logger.Warn("Step failed.",
			zap.Int("step", len(steps)),
			zap.Int("consecutive_failures", consecutiveFailures),
			zap.Int("failure_cap", o.cfg.MaxConsecutiveFailures),
			zap.String("error", result.Error))
	}

	record(o.RunStep(ctx, sessionID, initialTask))

	for len(steps) < maxSteps {
		if session.stopRequested.Load() {
			logger.Info("Loop stopped by request.")
			return &schemas.LoopResult{
				Success:    true,
				Completed:  false,
				Stopped:    true,
				Summary:    "task stopped by request",
				TotalSteps: len(steps),
				Steps:      steps,
			}
		}
		if session.Completed() {
			break
		}
		if consecutiveFailures >= o.cfg.MaxConsecutiveFailures {
			break
		}
		if consecutiveFailures > 0 {
			if err := sleepCtx(ctx, o.cfg.FailureRetryDelay); err != nil {
				record(stepFailure(schemas.ErrCodeStepAborted, err.Error()))
				break
			}
		}
		last := steps[len(steps)-1]
		if last.Success && !last.Continue {
			break
		}

		record(o.RunStep(ctx, sessionID, ""))
	}

	if session.Completed() {
		summary := session.Summary()
		o.bus.PublishComplete(sessionID, summary, len(steps), session.Succeeded())
		return &schemas.LoopResult{
			Success:    true,
			Completed:  true,
			Summary:    summary,
			TotalSteps: len(steps),
			Steps:      steps,
		}
	}

	if consecutiveFailures >= o.cfg.MaxConsecutiveFailures {
		lastError := "unknown error"
		if len(steps) > 0 {
			lastError = steps[len(steps)-1].Error
		}
		message := fmt.Sprintf("%d consecutive step failures: %s", consecutiveFailures, lastError)
		logger.Error("Loop aborted after repeated failures.", zap.String("error", lastError))
		o.bus.PublishError(sessionID, schemas.ErrCodeTooManyFailures, message)
		return &schemas.LoopResult{
			Success:    false,
			Completed:  false,
			Error:      message,
			ErrorType:  schemas.ErrCodeTooManyFailures,
			TotalSteps: len(steps),
			Steps:      steps,
		}
	}

	if len(steps) >= maxSteps {
		message := fmt.Sprintf("reached the maximum of %d steps", maxSteps)
		o.bus.PublishError(sessionID, schemas.ErrCodeMaxStepsReached, message)
		return &schemas.LoopResult{
			Success:    false,
			Completed:  false,
			Error:      message,
			ErrorType:  schemas.ErrCodeMaxStepsReached,
			TotalSteps: len(steps),
			Steps:      steps,
		}
	}

	// A step ended the loop without completing the task (aborted context,
	// completed-session race). Report the last error we saw.
	message := "task ended without completing"
	if len(steps) > 0 && steps[len(steps)-1].Error != "" {
		message = steps[len(steps)-1].Error
	}
	o.bus.PublishError(sessionID, schemas.ErrCodeStepAborted, message)
	return &schemas.LoopResult{
		Success:    false,
		Completed:  false,
		Error:      message,
		ErrorType:  schemas.ErrCodeStepAborted,
		TotalSteps: len(steps),
		Steps:      steps,
	}
}
