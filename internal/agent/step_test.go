// internal/agent/step_test.go
package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/modelclient"
)

func TestRunStep_UnknownSession(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	result := rig.orch.RunStep(context.Background(), "missing", "task")
	require.False(t, result.Success)
	assert.Equal(t, schemas.ErrCodeSessionNotFound, result.ErrorType)
}

func TestRunStep_CompletedSession(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)
	session.complete("already done", true)

	result := rig.orch.RunStep(context.Background(), "s", "")
	require.False(t, result.Success)
	assert.Equal(t, schemas.ErrCodeSessionCompleted, result.ErrorType)
	assert.Equal(t, "already done", result.Summary)
}

func TestRunStep_CaptureRetriesThenFails(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	rig.actuator.shots = []func() (*schemas.ScreenshotResult, error){
		failedShot("display gone"),
	}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.False(t, result.Success)
	assert.Equal(t, schemas.ErrCodeCaptureFailed, result.ErrorType)
	assert.Contains(t, result.Error, "display gone")
	assert.Equal(t, 3, rig.actuator.screenshotCalls(), "capture retries exactly to the attempt cap")
}

func TestRunStep_CaptureRecoversWithinBudget(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	rig.actuator.shots = []func() (*schemas.ScreenshotResult, error){
		failedShot("transient"),
		failedShot("transient"),
		okShot("https://example.com"),
	}
	rig.model.queue = []stubReply{{resp: callsResponse(t, completeCall("ok"))}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)
	assert.True(t, result.Completed)
}

func TestRunStep_ModelRetriesTransientOnly(t *testing.T) {
	t.Run("transient errors retry to the cap", func(t *testing.T) {
		rig := newTestRig(t, schemas.ModeBrowser)
		rig.createSession(t, "s", schemas.ModeBrowser)
		rig.model.queue = []stubReply{
			{err: &modelclient.UpstreamError{StatusCode: 503, Transient: true}},
		}

		result := rig.orch.RunStep(context.Background(), "s", "task")
		require.False(t, result.Success)
		assert.Equal(t, schemas.ErrCodeUpstreamTransient, result.ErrorType)
		assert.Equal(t, 3, rig.model.callCount())
	})

	t.Run("permanent errors fail immediately", func(t *testing.T) {
		rig := newTestRig(t, schemas.ModeBrowser)
		rig.createSession(t, "s", schemas.ModeBrowser)
		rig.model.queue = []stubReply{
			{err: &modelclient.UpstreamError{StatusCode: 400, Transient: false}},
		}

		result := rig.orch.RunStep(context.Background(), "s", "task")
		require.False(t, result.Success)
		assert.Equal(t, schemas.ErrCodeUpstreamPermanent, result.ErrorType)
		assert.Equal(t, 1, rig.model.callCount())
	})

	t.Run("recovers when a retry succeeds", func(t *testing.T) {
		rig := newTestRig(t, schemas.ModeBrowser)
		rig.createSession(t, "s", schemas.ModeBrowser)
		rig.model.queue = []stubReply{
			{err: &modelclient.UpstreamError{StatusCode: 503, Transient: true}},
			{resp: callsResponse(t, completeCall("ok"))},
		}

		result := rig.orch.RunStep(context.Background(), "s", "task")
		require.True(t, result.Success)
		assert.Equal(t, 2, rig.model.callCount())
	})
}

func TestRunStep_NoToolCall(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{{resp: textResponse("I am not sure what to do.")}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.False(t, result.Success)
	assert.Equal(t, schemas.ErrCodeNoToolCall, result.ErrorType)
	assert.Equal(t, "I am not sure what to do.", result.TextResponse)
	assert.Equal(t, "thinking", result.ThoughtSummary)

	// The model turn still lands in history so the dialogue stays coherent.
	turns := session.History.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, schemas.RoleModel, turns[1].Role)
}

func TestRunStep_DispatchInOrder(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{{resp: callsResponse(t,
		schemas.ToolCall{Name: "mouse_click", Args: map[string]interface{}{"x": 500.0, "y": 500.0, "button": "left"}},
		schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "hello"}},
		schemas.ToolCall{Name: "keyboard_press", Args: map[string]interface{}{"keys": []interface{}{"enter"}}},
	)}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)
	assert.False(t, result.Completed)
	assert.True(t, result.Continue)
	assert.Equal(t, 1, result.Step)

	actions := rig.actuator.executedActions()
	require.Len(t, actions, 3)
	assert.Equal(t, "mouse_click", actions[0].Type)
	assert.Equal(t, "keyboard_type", actions[1].Type)
	assert.Equal(t, "keyboard_press", actions[2].Type)

	require.Len(t, result.Actions, 3)
	assert.Equal(t, "mouse_click", result.Actions[0].Tool)
}

func TestRunStep_DenormalizesBeforeDispatch(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{{resp: callsResponse(t,
		schemas.ToolCall{Name: "mouse_click", Args: map[string]interface{}{"x": 500.0, "y": 1000.0, "button": "left"}},
	)}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)

	actions := rig.actuator.executedActions()
	require.Len(t, actions, 1)
	assert.Equal(t, 640, actions[0].Params["x"])
	assert.Equal(t, 720, actions[0].Params["y"])
}

func TestRunStep_TaskComplete(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{{resp: callsResponse(t, completeCall("booked the flight"))}}

	before := rig.actuator.screenshotCalls()
	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)
	assert.True(t, result.Completed)
	assert.False(t, result.Continue)
	assert.Equal(t, "booked the flight", result.Summary)
	assert.True(t, session.Completed())

	// Terminal steps skip the settle re-capture and the function-response turn.
	assert.Equal(t, before+1, rig.actuator.screenshotCalls())
	turns := session.History.Snapshot()
	require.Len(t, turns, 2, "no function-response turn after completion")
}

func TestRunStep_CallsAfterTaskCompleteStillRun(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{{resp: callsResponse(t,
		completeCall("done early"),
		schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "bye"}},
	)}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)
	assert.True(t, result.Completed)
	assert.True(t, session.Completed())

	require.Len(t, result.Actions, 2)
	assert.True(t, result.Actions[0].Result.Succeeded())
	assert.True(t, result.Actions[1].Result.Succeeded(), "calls after the terminal one still execute")

	actions := rig.actuator.executedActions()
	require.Len(t, actions, 1, "only the terminal call bypasses the actuator")
	assert.Equal(t, "keyboard_type", actions[0].Type)
}

func TestRunStep_UnknownToolContinuesBatch(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{{resp: callsResponse(t,
		schemas.ToolCall{Name: "teleport", Args: map[string]interface{}{}},
		schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "hi"}},
	)}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success, "a per-call failure does not fail the step")

	require.Len(t, result.Actions, 2)
	assert.False(t, result.Actions[0].Result.Succeeded())
	assert.Contains(t, result.Actions[0].Result["message"], "unknown tool")
	assert.Equal(t, string(schemas.ErrCodeUnknownTool), result.Actions[0].Result["error_type"])
	assert.True(t, result.Actions[1].Result.Succeeded())
	require.Len(t, rig.actuator.executedActions(), 1, "the unknown call never reaches the actuator")
}

func TestRunStep_BrowserToolOutsideBrowserMode(t *testing.T) {
	rig := newTestRig(t, schemas.ModeDesktop)
	rig.createSession(t, "s", schemas.ModeDesktop)
	rig.model.queue = []stubReply{{resp: callsResponse(t,
		schemas.ToolCall{Name: "navigate", Args: map[string]interface{}{"url": "https://example.com"}},
	)}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)
	require.Len(t, result.Actions, 1)
	assert.False(t, result.Actions[0].Result.Succeeded())
	assert.Contains(t, result.Actions[0].Result["message"], "browser mode")
	assert.Equal(t, string(schemas.ErrCodeUnsupportedInMode), result.Actions[0].Result["error_type"])
	assert.Empty(t, rig.actuator.executedActions())
}

func TestRunStep_NoteTools(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{
		{resp: callsResponse(t,
			schemas.ToolCall{Name: "add_note", Args: map[string]interface{}{"content": "found login form", "category": "important"}},
			schemas.ToolCall{Name: "list_notes", Args: map[string]interface{}{}},
		)},
		{resp: callsResponse(t,
			schemas.ToolCall{Name: "clear_notes", Args: map[string]interface{}{"confirm": false}},
		)},
		{resp: callsResponse(t,
			schemas.ToolCall{Name: "clear_notes", Args: map[string]interface{}{"confirm": true}},
		)},
	}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Actions[0].Result["note_count"])
	assert.Equal(t, 1, result.Actions[1].Result["total_count"])
	assert.Equal(t, 1, session.notes.Count())

	result = rig.orch.RunStep(context.Background(), "s", "")
	require.True(t, result.Success)
	assert.False(t, result.Actions[0].Result.Succeeded(), "clear without confirm is refused")
	assert.Equal(t, 1, session.notes.Count())

	result = rig.orch.RunStep(context.Background(), "s", "")
	require.True(t, result.Success)
	assert.True(t, result.Actions[0].Result.Succeeded())
	assert.Zero(t, session.notes.Count())
}

func TestRunStep_FunctionResponsesShareOneTurn(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{{resp: callsResponse(t,
		schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "a"}},
		schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "b"}},
	)}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)

	turns := session.History.Snapshot()
	require.Len(t, turns, 3) // user prompt, model turn, function responses
	last := turns[2]
	assert.Equal(t, schemas.RoleUser, last.Role)
	require.Len(t, last.Parts, 3) // two responses plus the fresh screenshot
	assert.Equal(t, "keyboard_type", last.Parts[0].FunctionResponse.Name)
	assert.Equal(t, "keyboard_type", last.Parts[1].FunctionResponse.Name)
	assert.NotNil(t, last.Parts[2].InlineData)
}

func TestRunStep_SettleFallsBackToPriorScreenshot(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)
	rig.actuator.shots = []func() (*schemas.ScreenshotResult, error){
		okShot("https://example.com"),
		failedShot("page crashed"), // settle re-capture fails
	}
	rig.model.queue = []stubReply{{resp: callsResponse(t,
		schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "a"}},
	)}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success, "a failed settle capture never fails the step")

	turns := session.History.Snapshot()
	last := turns[len(turns)-1]
	assert.Equal(t, "c2hvdA==", last.Parts[len(last.Parts)-1].InlineData.Data,
		"the prior screenshot bytes are reused")
}

func TestRunStep_StrictSignatures(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.orch.cfg.StrictSignatures = true
	session := rig.createSession(t, "s", schemas.ModeBrowser)

	// Seed a signature violation: a model call turn with no signature after
	// the text anchor we are about to add.
	session.History.AppendUser(schemas.TextPart("earlier"))
	session.History.AppendModelTurnVerbatim(schemas.Turn{
		Role:  schemas.RoleModel,
		Parts: []schemas.Part{{FunctionCall: &schemas.FunctionCall{Name: "mouse_click"}}},
	})

	result := rig.orch.RunStep(context.Background(), "s", "")
	require.False(t, result.Success)
	assert.Equal(t, schemas.ErrCodeSignatureInvalid, result.ErrorType)
	assert.Zero(t, rig.model.callCount(), "strict mode blocks the upstream call")
}

func TestRunStep_PublishesEvents(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	sub := rig.bus.Subscribe("s")
	defer rig.bus.Unsubscribe(sub)

	rig.model.queue = []stubReply{{resp: callsResponse(t,
		schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "a"}},
	)}}

	result := rig.orch.RunStep(context.Background(), "s", "task")
	require.True(t, result.Success)

	var events []schemas.Event
	for {
		event, err := sub.Next(contextWithShortTimeout(t))
		if err != nil || event.Type == schemas.EventHeartbeat {
			break
		}
		events = append(events, event)
		if len(events) == 3 {
			break
		}
	}
	require.Len(t, events, 3)

	assert.Equal(t, schemas.EventScreenshot, events[0].Type)
	assert.Equal(t, 1280, events[0].Data["width"])
	assert.Equal(t, 720, events[0].Data["height"])
	assert.NotContains(t, events[0].Data, "action", "the initial capture precedes any action")

	assert.Equal(t, schemas.EventAction, events[1].Type)

	assert.Equal(t, schemas.EventScreenshot, events[2].Type)
	assert.Equal(t, "keyboard_type", events[2].Data["action"],
		"the settle capture is tagged with the last executed action")
}

func contextWithShortTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}
