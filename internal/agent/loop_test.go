// internal/agent/loop_test.go
package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/modelclient"
)

func TestClampMaxSteps(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)

	assert.Equal(t, 20, rig.orch.ClampMaxSteps(0), "zero falls back to the default")
	assert.Equal(t, 20, rig.orch.ClampMaxSteps(-5))
	assert.Equal(t, 1, rig.orch.ClampMaxSteps(1))
	assert.Equal(t, 5, rig.orch.ClampMaxSteps(5))
	assert.Equal(t, 100, rig.orch.ClampMaxSteps(100))
	assert.Equal(t, 100, rig.orch.ClampMaxSteps(500), "clamped to the hard cap")
}

func TestRunLoop_UnknownSession(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	result := rig.orch.RunLoop(context.Background(), "missing", "task", 5)
	require.False(t, result.Success)
	assert.Equal(t, schemas.ErrCodeSessionNotFound, result.ErrorType)
}

func TestRunLoop_CompletesOnSecondStep(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{
		{resp: callsResponse(t, schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "a"}})},
		{resp: callsResponse(t, completeCall("filled in the form"))},
	}

	result := rig.orch.RunLoop(context.Background(), "s", "task", 10)
	require.True(t, result.Success)
	assert.True(t, result.Completed)
	assert.Equal(t, "filled in the form", result.Summary, "summary is carried through verbatim")
	assert.Equal(t, 2, result.TotalSteps)
	require.Len(t, result.Steps, 2)
	assert.True(t, result.Steps[0].Success)
	assert.True(t, result.Steps[1].Completed)
}

func TestRunLoop_MaxStepsReached(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	// The model keeps acting and never completes.
	rig.model.queue = []stubReply{
		{resp: callsResponse(t, schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "x"}})},
	}

	result := rig.orch.RunLoop(context.Background(), "s", "task", 5)
	require.False(t, result.Success, "running out of steps is a failure, not an exception")
	assert.False(t, result.Completed)
	assert.Equal(t, schemas.ErrCodeMaxStepsReached, result.ErrorType)
	assert.Equal(t, 5, result.TotalSteps)
	assert.Len(t, result.Steps, 5)
}

func TestRunLoop_ConsecutiveFailureCap(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{
		{err: &modelclient.UpstreamError{StatusCode: 400, Transient: false}},
	}

	result := rig.orch.RunLoop(context.Background(), "s", "task", 20)
	require.False(t, result.Success)
	assert.Equal(t, schemas.ErrCodeTooManyFailures, result.ErrorType)
	assert.Equal(t, 3, result.TotalSteps, "the loop stops at the failure cap")
	assert.Contains(t, result.Error, "3 consecutive")
}

func TestRunLoop_FailureCounterResetsOnSuccess(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{
		{err: &modelclient.UpstreamError{StatusCode: 400, Transient: false}},
		{err: &modelclient.UpstreamError{StatusCode: 400, Transient: false}},
		{resp: callsResponse(t, schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "a"}})},
		{err: &modelclient.UpstreamError{StatusCode: 400, Transient: false}},
		{err: &modelclient.UpstreamError{StatusCode: 400, Transient: false}},
		{resp: callsResponse(t, completeCall("done"))},
	}

	result := rig.orch.RunLoop(context.Background(), "s", "task", 20)
	require.True(t, result.Success, "interleaved failures below the cap do not kill the loop")
	assert.True(t, result.Completed)
	assert.Equal(t, 6, result.TotalSteps)
}

func TestRunLoop_CooperativeStop(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)

	// Request the stop from inside the first step's model call so it lands
	// before the next iteration boundary.
	var once sync.Once
	rig.model.queue = []stubReply{
		{resp: callsResponse(t, schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "a"}})},
	}
	rig.actuator.executeFunc = func(schemas.ActionRequest) (schemas.ActionResult, error) {
		once.Do(func() {
			require.True(t, rig.orch.Stop("s"))
		})
		return schemas.OKResult("ok"), nil
	}

	result := rig.orch.RunLoop(context.Background(), "s", "task", 20)
	require.True(t, result.Success)
	assert.True(t, result.Stopped)
	assert.False(t, result.Completed)
	assert.Equal(t, 1, result.TotalSteps, "the in-flight step finishes, then the loop exits")
	assert.False(t, session.running.Load())
}

func TestRunLoop_StopWithoutRunningLoop(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	assert.False(t, rig.orch.Stop("s"), "stop on an idle session reports false")
	assert.False(t, rig.orch.Stop("missing"))
}

func TestRunLoop_PublishesCompleteEvent(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)
	sub := rig.bus.Subscribe("s")
	defer rig.bus.Unsubscribe(sub)

	rig.model.queue = []stubReply{{resp: callsResponse(t, completeCall("all set"))}}

	result := rig.orch.RunLoop(context.Background(), "s", "task", 5)
	require.True(t, result.Success)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		event, err := sub.Next(ctx)
		require.NoError(t, err)
		if event.Type == schemas.EventComplete {
			assert.Equal(t, "all set", event.Data["summary"])
			assert.Equal(t, 1, event.Data["total_steps"])
			assert.Equal(t, true, event.Data["success"])
			return
		}
	}
}

func TestRunLoop_FirstStepCarriesTheTask(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	session := rig.createSession(t, "s", schemas.ModeBrowser)
	rig.model.queue = []stubReply{
		{resp: callsResponse(t, schemas.ToolCall{Name: "keyboard_type", Args: map[string]interface{}{"text": "a"}})},
		{resp: callsResponse(t, completeCall("done"))},
	}

	result := rig.orch.RunLoop(context.Background(), "s", "find the docs", 10)
	require.True(t, result.Success)

	turns := session.History.Snapshot()
	require.NotEmpty(t, turns)
	assert.Contains(t, turns[0].Parts[0].Text, "find the docs")
	// The second user prompt is a continuation, not a restatement of the task.
	assert.Contains(t, turns[3].Parts[0].Text, "Continue the task")
}
