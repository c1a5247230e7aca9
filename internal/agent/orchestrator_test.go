// internal/agent/orchestrator_test.go
package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/operant/api/schemas"
)

func TestCreateSession(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)

	t.Run("valid", func(t *testing.T) {
		session, err := rig.orch.CreateSession("s1", "do things", schemas.ModeBrowser, 1920, 1080)
		require.NoError(t, err)
		assert.Equal(t, 1920, session.ScreenWidth)
		assert.Equal(t, 1080, session.ScreenHeight)

		info, ok := rig.orch.Info("s1")
		require.True(t, ok)
		assert.Equal(t, "do things", info.Task)
		assert.Zero(t, info.StepCount)
		assert.False(t, info.Completed)
	})

	t.Run("defaults screen dimensions", func(t *testing.T) {
		session, err := rig.orch.CreateSession("s2", "task", schemas.ModeBrowser, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1280, session.ScreenWidth)
		assert.Equal(t, 720, session.ScreenHeight)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		_, err := rig.orch.CreateSession("", "task", schemas.ModeBrowser, 0, 0)
		assert.Error(t, err)
		_, err = rig.orch.CreateSession("s", "", schemas.ModeBrowser, 0, 0)
		assert.Error(t, err)
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		_, err := rig.orch.CreateSession("s", "task", "vr", 0, 0)
		assert.Error(t, err)
	})

	t.Run("rejects unbound mode", func(t *testing.T) {
		_, err := rig.orch.CreateSession("s", "task", schemas.ModeDesktop, 0, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no actuator bound")
	})

	t.Run("replaces an existing session", func(t *testing.T) {
		first, err := rig.orch.CreateSession("dup", "first", schemas.ModeBrowser, 0, 0)
		require.NoError(t, err)
		first.History.AppendUser(schemas.TextPart("old history"))

		second, err := rig.orch.CreateSession("dup", "second", schemas.ModeBrowser, 0, 0)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.Zero(t, second.History.Len(), "the replacement starts clean")

		info, _ := rig.orch.Info("dup")
		assert.Equal(t, "second", info.Task)
	})
}

func TestClear(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "s", schemas.ModeBrowser)

	assert.True(t, rig.orch.Clear("s"))
	_, ok := rig.orch.Info("s")
	assert.False(t, ok)
	assert.False(t, rig.orch.Clear("s"), "clearing twice reports false")
}

func TestInfos(t *testing.T) {
	rig := newTestRig(t, schemas.ModeBrowser)
	rig.createSession(t, "b", schemas.ModeBrowser)
	rig.createSession(t, "a", schemas.ModeBrowser)

	infos := rig.orch.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].SessionID, "sorted by id")
	assert.Equal(t, "b", infos[1].SessionID)
}
