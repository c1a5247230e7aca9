// internal/actuator/browser/actions_test.go
package browser

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/operant/api/schemas"
)

func TestBuildInputTask(t *testing.T) {
	t.Run("click with pixel coordinates", func(t *testing.T) {
		task, desc, err := buildInputTask(schemas.ActionRequest{
			Type:   "mouse_click",
			Params: map[string]interface{}{"x": 640, "y": 360, "button": "left"},
		})
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Contains(t, desc, "clicked left at (640, 360)")
	})

	t.Run("click rejects missing coordinates", func(t *testing.T) {
		_, _, err := buildInputTask(schemas.ActionRequest{
			Type:   "mouse_click",
			Params: map[string]interface{}{"x": 640},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "y")
	})

	t.Run("double click", func(t *testing.T) {
		task, desc, err := buildInputTask(schemas.ActionRequest{
			Type:   "mouse_double_click",
			Params: map[string]interface{}{"x": 10, "y": 20},
		})
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Contains(t, desc, "double-clicked")
	})

	t.Run("drag needs both endpoints", func(t *testing.T) {
		_, _, err := buildInputTask(schemas.ActionRequest{
			Type:   "mouse_drag",
			Params: map[string]interface{}{"start_x": 1, "start_y": 2, "end_x": 3},
		})
		require.Error(t, err)
	})

	t.Run("type accepts float64 params from raw json", func(t *testing.T) {
		task, _, err := buildInputTask(schemas.ActionRequest{
			Type:   "mouse_scroll",
			Params: map[string]interface{}{"scroll_x": 0.0, "scroll_y": 300.0},
		})
		require.NoError(t, err)
		require.NotNil(t, task)
	})

	t.Run("keyboard press chord", func(t *testing.T) {
		task, desc, err := buildInputTask(schemas.ActionRequest{
			Type:   "keyboard_press",
			Params: map[string]interface{}{"keys": []interface{}{"ctrl", "c"}},
		})
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Equal(t, "pressed ctrl+c", desc)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, _, err := buildInputTask(schemas.ActionRequest{Type: "levitate"})
		require.Error(t, err)
	})
}

func TestPressTask(t *testing.T) {
	t.Run("single key", func(t *testing.T) {
		task, err := pressTask([]string{"enter"})
		require.NoError(t, err)
		assert.NotNil(t, task)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := pressTask(nil)
		require.Error(t, err)
	})

	t.Run("rejects unknown modifier", func(t *testing.T) {
		_, err := pressTask([]string{"hyper", "x"})
		require.Error(t, err)
	})

	t.Run("rejects modifier as the final key", func(t *testing.T) {
		_, err := pressTask([]string{"ctrl", "shift"})
		require.Error(t, err)
	})
}

func TestKeyByName(t *testing.T) {
	for name, want := range map[string]string{
		"enter": "\r",
		"tab":   "\t",
		"space": " ",
		"a":     "a",
		"A":     "A",
	} {
		got, err := keyByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := keyByName("bogus_key")
	require.Error(t, err)
}

func TestButtonParam(t *testing.T) {
	assert.Equal(t, input.Left, buttonParam(map[string]interface{}{"button": "left"}))
	assert.Equal(t, input.Middle, buttonParam(map[string]interface{}{"button": "middle"}))
	assert.Equal(t, input.Right, buttonParam(map[string]interface{}{"button": "right"}))
	assert.Equal(t, input.Left, buttonParam(map[string]interface{}{}), "defaults to left")
}

func TestIntParam(t *testing.T) {
	params := map[string]interface{}{"i": 5, "f": 7.0, "s": "nope"}

	v, err := intParam(params, "i")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = intParam(params, "f")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = intParam(params, "s")
	require.Error(t, err)
	_, err = intParam(params, "missing")
	require.Error(t, err)

	v, err = intParamOr(params, "missing", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestKeyListParam(t *testing.T) {
	keys, err := keyListParam(map[string]interface{}{"keys": []interface{}{"ctrl", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ctrl", "c"}, keys)

	_, err = keyListParam(map[string]interface{}{"keys": []interface{}{}})
	require.Error(t, err)
	_, err = keyListParam(map[string]interface{}{})
	require.Error(t, err)
	_, err = keyListParam(map[string]interface{}{"keys": []interface{}{1, 2}})
	require.Error(t, err)
}
