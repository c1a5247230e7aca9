// internal/actuator/browser/actions.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/xkilldash9x/operant/api/schemas"
)

// buildInputTask turns one pointer or keyboard action into a chromedp task
// and a human-readable description. Coordinates arrive already denormalized
// to pixels.
func buildInputTask(action schemas.ActionRequest) (chromedp.Action, string, error) {
	p := action.Params
	switch action.Type {
	case "mouse_click":
		x, y, err := pointParams(p, "x", "y")
		if err != nil {
			return nil, "", err
		}
		button := buttonParam(p)
		holdMs, _ := intParamOr(p, "duration", 0)
		return clickTask(x, y, button, 1, time.Duration(holdMs)*time.Millisecond),
			fmt.Sprintf("clicked %s at (%d, %d)", button, x, y), nil

	case "mouse_double_click":
		x, y, err := pointParams(p, "x", "y")
		if err != nil {
			return nil, "", err
		}
		button := buttonParam(p)
		return clickTask(x, y, button, 2, 0),
			fmt.Sprintf("double-clicked %s at (%d, %d)", button, x, y), nil

	case "mouse_hover":
		x, y, err := pointParams(p, "x", "y")
		if err != nil {
			return nil, "", err
		}
		return mouseEvent(input.MouseMoved, x, y, input.None, 0),
			fmt.Sprintf("hovering at (%d, %d)", x, y), nil

	case "mouse_drag":
		sx, sy, err := pointParams(p, "start_x", "start_y")
		if err != nil {
			return nil, "", err
		}
		ex, ey, err := pointParams(p, "end_x", "end_y")
		if err != nil {
			return nil, "", err
		}
		button := buttonParam(p)
		return dragTask(sx, sy, ex, ey, button),
			fmt.Sprintf("dragged from (%d, %d) to (%d, %d)", sx, sy, ex, ey), nil

	case "mouse_scroll":
		dx, err := intParam(p, "scroll_x")
		if err != nil {
			return nil, "", err
		}
		dy, err := intParam(p, "scroll_y")
		if err != nil {
			return nil, "", err
		}
		return scrollTask(dx, dy), fmt.Sprintf("scrolled by (%d, %d)", dx, dy), nil

	case "keyboard_type":
		text, err := strParam(p, "text")
		if err != nil {
			return nil, "", err
		}
		clear, _ := p["clear_existing"].(bool)
		return typeTask(text, clear), fmt.Sprintf("typed %d characters", len(text)), nil

	case "keyboard_press":
		keys, err := keyListParam(p)
		if err != nil {
			return nil, "", err
		}
		task, err := pressTask(keys)
		if err != nil {
			return nil, "", err
		}
		return task, "pressed " + strings.Join(keys, "+"), nil

	case "clear_text":
		return clearTextTask(), "cleared text", nil

	case "click_and_type":
		x, y, err := pointParams(p, "x", "y")
		if err != nil {
			return nil, "", err
		}
		text, _ := p["text"].(string)
		clear := true
		if v, ok := p["clear_existing"].(bool); ok {
			clear = v
		}
		tasks := chromedp.Tasks{
			clickTask(x, y, input.Left, 1, 0),
			chromedp.Sleep(100 * time.Millisecond),
		}
		if clear {
			tasks = append(tasks, clearTextTask())
		}
		if text != "" {
			tasks = append(tasks, insertTextTask(text))
		}
		return tasks, fmt.Sprintf("clicked (%d, %d) and typed %d characters", x, y, len(text)), nil
	}
	return nil, "", fmt.Errorf("unsupported input action: %s", action.Type)
}

func mouseEvent(eventType input.MouseType, x, y int, button input.MouseButton, clickCount int64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ev := input.DispatchMouseEvent(eventType, float64(x), float64(y)).
			WithButton(button)
		if clickCount > 0 {
			ev = ev.WithClickCount(clickCount)
		}
		return ev.Do(ctx)
	})
}

func clickTask(x, y int, button input.MouseButton, clickCount int64, hold time.Duration) chromedp.Action {
	tasks := chromedp.Tasks{
		mouseEvent(input.MouseMoved, x, y, input.None, 0),
		mouseEvent(input.MousePressed, x, y, button, clickCount),
	}
	if hold > 0 {
		tasks = append(tasks, chromedp.Sleep(hold))
	}
	tasks = append(tasks, mouseEvent(input.MouseReleased, x, y, button, clickCount))
	return tasks
}

func dragTask(sx, sy, ex, ey int, button input.MouseButton) chromedp.Action {
	// A midpoint move makes the drag register in pages that track movement.
	mx, my := (sx+ex)/2, (sy+ey)/2
	return chromedp.Tasks{
		mouseEvent(input.MouseMoved, sx, sy, input.None, 0),
		mouseEvent(input.MousePressed, sx, sy, button, 1),
		chromedp.Sleep(50 * time.Millisecond),
		mouseEvent(input.MouseMoved, mx, my, button, 0),
		mouseEvent(input.MouseMoved, ex, ey, button, 0),
		chromedp.Sleep(50 * time.Millisecond),
		mouseEvent(input.MouseReleased, ex, ey, button, 1),
	}
}

func scrollTask(dx, dy int) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, 0, 0).
			WithDeltaX(float64(dx)).
			WithDeltaY(float64(dy)).
			Do(ctx)
	})
}

func insertTextTask(text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	})
}

func typeTask(text string, clearExisting bool) chromedp.Action {
	tasks := chromedp.Tasks{}
	if clearExisting {
		tasks = append(tasks, clearTextTask())
	}
	return append(tasks, insertTextTask(text))
}

func clearTextTask() chromedp.Action {
	return chromedp.Tasks{
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Delete),
	}
}

// pressTask builds a key chord: all leading names must be modifiers except
// the final key, which is sent with the accumulated modifier mask. A chord
// of only modifiers presses the last one as a key.
func pressTask(keys []string) (chromedp.Action, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keys must not be empty")
	}

	var mods input.Modifier
	for _, name := range keys[:len(keys)-1] {
		mod, ok := modifierByName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown modifier key %q", name)
		}
		mods |= mod
	}

	key, err := keyByName(keys[len(keys)-1])
	if err != nil {
		return nil, err
	}
	return chromedp.KeyEvent(key, chromedp.KeyModifiers(mods)), nil
}

var modifierByName = map[string]input.Modifier{
	"ctrl":    input.ModifierCtrl,
	"control": input.ModifierCtrl,
	"shift":   input.ModifierShift,
	"alt":     input.ModifierAlt,
	"win":     input.ModifierMeta,
	"meta":    input.ModifierMeta,
	"cmd":     input.ModifierMeta,
}

var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"return":    kb.Enter,
	"esc":       kb.Escape,
	"escape":    kb.Escape,
	"tab":       kb.Tab,
	"space":     " ",
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"up":        kb.ArrowUp,
	"down":      kb.ArrowDown,
	"left":      kb.ArrowLeft,
	"right":     kb.ArrowRight,
	"home":      kb.Home,
	"end":       kb.End,
	"pageup":    kb.PageUp,
	"pagedown":  kb.PageDown,
	"insert":    kb.Insert,
	"f1":        kb.F1,
	"f2":        kb.F2,
	"f3":        kb.F3,
	"f4":        kb.F4,
	"f5":        kb.F5,
	"f6":        kb.F6,
	"f7":        kb.F7,
	"f8":        kb.F8,
	"f9":        kb.F9,
	"f10":       kb.F10,
	"f11":       kb.F11,
	"f12":       kb.F12,
}

// keyByName resolves a key name to the rune chromedp expects. Single
// characters pass through; longer names must be in the table.
func keyByName(name string) (string, error) {
	lower := strings.ToLower(name)
	if key, ok := namedKeys[lower]; ok {
		return key, nil
	}
	if _, ok := modifierByName[lower]; ok {
		return "", fmt.Errorf("modifier %q cannot be the final key of a chord", name)
	}
	if len([]rune(name)) == 1 {
		return name, nil
	}
	return "", fmt.Errorf("unknown key %q", name)
}

func clearCookiesTask() chromedp.Action {
	return chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.ClearBrowserCookies().Do(ctx)
		}),
		chromedp.Evaluate(`try { localStorage.clear(); sessionStorage.clear(); } catch (e) {}; true`, nil),
	}
}

// -- Parameter helpers. Numbers may arrive as float64 (raw JSON) or int
// (after coordinate denormalization). --

func intParam(params map[string]interface{}, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("parameter %q must be a number", key)
}

func intParamOr(params map[string]interface{}, key string, def int) (int, error) {
	if _, ok := params[key]; !ok {
		return def, nil
	}
	return intParam(params, key)
}

func strParam(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return v, nil
}

func pointParams(params map[string]interface{}, xKey, yKey string) (int, int, error) {
	x, err := intParam(params, xKey)
	if err != nil {
		return 0, 0, err
	}
	y, err := intParam(params, yKey)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func buttonParam(params map[string]interface{}) input.MouseButton {
	name, _ := params["button"].(string)
	switch name {
	case "middle":
		return input.Middle
	case "right":
		return input.Right
	default:
		return input.Left
	}
}

func keyListParam(params map[string]interface{}) ([]string, error) {
	raw, ok := params["keys"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("missing required parameter \"keys\"")
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("keys must not be empty")
	}
	keys := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("keys must be strings")
		}
		keys = append(keys, s)
	}
	return keys, nil
}
