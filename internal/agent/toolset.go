// internal/agent/toolset.go
package agent

import (
	"math"

	"github.com/xkilldash9x/operant/api/schemas"
)

// ToolKind is the dispatch class of a tool call. The orchestrator routes a
// call by kind, never by name, so adding a tool means one table entry.
type ToolKind int

const (
	// KindUnknown is any name absent from the table.
	KindUnknown ToolKind = iota
	// KindTerminal ends the task (task_complete).
	KindTerminal
	// KindActuator is forwarded to the bound actuator in any mode.
	KindActuator
	// KindBrowser is forwarded to the actuator only in browser mode.
	KindBrowser
	// KindNotes is handled by the session notebook.
	KindNotes
	// KindWait is handled in the orchestrator itself.
	KindWait
)

// toolKinds is the closed routing table. Unlisted names dispatch as
// KindUnknown, which fails the individual call but not the batch.
var toolKinds = map[string]ToolKind{
	"task_complete": KindTerminal,

	"mouse_click":        KindActuator,
	"mouse_double_click": KindActuator,
	"mouse_hover":        KindActuator,
	"mouse_drag":         KindActuator,
	"mouse_scroll":       KindActuator,
	"keyboard_type":      KindActuator,
	"keyboard_press":     KindActuator,
	"clear_text":         KindActuator,
	"click_and_type":     KindActuator,

	"switch_tab":    KindBrowser,
	"list_tabs":     KindBrowser,
	"new_tab":       KindBrowser,
	"reset_browser": KindBrowser,
	"clear_cookies": KindBrowser,
	"navigate":      KindBrowser,

	"add_note":    KindNotes,
	"list_notes":  KindNotes,
	"clear_notes": KindNotes,

	"wait": KindWait,
}

// kindOf returns the dispatch class for a tool name.
func kindOf(name string) ToolKind {
	return toolKinds[name]
}

// denormalize maps a model coordinate in [0,1000] onto a pixel axis of the
// given size. Out-of-range inputs are clamped before scaling.
func denormalize(norm float64, size int) int {
	if norm < 0 {
		norm = 0
	}
	if norm > 1000 {
		norm = 1000
	}
	return int(math.Round(norm / 1000.0 * float64(size)))
}

// pointArgs lists, per tool, which argument names are x-axis coordinates and
// which are y-axis. Tools absent here pass their args through untouched.
var pointArgs = map[string]struct{ xs, ys []string }{
	"mouse_click":        {xs: []string{"x"}, ys: []string{"y"}},
	"mouse_double_click": {xs: []string{"x"}, ys: []string{"y"}},
	"mouse_hover":        {xs: []string{"x"}, ys: []string{"y"}},
	"click_and_type":     {xs: []string{"x"}, ys: []string{"y"}},
	"mouse_drag":         {xs: []string{"start_x", "end_x"}, ys: []string{"start_y", "end_y"}},
}

// denormalizeArgs rewrites the coordinate arguments of a tool call from model
// space into pixel space. The conversion happens exactly once, in the
// orchestrator, so actuators always receive pixels.
func denormalizeArgs(tool string, args map[string]interface{}, width, height int) {
	axes, ok := pointArgs[tool]
	if !ok {
		return
	}
	for _, key := range axes.xs {
		if v, ok := args[key].(float64); ok {
			args[key] = denormalize(v, width)
		}
	}
	for _, key := range axes.ys {
		if v, ok := args[key].(float64); ok {
			args[key] = denormalize(v, height)
		}
	}
}

func obj(props map[string]schemas.PropertySchema, required ...string) schemas.ParameterSchema {
	return schemas.ParameterSchema{Type: "OBJECT", Properties: props, Required: required}
}

func intProp(desc string) schemas.PropertySchema {
	return schemas.PropertySchema{Type: "INTEGER", Description: desc}
}

func strProp(desc string) schemas.PropertySchema {
	return schemas.PropertySchema{Type: "STRING", Description: desc}
}

func boolProp(desc string) schemas.PropertySchema {
	return schemas.PropertySchema{Type: "BOOLEAN", Description: desc}
}

var reasoningProp = strProp("Why this action was chosen.")

var buttonProp = schemas.PropertySchema{
	Type:        "STRING",
	Enum:        []string{"left", "middle", "right"},
	Description: "Mouse button to use.",
}

var categoryProp = schemas.PropertySchema{
	Type:        "STRING",
	Enum:        []string{"info", "progress", "todo", "important", "error"},
	Description: "Note category. info=general, progress=status, todo=pending work, important=key finding, error=problem.",
}

var categoryFilterProp = schemas.PropertySchema{
	Type:        "STRING",
	Enum:        []string{"info", "progress", "todo", "important", "error", "all"},
	Description: "Category filter. Defaults to all.",
}

// toolDeclarations is the full capability set advertised to the model.
// Coordinates are normalized to the 0-1000 range on both axes.
var toolDeclarations = []schemas.ToolDeclaration{
	{
		Name:        "mouse_click",
		Description: "Click at a position on screen. Supports left, middle and right buttons and an optional hold duration.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"x":         intProp("Normalized x coordinate (0-1000). 0 is the left edge, 1000 the right."),
			"y":         intProp("Normalized y coordinate (0-1000). 0 is the top edge, 1000 the bottom."),
			"button":    buttonProp,
			"duration":  intProp("Hold duration in milliseconds. 0 for a plain click."),
			"reasoning": reasoningProp,
		}, "x", "y", "button"),
	},
	{
		Name:        "mouse_double_click",
		Description: "Double-click at a position on screen. Commonly used to open files, launch programs or select text.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"x":         intProp("Normalized x coordinate (0-1000)."),
			"y":         intProp("Normalized y coordinate (0-1000)."),
			"button":    buttonProp,
			"reasoning": reasoningProp,
		}, "x", "y"),
	},
	{
		Name:        "mouse_hover",
		Description: "Move the mouse to a position and hover. Used to trigger tooltips, hover effects or dropdown menus.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"x":         intProp("Normalized x coordinate (0-1000)."),
			"y":         intProp("Normalized y coordinate (0-1000)."),
			"reasoning": reasoningProp,
		}, "x", "y"),
	},
	{
		Name:        "mouse_drag",
		Description: "Drag the mouse from a start position to an end position while holding a button.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"start_x":   intProp("Normalized start x coordinate (0-1000)."),
			"start_y":   intProp("Normalized start y coordinate (0-1000)."),
			"end_x":     intProp("Normalized end x coordinate (0-1000)."),
			"end_y":     intProp("Normalized end y coordinate (0-1000)."),
			"button":    buttonProp,
			"reasoning": reasoningProp,
		}, "start_x", "start_y", "end_x", "end_y", "button"),
	},
	{
		Name:        "mouse_scroll",
		Description: "Scroll the mouse wheel. Positive values scroll down/right, negative values scroll up/left.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"scroll_x":  intProp("Horizontal scroll amount. Positive scrolls right, negative left, 0 none."),
			"scroll_y":  intProp("Vertical scroll amount. Positive scrolls down, negative up, 0 none."),
			"reasoning": reasoningProp,
		}, "scroll_x", "scroll_y"),
	},
	{
		Name:        "keyboard_type",
		Description: "Type text into the focused element, optionally clearing the existing content first.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"text":           strProp("Text to type."),
			"clear_existing": boolProp("Select-all and delete the existing text before typing. Defaults to false."),
			"reasoning":      reasoningProp,
		}, "text"),
	},
	{
		Name:        "keyboard_press",
		Description: "Press a key or a key combination. Useful for shortcuts and special keys.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"keys": {
				Type:        "ARRAY",
				Items:       &schemas.PropertySchema{Type: "STRING"},
				Description: "Keys to press together. One element for a single key, several for a chord. Examples: ['enter'], ['ctrl','c'], ['ctrl','shift','esc'].",
			},
			"reasoning": reasoningProp,
		}, "keys"),
	},
	{
		Name:        "clear_text",
		Description: "Clear the focused input by selecting all and deleting.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"reasoning": reasoningProp,
		}),
	},
	{
		Name:        "click_and_type",
		Description: "Click a position to focus it, optionally clear the existing text, then type new text.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"x":              intProp("Normalized x coordinate (0-1000)."),
			"y":              intProp("Normalized y coordinate (0-1000)."),
			"text":           strProp("Text to type. An empty string performs only the click (and clear, if enabled)."),
			"clear_existing": boolProp("Clear the existing text after clicking. Defaults to true."),
			"reasoning":      reasoningProp,
		}, "x", "y"),
	},
	{
		Name:        "wait",
		Description: "Wait for a number of seconds (1-30). Use while pages load, animations finish or slow operations run.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"seconds":   intProp("Seconds to wait, between 1 and 30."),
			"reasoning": reasoningProp,
		}, "seconds"),
	},
	{
		Name:        "task_complete",
		Description: "Call this when the user's task is fully done. Provide a detailed summary of what was performed and the result.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"summary": strProp("Summary of every step taken and the final outcome."),
			"success": boolProp("Whether the task succeeded. false means failed or only partially done."),
		}, "summary", "success"),
	},
	{
		Name:        "switch_tab",
		Description: "Switch between open browser tabs. Browser mode only.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"index": intProp("Zero-based index of the target tab."),
		}, "index"),
	},
	{
		Name:        "list_tabs",
		Description: "List all open browser tabs with their titles and URLs. Browser mode only.",
		Parameters:  obj(map[string]schemas.PropertySchema{}),
	},
	{
		Name:        "new_tab",
		Description: "Open a new browser tab at the given URL. Browser mode only.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"url": strProp("URL to open in the new tab."),
		}, "url"),
	},
	{
		Name:        "reset_browser",
		Description: "Reset the browser environment to a fresh context with empty cache and cookies. Browser mode only.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"url":       strProp("URL to visit after the reset. Defaults to about:blank."),
			"reasoning": reasoningProp,
		}),
	},
	{
		Name:        "clear_cookies",
		Description: "Clear cookies and local storage for the current browser context while keeping the current page. Browser mode only.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"reasoning": reasoningProp,
		}),
	},
	{
		Name:        "navigate",
		Description: "Navigate the current tab to a URL. Unlike new_tab this stays in the current tab. Browser mode only.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"url":       strProp("URL to navigate to."),
			"reasoning": reasoningProp,
		}, "url"),
	},
	{
		Name:        "add_note",
		Description: "Add a note to the task notebook. Notes persist for the whole task and help track findings, progress and pending work.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"content":  strProp("Note content."),
			"category": categoryProp,
		}, "content"),
	},
	{
		Name:        "list_notes",
		Description: "List the notes recorded for this task, optionally filtered by category.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"category": categoryFilterProp,
		}),
	},
	{
		Name:        "clear_notes",
		Description: "Delete notes from the task notebook. Irreversible; requires confirm=true.",
		Parameters: obj(map[string]schemas.PropertySchema{
			"category": categoryFilterProp,
			"confirm":  boolProp("Must be true for the clear to run."),
		}, "confirm"),
	},
}

// Declarations returns the tool set advertised to the model.
func Declarations() []schemas.ToolDeclaration {
	out := make([]schemas.ToolDeclaration, len(toolDeclarations))
	copy(out, toolDeclarations)
	return out
}
