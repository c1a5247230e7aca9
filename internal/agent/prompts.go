// internal/agent/prompts.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/operant/api/schemas"
)

var modeNames = map[schemas.SessionMode]string{
	schemas.ModeBrowser:    "browser automation",
	schemas.ModeDesktop:    "desktop control",
	schemas.ModeBackground: "background window control",
}

// buildInitialPrompt renders the first user message of a session: the task,
// the current location and any open tabs, plus the operating guidance.
func buildInitialPrompt(s *Session, task string, shot *schemas.ScreenshotResult) string {
	modeName := modeNames[s.Mode]
	if modeName == "" {
		modeName = "browser automation"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s assistant. The user gives you a task and you complete it by calling tools.\n\n", modeName)
	fmt.Fprintf(&b, "Current location: %s\n", currentLocation(shot))
	fmt.Fprintf(&b, "Screen size: %dx%d\n", s.ScreenWidth, s.ScreenHeight)
	b.WriteString(tabsSection(shot))
	fmt.Fprintf(&b, "\nUser task: %s\n\n", task)
	b.WriteString(`Important:
1. Parallel calls: you may return several function calls in one response; they run in order.
2. Repeated tools: the same tool may be called multiple times, e.g. clicking different positions.
3. UI settling: use the wait tool (1-30 seconds) when the page needs time to load or update.
4. Notes: use add_note to record findings, progress and pending work; use list_notes to review them.
5. Combined example: click the search box, type the text, click search, wait 3 seconds. All of these can be returned in a single response.

Analyze the current screenshot and decide the next action. When the task is fully done, call task_complete.`)
	return b.String()
}

// buildContinuePrompt renders every subsequent user message: location, step
// count, tabs and the trailing notes.
func buildContinuePrompt(s *Session, shot *schemas.ScreenshotResult, recentNotes int) string {
	var b strings.Builder
	b.WriteString("Continue the task.\n\n")
	fmt.Fprintf(&b, "Current location: %s\n", currentLocation(shot))
	fmt.Fprintf(&b, "Steps completed: %d\n", s.StepCount())
	b.WriteString(tabsSection(shot))
	b.WriteString(notesSection(s, recentNotes))
	b.WriteString(`
Reminders:
- You may return several function calls at once.
- Use the wait tool between actions when the UI needs to settle (1-3 seconds is usually enough).
- The same tool may be used repeatedly.
- Use add_note to record important information and list_notes to review it.

Analyze the current screenshot and decide the next action. If the task is done, call task_complete.`)
	return b.String()
}

func currentLocation(shot *schemas.ScreenshotResult) string {
	if shot != nil && shot.URL != "" {
		return shot.URL
	}
	return "Desktop"
}

func tabsSection(shot *schemas.ScreenshotResult) string {
	if shot == nil || len(shot.Tabs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Open tabs:\n")
	for _, tab := range shot.Tabs {
		fmt.Fprintf(&b, "- [%d] %s (%s)", tab.Index, tab.Title, tab.URL)
		if tab.IsActive {
			b.WriteString(" [active]")
		}
		b.WriteString("\n")
	}
	b.WriteString("Use switch_tab(index) to change tabs.\n")
	return b.String()
}

func notesSection(s *Session, recentNotes int) string {
	notes := s.notes.Recent(recentNotes)
	if len(notes) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\nYour notes (last %d):\n", len(notes))
	for _, note := range notes {
		fmt.Fprintf(&b, "  - [%s] %s\n", note.Category, note.Content)
	}
	return b.String()
}
