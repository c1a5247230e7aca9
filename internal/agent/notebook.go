// internal/agent/notebook.go
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/operant/api/schemas"
)

// notebook holds a session's notes. Notes survive for the lifetime of the
// session and feed back into the continuation prompt.
type notebook struct {
	mu    sync.Mutex
	notes []schemas.Note
}

// Add records a note and returns the new total. Invalid categories fall back
// to info rather than rejecting the note.
func (n *notebook) Add(content string, category schemas.NoteCategory, step int) int {
	if !category.Valid() {
		category = schemas.NoteInfo
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, schemas.Note{
		Content:   content,
		Category:  category,
		Timestamp: time.Now(),
		Step:      step,
	})
	return len(n.notes)
}

// List returns the notes matching the category filter. "all" or an empty
// filter returns everything.
func (n *notebook) List(category string) []schemas.Note {
	n.mu.Lock()
	defer n.mu.Unlock()
	if category == "" || category == "all" {
		out := make([]schemas.Note, len(n.notes))
		copy(out, n.notes)
		return out
	}
	var out []schemas.Note
	for _, note := range n.notes {
		if string(note.Category) == category {
			out = append(out, note)
		}
	}
	return out
}

// Recent returns the trailing count notes, newest last.
func (n *notebook) Recent(count int) []schemas.Note {
	n.mu.Lock()
	defer n.mu.Unlock()
	if count <= 0 || len(n.notes) == 0 {
		return nil
	}
	start := len(n.notes) - count
	if start < 0 {
		start = 0
	}
	out := make([]schemas.Note, len(n.notes)-start)
	copy(out, n.notes[start:])
	return out
}

// Clear deletes notes matching the category filter and returns how many were
// removed. "all" or an empty filter removes everything.
func (n *notebook) Clear(category string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if category == "" || category == "all" {
		removed := len(n.notes)
		n.notes = nil
		return removed
	}
	kept := n.notes[:0]
	removed := 0
	for _, note := range n.notes {
		if string(note.Category) == category {
			removed++
			continue
		}
		kept = append(kept, note)
	}
	n.notes = kept
	return removed
}

// Count returns the number of stored notes.
func (n *notebook) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

// listEntry is the wire shape of one note in a list_notes result.
type listEntry struct {
	Index    int    `json:"index"`
	Category string `json:"category"`
	Content  string `json:"content"`
	Step     int    `json:"step"`
	Time     string `json:"time"`
}

// handleNoteTool executes one notebook tool call and produces its result.
func (s *Session) handleNoteTool(name string, args map[string]interface{}) schemas.ActionResult {
	switch name {
	case "add_note":
		content, _ := args["content"].(string)
		category, _ := args["category"].(string)
		count := s.notes.Add(content, schemas.NoteCategory(category), s.StepCount()+1)
		return schemas.ActionResult{
			"status":     "success",
			"message":    fmt.Sprintf("Note added [%s]: %s", orDefault(category, "info"), truncate(content, 50)),
			"note_count": count,
		}

	case "list_notes":
		filter, _ := args["category"].(string)
		notes := s.notes.List(filter)
		entries := make([]listEntry, 0, len(notes))
		for i, note := range notes {
			entries = append(entries, listEntry{
				Index:    i + 1,
				Category: string(note.Category),
				Content:  note.Content,
				Step:     note.Step,
				Time:     note.Timestamp.Format(time.RFC3339),
			})
		}
		return schemas.ActionResult{
			"status":         "success",
			"notes":          entries,
			"total_count":    s.notes.Count(),
			"filtered_count": len(entries),
			"filter":         orDefault(filter, "all"),
		}

	case "clear_notes":
		confirm, _ := args["confirm"].(bool)
		if !confirm {
			return schemas.FailedResult("confirm=true is required to clear notes")
		}
		filter, _ := args["category"].(string)
		removed := s.notes.Clear(filter)
		return schemas.ActionResult{
			"status":          "success",
			"message":         fmt.Sprintf("Cleared %d notes", removed),
			"remaining_count": s.notes.Count(),
		}
	}
	return schemas.FailedResult(fmt.Sprintf("unknown note tool %q", name))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
