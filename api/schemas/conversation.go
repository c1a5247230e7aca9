// api/schemas/conversation.go
package schemas

import (
	"encoding/json"
	"strings"
)

// Conversation roles as they appear on the wire.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one role-tagged unit of conversation history. The field layout
// matches the generateContent wire format exactly so that a Turn taken from a
// model response can be replayed on the next request without re-encoding.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a tagged variant: exactly one of Text, InlineData, FunctionCall or
// FunctionResponse is populated. ThoughtSignature is an opaque provider token
// attached to function-call parts; it is never parsed or regenerated, only
// replayed verbatim.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	InlineData       *Blob             `json:"inlineData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
}

// Blob carries inline binary data (screenshots) as base64 with a MIME type.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FunctionCall is a tool invocation requested by the model. Args is kept as
// raw JSON so the exact bytes the model produced survive a replay round-trip.
type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse reports a tool result back to the model.
type FunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image part from pre-encoded base64 data.
func ImagePart(base64Data, mimeType string) Part {
	return Part{InlineData: &Blob{MIMEType: mimeType, Data: base64Data}}
}

// IsText reports whether the part carries visible (non-thought) text.
func (p Part) IsText() bool { return p.Text != "" && !p.Thought }

// ToolCall is the extracted view of a requested function call, with its args
// decoded for dispatch and the signature carried alongside.
type ToolCall struct {
	Name      string                 `json:"name"`
	Args      map[string]interface{} `json:"args"`
	Signature string                 `json:"signature,omitempty"`
}

// ModelResponse is the generateContent response envelope.
type ModelResponse struct {
	Candidates    []Candidate `json:"candidates"`
	UsageMetadata *Usage      `json:"usageMetadata,omitempty"`
}

// Candidate is one generated alternative. In practice only the first is used.
type Candidate struct {
	Content      Turn   `json:"content"`
	FinishReason string `json:"finishReason,omitempty"`
}

// Usage reports token accounting from the upstream.
type Usage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// FunctionCalls extracts every requested call, in response order, with its
// thought signature. Args that fail to decode yield an empty map rather than
// dropping the call.
func (r *ModelResponse) FunctionCalls() []ToolCall {
	var calls []ToolCall
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.FunctionCall == nil {
				continue
			}
			args := make(map[string]interface{})
			if len(part.FunctionCall.Args) > 0 {
				_ = json.Unmarshal(part.FunctionCall.Args, &args)
			}
			calls = append(calls, ToolCall{
				Name:      part.FunctionCall.Name,
				Args:      args,
				Signature: part.ThoughtSignature,
			})
		}
	}
	return calls
}

// Text joins all visible (non-thought) text parts.
func (r *ModelResponse) Text() string {
	var texts []string
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" && !part.Thought {
				texts = append(texts, part.Text)
			}
		}
	}
	return strings.Join(texts, "\n")
}

// ThoughtSummary joins only the thought-marked text parts.
func (r *ModelResponse) ThoughtSummary() string {
	var thoughts []string
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" && part.Thought {
				thoughts = append(thoughts, part.Text)
			}
		}
	}
	return strings.Join(thoughts, "\n")
}

// FirstModelTurn returns the first candidate's content for verbatim appending
// to history, or nil if the response carried none. The parts are returned as
// received; signatures must not be reconstructed from the extracted calls.
func (r *ModelResponse) FirstModelTurn() *Turn {
	if len(r.Candidates) == 0 {
		return nil
	}
	turn := r.Candidates[0].Content
	if len(turn.Parts) == 0 {
		return nil
	}
	return &turn
}
