// internal/eventbus/bus.go

// Package eventbus fans session progress events out to live observers.
// Delivery is best effort: events are transient notifications, not state, so
// a slow observer loses the oldest entries rather than stalling the agent.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
)

// Bus routes events to per-session subscriber sets. The zero value is not
// usable; construct with NewBus.
type Bus struct {
	mu        sync.RWMutex
	sessions  map[string]map[string]*Subscriber
	queueSize int
	heartbeat time.Duration
	logger    *zap.Logger
}

// Subscriber is one observer's view of a session stream.
type Subscriber struct {
	id        string
	sessionID string
	ch        chan schemas.Event
	heartbeat time.Duration
}

// NewBus creates a bus with the given per-subscriber queue size and
// observer heartbeat interval.
func NewBus(queueSize int, heartbeat time.Duration, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Bus{
		sessions:  make(map[string]map[string]*Subscriber),
		queueSize: queueSize,
		heartbeat: heartbeat,
		logger:    logger.Named("EventBus"),
	}
}

// Subscribe registers a new observer for sessionID. The caller must
// Unsubscribe when done.
func (b *Bus) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		id:        uuid.NewString(),
		sessionID: sessionID,
		ch:        make(chan schemas.Event, b.queueSize),
		heartbeat: b.heartbeat,
	}

	b.mu.Lock()
	subs, ok := b.sessions[sessionID]
	if !ok {
		subs = make(map[string]*Subscriber)
		b.sessions[sessionID] = subs
	}
	subs[sub.id] = sub
	b.mu.Unlock()

	b.logger.Debug("Observer subscribed.",
		zap.String("session_id", sessionID), zap.String("subscriber_id", sub.id))
	return sub
}

// Unsubscribe removes the observer and releases its queue.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if subs, ok := b.sessions[sub.sessionID]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.sessions, sub.sessionID)
		}
	}
	b.mu.Unlock()
}

// SubscriberCount returns how many observers a session currently has.
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions[sessionID])
}

// Publish delivers an event to every observer of its session without ever
// blocking the publisher. When an observer's queue is full the oldest queued
// event is dropped to make room.
func (b *Bus) Publish(eventType schemas.EventType, sessionID string, data map[string]interface{}) {
	event := schemas.Event{
		Type:      eventType,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		SessionID: sessionID,
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.sessions[sessionID] {
		for {
			select {
			case sub.ch <- event:
			default:
				// Queue full: evict the oldest entry and retry.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// PublishScreenshot emits a screenshot event for the given step. action names
// the tool that triggered the capture; it is empty on the initial capture of
// a step.
func (b *Bus) PublishScreenshot(sessionID string, step int, shot *schemas.ScreenshotResult, action string) {
	data := map[string]interface{}{"step": step}
	if shot != nil {
		data["screenshot"] = shot.Screenshot
		data["width"] = shot.Width
		data["height"] = shot.Height
		if shot.URL != "" {
			data["url"] = shot.URL
		}
	}
	if action != "" {
		data["action"] = action
	}
	b.Publish(schemas.EventScreenshot, sessionID, data)
}

// PublishAction emits one executed tool call and its outcome.
func (b *Bus) PublishAction(sessionID string, step int, tool string, result schemas.ActionResult) {
	b.Publish(schemas.EventAction, sessionID, map[string]interface{}{
		"step":   step,
		"tool":   tool,
		"result": result,
	})
}

// PublishNotes emits the full notebook after a change, tagged with the note
// tool that changed it.
func (b *Bus) PublishNotes(sessionID, action string, notes []schemas.Note) {
	b.Publish(schemas.EventNotes, sessionID, map[string]interface{}{
		"notes":  notes,
		"action": action,
		"count":  len(notes),
	})
}

// PublishComplete emits the terminal completion event with its summary and
// the model's own success verdict.
func (b *Bus) PublishComplete(sessionID, summary string, totalSteps int, success bool) {
	b.Publish(schemas.EventComplete, sessionID, map[string]interface{}{
		"summary":     summary,
		"total_steps": totalSteps,
		"success":     success,
	})
}

// PublishError emits a structured failure notification.
func (b *Bus) PublishError(sessionID string, code schemas.ErrorCode, message string) {
	b.Publish(schemas.EventError, sessionID, map[string]interface{}{
		"error_type": string(code),
		"error":      message,
	})
}

// Next blocks until an event arrives, the heartbeat interval elapses, or ctx
// is done. On a quiet interval it synthesizes a heartbeat event so transports
// can keep their connections alive.
func (s *Subscriber) Next(ctx context.Context) (schemas.Event, error) {
	timer := time.NewTimer(s.heartbeat)
	defer timer.Stop()

	select {
	case event := <-s.ch:
		return event, nil
	case <-timer.C:
		return schemas.Event{
			Type:      schemas.EventHeartbeat,
			Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
			SessionID: s.sessionID,
		}, nil
	case <-ctx.Done():
		return schemas.Event{}, ctx.Err()
	}
}

// SessionID returns the session this subscriber observes.
func (s *Subscriber) SessionID() string { return s.sessionID }
