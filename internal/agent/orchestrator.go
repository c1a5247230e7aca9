// internal/agent/orchestrator.go

// Package agent runs the perceive-decide-act cycle for computer-use sessions.
// The orchestrator owns the session registry and all retry policy; actuators
// and the model client stay policy free.
package agent

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
	"github.com/xkilldash9x/operant/internal/eventbus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Orchestrator coordinates sessions across the bound actuators, the model
// client and the event bus.
type Orchestrator struct {
	cfg       config.AgentConfig
	model     schemas.ModelClient
	actuators map[schemas.SessionMode]schemas.Actuator
	bus       *eventbus.Bus
	logger    *zap.Logger

	temperature     float64
	thinkingLevel   string
	includeThoughts bool

	sessions *sessionRegistry
}

// NewOrchestrator wires an orchestrator. actuators maps each supported mode
// to its backend; modes absent from the map reject session creation.
func NewOrchestrator(
	cfg config.AgentConfig,
	modelCfg config.ModelConfig,
	model schemas.ModelClient,
	actuators map[schemas.SessionMode]schemas.Actuator,
	bus *eventbus.Bus,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = eventbus.NewBus(0, 0, logger)
	}
	return &Orchestrator{
		cfg:             cfg,
		model:           model,
		actuators:       actuators,
		bus:             bus,
		logger:          logger.Named("Orchestrator"),
		temperature:     modelCfg.Temperature,
		thinkingLevel:   modelCfg.ThinkingLevel,
		includeThoughts: modelCfg.IncludeThoughts,
		sessions:        newSessionRegistry(),
	}
}

// CreateSession registers a new session. An existing session with the same ID
// is replaced; its history and notes are discarded.
func (o *Orchestrator) CreateSession(id, task string, mode schemas.SessionMode, width, height int) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if task == "" {
		return nil, fmt.Errorf("task is required")
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown session mode %q", mode)
	}
	if _, ok := o.actuators[mode]; !ok {
		return nil, fmt.Errorf("no actuator bound for mode %q", mode)
	}

	session := newSession(id, task, mode, width, height, o.logger)
	if replaced := o.sessions.put(session); replaced {
		o.logger.Info("Replaced existing session.", zap.String("session_id", id))
	}
	o.logger.Info("Session created.",
		zap.String("session_id", id),
		zap.String("mode", string(mode)),
		zap.Int("width", width), zap.Int("height", height))
	return session, nil
}

// Session returns the registered session, if any.
func (o *Orchestrator) Session(id string) (*Session, bool) {
	return o.sessions.get(id)
}

// Info returns the visible state of a session.
func (o *Orchestrator) Info(id string) (schemas.SessionInfo, bool) {
	session, ok := o.sessions.get(id)
	if !ok {
		return schemas.SessionInfo{}, false
	}
	return session.Info(), true
}

// Infos lists all registered sessions.
func (o *Orchestrator) Infos() []schemas.SessionInfo {
	return o.sessions.infos()
}

// LastScreenshot returns the session's most recent successful capture, empty
// until the first capture lands.
func (o *Orchestrator) LastScreenshot(id string) (string, bool) {
	session, ok := o.sessions.get(id)
	if !ok {
		return "", false
	}
	return session.lastScreenshotData(), true
}

// Stop requests a cooperative stop of a running loop. The in-flight step
// finishes; the loop exits at the next iteration boundary. Returns false when
// no loop is running for the session.
func (o *Orchestrator) Stop(id string) bool {
	session, ok := o.sessions.get(id)
	if !ok || !session.running.Load() {
		return false
	}
	session.stopRequested.Store(true)
	o.logger.Info("Stop requested.", zap.String("session_id", id))
	return true
}

// Clear removes a session and everything it holds.
func (o *Orchestrator) Clear(id string) bool {
	removed := o.sessions.remove(id)
	if removed {
		o.logger.Info("Session cleared.", zap.String("session_id", id))
	}
	return removed
}

// actuatorFor resolves the actuator bound to a session's mode.
func (o *Orchestrator) actuatorFor(session *Session) (schemas.Actuator, bool) {
	actuator, ok := o.actuators[session.Mode]
	return actuator, ok
}
