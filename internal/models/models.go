package models

import (
	"encoding/json"
	"time"
)

// Command type values recognized on the wire.
const (
	CmdStartScenario  = "start_scenario"
	CmdPauseScenario  = "pause_scenario"
	CmdResumeScenario = "resume_scenario"
	CmdStopScenario   = "stop_scenario"
	CmdJumpToStep     = "jump_to_step"
	CmdPing           = "ping"
	CmdSubscribe      = "subscribe"
)

// Command represents a decoded inbound WebSocket message
type Command struct {
	Type         string `json:"type"`
	ScenarioID   string `json:"scenarioId,omitempty"`
	StepIndex    *int   `json:"stepIndex,omitempty"` // pointer to distinguish 0 from absent
	AutoAdvance  bool   `json:"autoAdvance,omitempty"`
	StepDuration int    `json:"stepDuration,omitempty"` // seconds
	Event        string `json:"event,omitempty"`
}

// IsScenarioControl reports whether the command mutates playback state
func (c Command) IsScenarioControl() bool {
	switch c.Type {
	case CmdStartScenario, CmdPauseScenario, CmdResumeScenario, CmdStopScenario, CmdJumpToStep:
		return true
	}
	return false
}

// SystemSnapshot is the synthetic metrics payload carried by system_update events
type SystemSnapshot struct {
	ActiveNodes     int     `json:"active_nodes"`
	EventsPerSecond int     `json:"events_per_second"`
	CPUUtilization  float64 `json:"cpu_utilization"`
	MemoryUsage     float64 `json:"memory_usage"`
}

// SystemUpdate is the periodic heartbeat event pushed on the idle-timeout path
type SystemUpdate struct {
	Type      string         `json:"type"`
	Data      SystemSnapshot `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewSystemUpdate wraps a snapshot in the outbound event envelope
func NewSystemUpdate(snap SystemSnapshot) SystemUpdate {
	return SystemUpdate{Type: "system_update", Data: snap, Timestamp: time.Now().UTC()}
}

// ScenarioUpdate announces a step transition of the global playback timeline.
// The step payload is flattened into the top-level JSON object.
type ScenarioUpdate struct {
	ScenarioID string
	StepIndex  int
	Payload    map[string]interface{}
	Timestamp  time.Time
}

// NewScenarioUpdate builds a scenario_update event for the given step
func NewScenarioUpdate(scenarioID string, stepIndex int, payload map[string]interface{}) ScenarioUpdate {
	return ScenarioUpdate{
		ScenarioID: scenarioID,
		StepIndex:  stepIndex,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// MarshalJSON flattens the payload fields alongside the envelope fields.
// Envelope fields win on key collision.
func (u ScenarioUpdate) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(u.Payload)+4)
	for k, v := range u.Payload {
		out[k] = v
	}
	out["type"] = "scenario_update"
	out["scenarioId"] = u.ScenarioID
	out["stepIndex"] = u.StepIndex
	out["timestamp"] = u.Timestamp.Format(time.RFC3339)
	return json.Marshal(out)
}

// CommandAck confirms an accepted command back to the viewers
type CommandAck struct {
	Type            string    `json:"type"`
	OriginalCommand string    `json:"original_command"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewCommandAck builds a command_acknowledgment event echoing the command type
func NewCommandAck(commandType string) CommandAck {
	return CommandAck{Type: "command_acknowledgment", OriginalCommand: commandType, Timestamp: time.Now().UTC()}
}

// Pong answers a ping, unicast to the sender only
type Pong struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPong builds a pong event
func NewPong() Pong {
	return Pong{Type: "pong", Timestamp: time.Now().UTC()}
}

// SubscriptionAck acknowledges a subscribe request for a named event stream
type SubscriptionAck struct {
	Type      string    `json:"type"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSubscriptionAck builds a subscription_ack event echoing the event name
func NewSubscriptionAck(event string) SubscriptionAck {
	return SubscriptionAck{Type: "subscription_ack", Event: event, Timestamp: time.Now().UTC()}
}

// ErrorEvent reports a protocol or scenario-state error to the offending connection
type ErrorEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorEvent builds an error event with a human-readable message
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message, Timestamp: time.Now().UTC()}
}

// Component is one node of the monitored infrastructure topology
type Component struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// MetricRecord is a single generated measurement destined for the
// time-series store and the latest-values cache
type MetricRecord struct {
	Component  string    `json:"component"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}
