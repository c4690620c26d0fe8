package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScenarioUpdateFlattensPayload(t *testing.T) {
	update := NewScenarioUpdate("trading-crisis", 2, map[string]interface{}{
		"severity":    "critical",
		"description": "Order flow halted",
	})

	data, err := json.Marshal(update)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Equal(t, "scenario_update", decoded["type"])
	require.Equal(t, "trading-crisis", decoded["scenarioId"])
	require.EqualValues(t, 2, decoded["stepIndex"])
	require.Equal(t, "critical", decoded["severity"])
	require.Equal(t, "Order flow halted", decoded["description"])

	// Timestamp is ISO-8601 and UTC.
	ts, ok := decoded["timestamp"].(string)
	require.True(t, ok)
	parsed, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err)
	require.Equal(t, time.UTC, parsed.Location())
}

func TestScenarioUpdateEnvelopeWinsOnCollision(t *testing.T) {
	update := NewScenarioUpdate("demo", 0, map[string]interface{}{
		"type":      "spoofed",
		"stepIndex": 99,
	})

	data, err := json.Marshal(update)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "scenario_update", decoded["type"])
	require.EqualValues(t, 0, decoded["stepIndex"])
}

func TestCommandDecoding(t *testing.T) {
	raw := `{"type":"jump_to_step","stepIndex":0}`
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(raw), &cmd))
	require.Equal(t, CmdJumpToStep, cmd.Type)
	require.NotNil(t, cmd.StepIndex)
	require.Equal(t, 0, *cmd.StepIndex)
	require.True(t, cmd.IsScenarioControl())
}

func TestIsScenarioControl(t *testing.T) {
	for _, typ := range []string{CmdStartScenario, CmdPauseScenario, CmdResumeScenario, CmdStopScenario, CmdJumpToStep} {
		require.True(t, Command{Type: typ}.IsScenarioControl(), typ)
	}
	for _, typ := range []string{CmdPing, CmdSubscribe, "", "bogus"} {
		require.False(t, Command{Type: typ}.IsScenarioControl(), typ)
	}
}

func TestOutboundEventsCarryTimestamps(t *testing.T) {
	for name, event := range map[string]interface{}{
		"system_update":    NewSystemUpdate(SystemSnapshot{ActiveNodes: 10}),
		"ack":              NewCommandAck(CmdStartScenario),
		"pong":             NewPong(),
		"subscription_ack": NewSubscriptionAck("scenario_update"),
		"error":            NewErrorEvent("nope"),
	} {
		data, err := json.Marshal(event)
		require.NoError(t, err, name)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded), name)
		require.NotEmpty(t, decoded["timestamp"], name)
	}
}
