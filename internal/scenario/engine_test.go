package scenario

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/models"
)

// captureSink records every event the engine emits
type captureSink struct {
	mu         sync.Mutex
	broadcasts []interface{}
	unicasts   map[string][]interface{}
}

func newCaptureSink() *captureSink {
	return &captureSink{unicasts: make(map[string][]interface{})}
}

func (s *captureSink) Broadcast(event interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, event)
}

func (s *captureSink) Unicast(id string, event interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unicasts[id] = append(s.unicasts[id], event)
	return nil
}

func (s *captureSink) broadcastCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.broadcasts)
}

func (s *captureSink) lastBroadcast() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.broadcasts) == 0 {
		return nil
	}
	return s.broadcasts[len(s.broadcasts)-1]
}

func (s *captureSink) errorsFor(id string) []models.ErrorEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ErrorEvent
	for _, ev := range s.unicasts[id] {
		if e, ok := ev.(models.ErrorEvent); ok {
			out = append(out, e)
		}
	}
	return out
}

// scenarioUpdates returns the step indices of all broadcast scenario updates
func (s *captureSink) scenarioUpdates() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var steps []int
	for _, ev := range s.broadcasts {
		if u, ok := ev.(models.ScenarioUpdate); ok {
			steps = append(steps, u.StepIndex)
		}
	}
	return steps
}

// manualTicker lets tests fire auto-advance ticks on demand
type manualTicker struct {
	c chan time.Time
}

func (m *manualTicker) Chan() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()                  {}

// Tick fires one tick and blocks until the engine has picked it up
func (m *manualTicker) Tick() { m.c <- time.Now() }

type engineHarness struct {
	engine  *Engine
	sink    *captureSink
	ticker  *manualTicker
	armed   *int
	periods *[]time.Duration
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	sink := newCaptureSink()
	ticker := &manualTicker{c: make(chan time.Time)}
	armed := 0
	var periods []time.Duration

	engine := NewEngine(DefaultCatalog(), sink, logging.NewLogStore(100))
	engine.SetTickerFactory(func(d time.Duration) Ticker {
		armed++
		periods = append(periods, d)
		return ticker
	})
	engine.Start()
	t.Cleanup(engine.Stop)

	return &engineHarness{engine: engine, sink: sink, ticker: ticker, armed: &armed, periods: &periods}
}

func intPtr(i int) *int { return &i }

func startTradingCrisis(h *engineHarness, auto bool) {
	h.engine.Handle(models.Command{
		Type:         models.CmdStartScenario,
		ScenarioID:   "trading-crisis",
		AutoAdvance:  auto,
		StepDuration: 10,
	}, "viewer-1")
}

func TestStartScenarioEmitsAckAndStepZero(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, true)

	require.GreaterOrEqual(t, h.sink.broadcastCount(), 2)
	ack, ok := h.sink.broadcasts[0].(models.CommandAck)
	require.True(t, ok, "first broadcast should be the acknowledgment")
	require.Equal(t, models.CmdStartScenario, ack.OriginalCommand)

	update, ok := h.sink.broadcasts[1].(models.ScenarioUpdate)
	require.True(t, ok, "second broadcast should be the initial scenario_update")
	require.Equal(t, "trading-crisis", update.ScenarioID)
	require.Equal(t, 0, update.StepIndex)

	st := h.engine.Status()
	require.Equal(t, StatePlaying, st.State)
	require.Equal(t, 0, st.StepIndex)
	require.True(t, st.AutoAdvance)
	require.Equal(t, 10, st.StepDuration)

	require.Equal(t, 1, *h.armed)
	require.Equal(t, 10*time.Second, (*h.periods)[0])
}

func TestStartUnknownScenario(t *testing.T) {
	h := newEngineHarness(t)
	h.engine.Handle(models.Command{Type: models.CmdStartScenario, ScenarioID: "no-such"}, "viewer-1")

	errs := h.sink.errorsFor("viewer-1")
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Message, "Unknown scenario")
	require.Equal(t, StateIdle, h.engine.Status().State)
	require.Zero(t, h.sink.broadcastCount())
}

func TestAutoAdvanceIncrementsByOnePerTick(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, true)

	def, _ := DefaultCatalog().Get("trading-crisis")
	steps := len(def.Steps)

	for want := 1; want < steps; want++ {
		h.ticker.Tick()
		st := h.engine.Status()
		require.Equal(t, want, st.StepIndex, "tick should advance by exactly one step")
		require.Equal(t, StatePlaying, st.State)
	}

	require.Equal(t, seq(0, steps), h.sink.scenarioUpdates())
}

func TestAutoAdvancePastLastStepStopsPlayback(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, true)

	def, _ := DefaultCatalog().Get("trading-crisis")
	for i := 1; i < len(def.Steps); i++ {
		h.ticker.Tick()
	}

	updatesBefore := h.sink.scenarioUpdates()

	// The tick after the last step completes the run.
	h.ticker.Tick()
	st := h.engine.Status()
	require.Equal(t, StateIdle, st.State)
	require.Equal(t, -1, st.StepIndex)

	// No further scenario_update events after completion.
	require.Equal(t, updatesBefore, h.sink.scenarioUpdates())
}

func TestPauseStopsTicksAndResumeRestartsCadence(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, true)
	h.ticker.Tick()
	require.Equal(t, 1, h.engine.Status().StepIndex)

	h.engine.Handle(models.Command{Type: models.CmdPauseScenario}, "viewer-1")
	st := h.engine.Status()
	require.Equal(t, StatePaused, st.State)
	require.Equal(t, 1, st.StepIndex)

	updatesWhilePaused := h.sink.scenarioUpdates()

	h.engine.Handle(models.Command{Type: models.CmdResumeScenario}, "viewer-1")
	st = h.engine.Status()
	require.Equal(t, StatePlaying, st.State)
	require.Equal(t, 1, st.StepIndex, "resume continues from the paused step")
	require.Equal(t, updatesWhilePaused, h.sink.scenarioUpdates(), "resume alone emits no scenario_update")

	// Resume re-armed the ticker with the original cadence.
	require.Equal(t, 2, *h.armed)
	require.Equal(t, 10*time.Second, (*h.periods)[1])

	h.ticker.Tick()
	require.Equal(t, 2, h.engine.Status().StepIndex)
}

func TestPauseWhileIdleIsRejected(t *testing.T) {
	h := newEngineHarness(t)
	h.engine.Handle(models.Command{Type: models.CmdPauseScenario}, "viewer-1")

	errs := h.sink.errorsFor("viewer-1")
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Message, "Cannot pause")
	require.Equal(t, StateIdle, h.engine.Status().State)
	require.Zero(t, h.sink.broadcastCount())
}

func TestResumeWhilePlayingIsRejected(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, false)

	h.engine.Handle(models.Command{Type: models.CmdResumeScenario}, "viewer-1")
	errs := h.sink.errorsFor("viewer-1")
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Message, "Cannot resume")
}

func TestStopResetsRun(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, false)

	h.engine.Handle(models.Command{Type: models.CmdStopScenario}, "viewer-1")
	st := h.engine.Status()
	require.Equal(t, StateIdle, st.State)
	require.Equal(t, -1, st.StepIndex)
	require.Empty(t, st.ScenarioID)
}

func TestStopWhileIdleIsRejected(t *testing.T) {
	h := newEngineHarness(t)
	h.engine.Handle(models.Command{Type: models.CmdStopScenario}, "viewer-1")

	errs := h.sink.errorsFor("viewer-1")
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Message, "Cannot stop")
}

func TestJumpToStep(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, false)

	h.engine.Handle(models.Command{Type: models.CmdJumpToStep, StepIndex: intPtr(3)}, "viewer-1")
	st := h.engine.Status()
	require.Equal(t, 3, st.StepIndex)
	require.Equal(t, StatePlaying, st.State, "jump does not change playback state")

	update, ok := h.sink.lastBroadcast().(models.ScenarioUpdate)
	require.True(t, ok)
	require.Equal(t, 3, update.StepIndex)
}

func TestJumpOutOfRangeLeavesIndexUnchanged(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, false)
	before := h.sink.broadcastCount()

	h.engine.Handle(models.Command{Type: models.CmdJumpToStep, StepIndex: intPtr(99)}, "viewer-1")

	errs := h.sink.errorsFor("viewer-1")
	require.Len(t, errs, 1, "exactly one error event to the requester")
	require.Contains(t, errs[0].Message, "out of range")

	st := h.engine.Status()
	require.Equal(t, 0, st.StepIndex)
	require.Equal(t, StatePlaying, st.State)
	require.Equal(t, before, h.sink.broadcastCount(), "no broadcast for a rejected jump")
}

func TestJumpNegativeIndexRejected(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, false)

	h.engine.Handle(models.Command{Type: models.CmdJumpToStep, StepIndex: intPtr(-1)}, "viewer-1")
	require.Len(t, h.sink.errorsFor("viewer-1"), 1)
	require.Equal(t, 0, h.engine.Status().StepIndex)
}

func TestJumpWhileIdleIsRejected(t *testing.T) {
	h := newEngineHarness(t)
	h.engine.Handle(models.Command{Type: models.CmdJumpToStep, StepIndex: intPtr(1)}, "viewer-1")
	require.Len(t, h.sink.errorsFor("viewer-1"), 1)
}

func TestStartDefaultsStepDuration(t *testing.T) {
	h := newEngineHarness(t)
	h.engine.Handle(models.Command{
		Type:        models.CmdStartScenario,
		ScenarioID:  "trading-crisis",
		AutoAdvance: true,
	}, "viewer-1")

	require.Equal(t, DefaultStepDuration, (*h.periods)[0])
}

func TestStartReplacesActiveRun(t *testing.T) {
	h := newEngineHarness(t)
	startTradingCrisis(h, false)
	h.engine.Handle(models.Command{Type: models.CmdJumpToStep, StepIndex: intPtr(2)}, "viewer-1")

	h.engine.Handle(models.Command{
		Type:       models.CmdStartScenario,
		ScenarioID: "datacenter-outage",
	}, "viewer-2")

	st := h.engine.Status()
	require.Equal(t, "datacenter-outage", st.ScenarioID)
	require.Equal(t, 0, st.StepIndex)
	require.Equal(t, StatePlaying, st.State)
}

// seq returns [from, to) as a slice
func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
