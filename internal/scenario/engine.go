package scenario

import (
	"fmt"
	"time"

	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/metrics"
	"github.com/pulsegrid/infradash/internal/models"
)

// PlaybackState is the state of the single global scenario run
type PlaybackState string

const (
	StateIdle    PlaybackState = "idle"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
	StateStopped PlaybackState = "stopped"
)

// DefaultStepDuration is used when start_scenario requests auto-advance
// without a positive stepDuration.
const DefaultStepDuration = 10 * time.Second

// EventSink is where the engine emits its outbound events. Scenario
// updates and acknowledgments are broadcast to every viewer; errors go
// only to the connection that issued the offending command.
type EventSink interface {
	Broadcast(event interface{})
	Unicast(id string, event interface{}) error
}

// Ticker abstracts time.Ticker so tests can drive auto-advance manually
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// TickerFactory creates the auto-advance ticker for a given step duration
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (rt realTicker) Chan() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()                  { rt.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Status is a read-only snapshot of the current run for the REST API
type Status struct {
	ScenarioID   string        `json:"scenarioId,omitempty"`
	StepIndex    int           `json:"stepIndex"`
	State        PlaybackState `json:"playbackState"`
	AutoAdvance  bool          `json:"autoAdvance"`
	StepDuration int           `json:"stepDuration"` // seconds
	TotalSteps   int           `json:"totalSteps"`
}

// run is the mutable playback state, touched only by the engine goroutine
type run struct {
	def          *Definition
	stepIndex    int
	state        PlaybackState
	autoAdvance  bool
	stepDuration time.Duration
}

type request struct {
	cmd    models.Command
	sender string
	reply  chan struct{}
	status chan Status
}

// Engine owns the single global scenario run. All command handling and
// timer ticks are serialized through one goroutine, so no two scenario
// commands execute concurrently and a disarmed ticker can never mutate
// a stopped run.
type Engine struct {
	catalog   *Catalog
	sink      EventSink
	log       *logging.LogStore
	newTicker TickerFactory

	requests chan request
	quit     chan struct{}
	done     chan struct{}

	// Owned by the engine goroutine.
	run    run
	ticker Ticker
}

// NewEngine creates a scenario engine over the given catalog and sink
func NewEngine(catalog *Catalog, sink EventSink, logStore *logging.LogStore) *Engine {
	return &Engine{
		catalog:   catalog,
		sink:      sink,
		log:       logStore,
		newTicker: newRealTicker,
		requests:  make(chan request),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		run:       run{state: StateIdle},
	}
}

// SetTickerFactory replaces the auto-advance ticker source. Call before
// Start; used by tests to simulate the clock.
func (e *Engine) SetTickerFactory(f TickerFactory) {
	e.newTicker = f
}

// Start launches the engine goroutine
func (e *Engine) Start() {
	go e.loop()
}

// Stop terminates the engine goroutine and waits for it to exit
func (e *Engine) Stop() {
	close(e.quit)
	<-e.done
}

// Handle processes one scenario command on behalf of the sending
// connection. It returns after the command and all events it emits have
// been fully processed, preserving per-connection command ordering.
func (e *Engine) Handle(cmd models.Command, sender string) {
	req := request{cmd: cmd, sender: sender, reply: make(chan struct{})}
	select {
	case e.requests <- req:
		<-req.reply
	case <-e.quit:
	}
}

// Status returns a snapshot of the current run
func (e *Engine) Status() Status {
	req := request{status: make(chan Status, 1)}
	select {
	case e.requests <- req:
		return <-req.status
	case <-e.quit:
		return Status{State: StateIdle, StepIndex: -1}
	}
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		var tickC <-chan time.Time
		if e.ticker != nil {
			tickC = e.ticker.Chan()
		}

		select {
		case req := <-e.requests:
			if req.status != nil {
				req.status <- e.status()
				continue
			}
			e.apply(req.cmd, req.sender)
			close(req.reply)
		case <-tickC:
			e.advance()
		case <-e.quit:
			e.disarm()
			return
		}
	}
}

func (e *Engine) status() Status {
	s := Status{
		StepIndex:    e.run.stepIndex,
		State:        e.run.state,
		AutoAdvance:  e.run.autoAdvance,
		StepDuration: int(e.run.stepDuration / time.Second),
	}
	if e.run.def != nil {
		s.ScenarioID = e.run.def.ID
		s.TotalSteps = len(e.run.def.Steps)
	}
	if e.run.state == StateIdle {
		s.StepIndex = -1
	}
	return s
}

func (e *Engine) apply(cmd models.Command, sender string) {
	switch cmd.Type {
	case models.CmdStartScenario:
		e.handleStart(cmd, sender)
	case models.CmdPauseScenario:
		e.handlePause(cmd, sender)
	case models.CmdResumeScenario:
		e.handleResume(cmd, sender)
	case models.CmdStopScenario:
		e.handleStop(cmd, sender)
	case models.CmdJumpToStep:
		e.handleJump(cmd, sender)
	default:
		e.reject(sender, fmt.Sprintf("Unknown scenario command: %s", cmd.Type))
	}
}

func (e *Engine) handleStart(cmd models.Command, sender string) {
	def, exists := e.catalog.Get(cmd.ScenarioID)
	if !exists {
		e.reject(sender, fmt.Sprintf("Unknown scenario: %s", cmd.ScenarioID))
		return
	}

	// Starting replaces any run already in progress.
	e.disarm()

	duration := time.Duration(cmd.StepDuration) * time.Second
	if duration <= 0 {
		duration = DefaultStepDuration
	}

	e.run = run{
		def:          def,
		stepIndex:    0,
		state:        StatePlaying,
		autoAdvance:  cmd.AutoAdvance,
		stepDuration: duration,
	}
	if cmd.AutoAdvance {
		e.ticker = e.newTicker(duration)
	}

	e.log.LogAndStore("info", "Scenario %s started (autoAdvance=%t, stepDuration=%s)", def.ID, cmd.AutoAdvance, duration)
	metrics.ScenarioStep.Set(0)

	e.sink.Broadcast(models.NewCommandAck(cmd.Type))
	e.emitStep()
}

func (e *Engine) handlePause(cmd models.Command, sender string) {
	if e.run.state != StatePlaying {
		e.reject(sender, fmt.Sprintf("Cannot pause scenario: playback is %s", e.run.state))
		return
	}

	e.disarm()
	e.run.state = StatePaused
	e.log.LogAndStore("info", "Scenario %s paused at step %d", e.run.def.ID, e.run.stepIndex)
	e.sink.Broadcast(models.NewCommandAck(cmd.Type))
}

func (e *Engine) handleResume(cmd models.Command, sender string) {
	if e.run.state != StatePaused {
		e.reject(sender, fmt.Sprintf("Cannot resume scenario: playback is %s", e.run.state))
		return
	}

	e.run.state = StatePlaying
	if e.run.autoAdvance {
		e.ticker = e.newTicker(e.run.stepDuration)
	}
	e.log.LogAndStore("info", "Scenario %s resumed at step %d", e.run.def.ID, e.run.stepIndex)
	e.sink.Broadcast(models.NewCommandAck(cmd.Type))
}

func (e *Engine) handleStop(cmd models.Command, sender string) {
	if e.run.state == StateIdle {
		e.reject(sender, "Cannot stop scenario: no scenario is active")
		return
	}

	scenarioID := e.run.def.ID
	e.reset()
	e.log.LogAndStore("info", "Scenario %s stopped", scenarioID)
	e.sink.Broadcast(models.NewCommandAck(cmd.Type))
}

func (e *Engine) handleJump(cmd models.Command, sender string) {
	if e.run.state != StatePlaying && e.run.state != StatePaused {
		e.reject(sender, fmt.Sprintf("Cannot jump to step: playback is %s", e.run.state))
		return
	}
	if cmd.StepIndex == nil {
		e.reject(sender, "jump_to_step requires a stepIndex")
		return
	}

	idx := *cmd.StepIndex
	if idx < 0 || idx >= len(e.run.def.Steps) {
		e.reject(sender, fmt.Sprintf("Step index %d out of range [0, %d)", idx, len(e.run.def.Steps)))
		return
	}

	e.run.stepIndex = idx
	metrics.ScenarioStep.Set(float64(idx))
	e.sink.Broadcast(models.NewCommandAck(cmd.Type))
	e.emitStep()
}

// advance moves the run forward one step on a ticker fire. A tick that
// arrives while not playing is ignored.
func (e *Engine) advance() {
	if e.run.state != StatePlaying {
		return
	}

	next := e.run.stepIndex + 1
	if next >= len(e.run.def.Steps) {
		scenarioID := e.run.def.ID
		e.reset()
		e.log.LogAndStore("info", "Scenario %s completed", scenarioID)
		return
	}

	e.run.stepIndex = next
	metrics.ScenarioStep.Set(float64(next))
	e.emitStep()
}

// emitStep broadcasts a scenario_update for the current step. The step
// label rides along in the flattened payload.
func (e *Engine) emitStep() {
	step := e.run.def.Steps[e.run.stepIndex]
	payload := make(map[string]interface{}, len(step.Payload)+1)
	for k, v := range step.Payload {
		payload[k] = v
	}
	if step.Label != "" {
		payload["label"] = step.Label
	}
	e.sink.Broadcast(models.NewScenarioUpdate(e.run.def.ID, e.run.stepIndex, payload))
}

func (e *Engine) reject(sender, message string) {
	e.log.LogAndStore("warning", "Scenario command rejected for %s: %s", sender, message)
	if sender != "" {
		if err := e.sink.Unicast(sender, models.NewErrorEvent(message)); err != nil {
			e.log.LogAndStore("warning", "Failed to deliver error event to %s: %v", sender, err)
		}
	}
}

func (e *Engine) disarm() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) reset() {
	e.disarm()
	e.run = run{state: StateIdle}
	metrics.ScenarioStep.Set(-1)
}
