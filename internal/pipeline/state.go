package pipeline

import (
	"github.com/tjfontaine/formflow/internal/domain"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageRender   StageName = "render"
	StageInvoke   StageName = "invoke"
	StageParse    StageName = "parse"
	StageValidate StageName = "validate"
	StageFinalize StageName = "finalize"
)

// Phase is the position of a run in the state machine.
type Phase string

const (
	PhaseStart     Phase = "start"
	PhaseRendered  Phase = "rendered"
	PhaseInvoked   Phase = "invoked"
	PhaseParsed    Phase = "parsed"
	PhaseValidated Phase = "validated"
	PhaseFinalized Phase = "finalized"
	PhaseFailed    Phase = "failed"
)

var phaseAfter = map[StageName]Phase{
	StageRender:   PhaseRendered,
	StageInvoke:   PhaseInvoked,
	StageParse:    PhaseParsed,
	StageValidate: PhaseValidated,
	StageFinalize: PhaseFinalized,
}

// Request is the immutable input of one run.
type Request struct {
	Utterance string
	FormID    string
}

// State is threaded through the stages of one run. Each output field is
// written by exactly one stage; once Err is set no further stage runs. A
// State belongs to a single run and is never shared.
type State struct {
	Utterance string
	FormID    string

	Prompt    string         // render
	RawOutput string         // invoke
	Parsed    map[string]any // parse
	Validated map[string]any // validate
	Final     domain.Record  // finalize

	Err         *domain.Error
	FailedStage StageName
	Phase       Phase
}

// NewState creates the initial state for req.
func NewState(req Request) *State {
	return &State{
		Utterance: req.Utterance,
		FormID:    req.FormID,
		Phase:     PhaseStart,
	}
}

// Failed reports whether a stage has set an error.
func (s *State) Failed() bool { return s.Err != nil }

// Result converts a terminal state into the caller-visible result.
func (s *State) Result() domain.Result {
	if s.Err != nil {
		return domain.Failed(s.Err)
	}
	return domain.Succeeded(s.Final)
}

func (s *State) advance(stage StageName) {
	if p, ok := phaseAfter[stage]; ok {
		s.Phase = p
	}
}

func (s *State) fail(stage StageName, err *domain.Error) {
	s.Err = err
	s.FailedStage = stage
	s.Phase = PhaseFailed
}
