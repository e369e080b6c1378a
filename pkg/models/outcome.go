package models

import "time"

// OutcomeKind is the closed set of results a node evaluator can produce.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeSkip    OutcomeKind = "skip"
	OutcomeFail    OutcomeKind = "fail"
	OutcomePause   OutcomeKind = "pause"
)

// Outcome is what a node evaluator returns to the engine: the result
// kind, the branch label to follow for condition nodes, emitted data, and
// the resume target for a pause.
type Outcome struct {
	Kind     OutcomeKind
	Branch   string
	Data     map[string]any
	Message  string
	ResumeAt *time.Time
}

// Success returns a success outcome carrying the emitted data.
func Success(data map[string]any) *Outcome {
	return &Outcome{Kind: OutcomeSuccess, Data: data}
}

// Branched returns a success outcome routed along the given branch label.
func Branched(label string, data map[string]any) *Outcome {
	return &Outcome{Kind: OutcomeSuccess, Branch: label, Data: data}
}

// Skip returns a skip outcome; message names the reason (delay_expired,
// loop_completed, ...).
func Skip(message string, data map[string]any) *Outcome {
	return &Outcome{Kind: OutcomeSkip, Message: message, Data: data}
}

// Fail returns a failure outcome attributed to the evaluated node.
func Fail(message string) *Outcome {
	return &Outcome{Kind: OutcomeFail, Message: message}
}

// Pause returns a pause outcome that suspends the run until resumeAt.
func Pause(resumeAt time.Time, data map[string]any) *Outcome {
	return &Outcome{Kind: OutcomePause, Data: data, ResumeAt: &resumeAt}
}
