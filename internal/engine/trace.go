package engine

// StepKind labels one recorded evaluation step.
type StepKind string

const (
	// StepRule is a rule whose criteria were tested.
	StepRule StepKind = "rule"
	// StepSkip is a rule bypassed without testing criteria (unknown
	// target or parse error).
	StepSkip StepKind = "skip"
	// StepEnter marks a jump into a custom chain.
	StepEnter StepKind = "enter"
	// StepExit marks leaving a custom chain without a verdict.
	StepExit StepKind = "exit"
	// StepVerdict is the terminal decision.
	StepVerdict StepKind = "verdict"
)

// Step is one entry of an evaluation trace.
type Step struct {
	Chain     string   `json:"chain" yaml:"chain"`
	Line      int      `json:"line,omitempty" yaml:"line,omitempty"`
	Target    string   `json:"target,omitempty" yaml:"target,omitempty"`
	Kind      StepKind `json:"kind" yaml:"kind"`
	Matched   bool     `json:"matched,omitempty" yaml:"matched,omitempty"`
	Criterion string   `json:"criterion,omitempty" yaml:"criterion,omitempty"`
	Note      string   `json:"note,omitempty" yaml:"note,omitempty"`
}

// tracer collects steps during one evaluation. A nil tracer records
// nothing, so the untraced path pays only a nil check.
type tracer struct {
	steps []Step
}

func (t *tracer) add(s Step) {
	if t == nil {
		return
	}
	t.steps = append(t.steps, s)
}
