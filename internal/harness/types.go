package harness

// Trace event types.
const (
	EventEdit = "edit"
	EventPass = "pass"
)

// TraceEvent records one step of a scenario run: an edit as the engine
// handled it, or one pass.
type TraceEvent struct {
	Step int    `json:"step"`
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Edit events.
	Edit   string `json:"edit,omitempty"`
	Status string `json:"status,omitempty"` // "applied" or "rejected"
	Error  string `json:"error,omitempty"`

	// Pass events.
	Frame    int64               `json:"frame,omitempty"`
	Waves    int                 `json:"waves,omitempty"`
	Complete bool                `json:"complete,omitempty"`
	Ran      []string            `json:"ran,omitempty"`
	Skipped  []string            `json:"skipped,omitempty"`
	Pending  []PendingEvent      `json:"pending,omitempty"`
	Values   map[string][]string `json:"values,omitempty"` // "processor.output" -> elements
}

// PendingEvent is one processor a pass left incomplete.
type PendingEvent struct {
	Processor string `json:"processor"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// BuildErrors holds definition problems the engine reported while
	// building the graph. The run continues with what did build.
	BuildErrors []string `json:"build_errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// stepEvent returns the trace event of step i.
func (r *Result) stepEvent(i int) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.Step == i {
			return ev, true
		}
	}
	return TraceEvent{}, false
}

// lastPass returns the last pass event.
func (r *Result) lastPass() (TraceEvent, bool) {
	for i := len(r.Trace) - 1; i >= 0; i-- {
		if r.Trace[i].Type == EventPass {
			return r.Trace[i], true
		}
	}
	return TraceEvent{}, false
}
