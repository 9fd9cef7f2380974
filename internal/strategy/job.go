package strategy

// JobState is the phase of a two-step betting plan: back one competitor,
// then lay another.
type JobState int

const (
	JobIdle JobState = iota
	JobBack
	JobLay
)

func (s JobState) String() string {
	switch s {
	case JobBack:
		return "back"
	case JobLay:
		return "lay"
	default:
		return "idle"
	}
}

// JobEvent drives a Job.
type JobEvent int

const (
	EventSignal   JobEvent = iota // a new opportunity restarts the plan
	EventBackDone                 // the back leg was handled
	EventLayDone                  // the lay leg was handled
	EventReset
)

var jobTransitions = map[JobState]map[JobEvent]JobState{
	JobIdle: {
		EventSignal: JobBack,
	},
	JobBack: {
		EventSignal:   JobBack,
		EventBackDone: JobLay,
		EventReset:    JobIdle,
	},
	JobLay: {
		EventSignal:  JobBack,
		EventLayDone: JobIdle,
		EventReset:   JobIdle,
	},
}

// NextJob is the transition function. Events with no transition leave the
// state unchanged and report false.
func NextJob(s JobState, e JobEvent) (JobState, bool) {
	next, ok := jobTransitions[s][e]
	if !ok {
		return s, false
	}
	return next, true
}

// Job holds the current phase.
type Job struct {
	state JobState
}

func (j *Job) State() JobState { return j.state }

// Fire applies e and reports whether it caused a transition.
func (j *Job) Fire(e JobEvent) bool {
	next, ok := NextJob(j.state, e)
	j.state = next
	return ok
}
