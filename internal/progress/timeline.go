package progress

// StageState is how a timeline row is drawn.
type StageState int

const (
	Pending StageState = iota
	Active
	Done
)

// Stage is one row of the processing timeline.
type Stage struct {
	Label string
	State StageState
}

var stages = []struct {
	label      string
	activeFrom int // progress above which the stage is running
	doneAt     int
}{
	// Ready has no running phase: it is pending until progress reaches 100.
	{"Initialization", 0, 10},
	{"Text extraction", 10, 50},
	{"Chunking", 50, 70},
	{"Vector indexing", 70, 95},
	{"Ready", 100, 100},
}

// Timeline maps a progress percentage onto the five display stages.
// It depends on progress only, so it never moves backwards while progress
// is monotonic.
func Timeline(progress int) []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		st := Pending
		switch {
		case progress >= s.doneAt:
			st = Done
		case progress > s.activeFrom:
			st = Active
		}
		out[i] = Stage{Label: s.label, State: st}
	}
	return out
}
