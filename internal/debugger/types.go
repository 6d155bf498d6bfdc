// Package debugger defines the data the UI presents and the host-side
// event plumbing it subscribes to. The values arrive pre-validated
// from the debugger's own extraction layer; nothing here reformats or
// interprets them.
package debugger

// Variable is one name/value pair in a frame.
type Variable struct {
	Name       string
	Value      string
	IsArgument bool
}

// SourceLocation points into the debuggee's source.
type SourceLocation struct {
	Path  string // full path
	Short string // display name
	Line  int
}

// Frame is one stack frame.
type Frame struct {
	Level     int
	Name      string
	Arguments []Variable
	Selected  bool
	Source    *SourceLocation // nil when unknown
}

// Thread is one debuggee thread with its current frame.
type Thread struct {
	Num      int
	Name     string
	PID      int
	TID      int
	Selected bool
	Frame    Frame
}

// TimePoint is an opaque marker in recorded execution time.
type TimePoint string

// LogExtent is the recorded range the debugger can travel within.
type LogExtent struct {
	Start TimePoint
	End   TimePoint
}

// ExecutionMode is how the debugger is currently driving the debuggee.
type ExecutionMode string

const (
	ModeNone      ExecutionMode = "not running"
	ModeRecording ExecutionMode = "recording"
	ModeReplaying ExecutionMode = "replaying"
)

// Snapshot is everything the panels show for one stop of the
// debuggee.
type Snapshot struct {
	Target string
	Mode   ExecutionMode
	Time   TimePoint
	Extent LogExtent

	Threads []Thread
	Frames  []Frame
	Locals  []Variable
}

// SelectedFrame returns the selected frame, or nil.
func (s Snapshot) SelectedFrame() *Frame {
	for i := range s.Frames {
		if s.Frames[i].Selected {
			return &s.Frames[i]
		}
	}
	return nil
}

// Provider supplies snapshots. Called on the host context only: the
// underlying debugger state is single-threaded.
type Provider interface {
	Snapshot() Snapshot
}
