package debugger

import "fmt"

// Scripted is a canned Provider for the demo host: each Step advances
// through a fabricated program run so the panels have something to
// show without a live debugger attached.
type Scripted struct {
	events Events
	step   int
}

func NewScripted() *Scripted {
	return &Scripted{}
}

// Events exposes the provider's event sources.
func (s *Scripted) Events() *Events { return &s.events }

// Step advances the scripted run one stop and fires the Cont/Stop/
// BeforePrompt cycle the way a real debugger would.
func (s *Scripted) Step() {
	s.events.Cont.Emit(struct{}{})
	s.step++
	s.events.Stop.Emit(StopInfo{Reason: "breakpoint"})
	s.events.BeforePrompt.Emit(struct{}{})
}

func (s *Scripted) Snapshot() Snapshot {
	depth := s.step%3 + 1
	frames := make([]Frame, 0, depth+1)
	for lvl := 0; lvl <= depth; lvl++ {
		name := "main"
		if lvl < depth {
			name = fmt.Sprintf("work_%d", depth-lvl)
		}
		frames = append(frames, Frame{
			Level:    lvl,
			Name:     name,
			Selected: lvl == 0,
			Arguments: []Variable{
				{Name: "n", Value: fmt.Sprintf("%d", s.step+lvl), IsArgument: true},
			},
			Source: &SourceLocation{
				Path:  "/src/demo/demo.c",
				Short: "demo.c",
				Line:  10 + s.step*3 + lvl,
			},
		})
	}

	return Snapshot{
		Target: "demo",
		Mode:   ModeReplaying,
		Time:   TimePoint(fmt.Sprintf("%d", 1000+s.step*17)),
		Extent: LogExtent{Start: "1", End: "5000"},
		Threads: []Thread{
			{Num: 1, Name: "demo", PID: 4242, TID: 4242, Selected: true, Frame: frames[0]},
			{Num: 2, Name: "worker", PID: 4242, TID: 4243, Frame: Frame{Level: 0, Name: "poll_wait"}},
		},
		Frames: frames,
		Locals: []Variable{
			{Name: "i", Value: fmt.Sprintf("%d", s.step)},
			{Name: "total", Value: fmt.Sprintf("%d", s.step*s.step)},
		},
	}
}

var _ Provider = (*Scripted)(nil)
