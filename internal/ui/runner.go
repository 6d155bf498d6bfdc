package ui

import (
	"io"
	"os"

	tea "charm.land/bubbletea/v2"

	"github.com/periscope-debug/periscope/internal/execctx"
)

// Runner owns a bubbletea program for the lifetime of one UI session.
// It satisfies the controller's runner contract and the dispatch sink:
// callbacks posted to it are delivered as messages into the program's
// event loop, so they run interleaved with key and resize handling.
type Runner struct {
	ctx     *execctx.Context
	model   *Model
	program *tea.Program
}

// NewRunner wires a model to a program reading and writing the real
// terminal. The returned runner is inert until Run is called.
func NewRunner(model *Model, input io.Reader, output io.Writer) *Runner {
	r := &Runner{
		ctx:   execctx.New("ui"),
		model: model,
	}
	r.program = tea.NewProgram(
		model,
		tea.WithInput(input),
		tea.WithOutput(output),
	)
	return r
}

// NewRunnerOnTTY is NewRunner for a real terminal pair.
func NewRunnerOnTTY(model *Model, in, out *os.File) *Runner {
	return NewRunner(model, in, out)
}

func (r *Runner) Context() *execctx.Context { return r.ctx }

// Post delivers fn into the program's event loop. Safe from any
// goroutine, including before Run has started.
func (r *Runner) Post(fn func()) {
	r.program.Send(execMsg{fn: fn})
}

// SendSnapshot refreshes the data panels.
func (r *Runner) SendSnapshot(s tea.Msg) {
	r.program.Send(s)
}

// Run drives the program until Quit. ready fires from the event loop
// goroutine once the model has initialized, after which posted
// callbacks are guaranteed to execute.
func (r *Runner) Run(ready func()) error {
	r.model.SetOnReady(ready)
	r.ctx.Bind()
	defer r.ctx.Unbind()
	_, err := r.program.Run()
	return err
}

// Quit asks the event loop to exit. Run returns once in-flight
// messages have drained.
func (r *Runner) Quit() {
	r.program.Quit()
}
