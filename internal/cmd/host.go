package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/periscope-debug/periscope/internal/app"
	"github.com/periscope-debug/periscope/internal/config"
	"github.com/periscope-debug/periscope/internal/debugger"
	"github.com/periscope-debug/periscope/internal/dispatch"
	"github.com/periscope-debug/periscope/internal/fatal"
	"github.com/periscope-debug/periscope/internal/hostloop"
	"github.com/periscope-debug/periscope/internal/logging"
	"github.com/periscope-debug/periscope/internal/relay"
	"github.com/periscope-debug/periscope/internal/telemetry"
	"github.com/periscope-debug/periscope/internal/termio"
	"github.com/periscope-debug/periscope/internal/ui"
)

// host ties the whole demo together: the relay session, the host loop
// running a small debugger-flavored REPL, and the lifecycle controller
// that turns the UI on and off.
type host struct {
	loop     *hostloop.Loop
	bridge   *dispatch.Bridge
	session  *relay.Session
	provider *debugger.Scripted
	ctrl     *app.Controller

	// master receives injected commands; nil without a relay session.
	master io.Writer

	scrollback int
}

func runHost(cmd *cobra.Command) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = config.Path()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closer.Close()

	telemetry.InitDefault(cfg.Telemetry.Enabled, cfg.Telemetry.Endpoint)
	defer telemetry.Default().FlushSync()

	h := &host{
		loop:       hostloop.New(),
		provider:   debugger.NewScripted(),
		scrollback: cfg.Terminal.Scrollback,
	}
	h.bridge = dispatch.NewBridge(h.loop)

	session, err := relay.Start(relay.Options{
		Interactive: isatty.IsTerminal(os.Stdin.Fd()),
		RequestUIStop: func() {
			if h.ctrl != nil {
				h.ctrl.RequestStop()
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "periscope: %v; running without the terminal UI\n", err)
		slog.Warn("Relay unavailable", "error", err)
	}
	h.session = session
	if session != nil {
		h.master = session.Master()
	}

	h.ctrl = app.NewController(h.bridge, h.runnerFactory, h.hooks())
	if session != nil {
		session.WatchHost(h.loop)
	}

	go fatal.Goroutine("repl", h.repl)()
	h.loop.Run()

	if session != nil {
		select {
		case <-session.Done():
		case <-time.After(3 * time.Second):
			slog.Warn("Relay did not drain in time")
		}
	}
	return nil
}

// hooks wires the controller to the relay plumbing; all of them stay
// nil-safe when the relay refused to start.
func (h *host) hooks() app.Hooks {
	if h.session == nil {
		return app.Hooks{}
	}
	s := h.session
	return app.Hooks{
		SetSink: func(sink func(data []byte) bool) {
			s.SetSink(sink)
		},
		Announce: s.Control().Send,
		ResetTTY: func() {
			termio.Reset(s.Real().FDs()[1])
		},
		AllowCtrlC: func() {
			if err := termio.AllowCtrlC(s.Real().FDs()[0]); err != nil {
				slog.Warn("Re-enabling ctrl-c failed", "error", err)
			}
		},
		Passthrough: s.Passthrough,
		Geometry: func() (lines, cols int) {
			w, h, err := term.GetSize(uintptr(s.Real().FDs()[1]))
			if err != nil || w == 0 || h == 0 {
				return 24, 80
			}
			return h, w
		},
	}
}

// runnerFactory builds the bubbletea runner for a fresh instance and
// subscribes it to the debugger feed.
func (h *host) runnerFactory(inst *app.Instance) (app.Runner, error) {
	if h.session == nil {
		return nil, relay.ErrUnsupported
	}

	inst.Screen().SetHistoryLimit(h.scrollback)
	model := ui.NewModel(inst.Screen(), h.session.Master(), ui.DefaultTheme())
	model.SetOnDetach(h.ctrl.RequestStop)
	in, out, _ := h.session.Real().Files()
	runner := ui.NewRunner(model, in, out)

	subs := inst.Subs()
	push := dispatch.Wrap0(subs, func() {
		runner.SendSnapshot(ui.Snapshot(h.provider.Snapshot()))
	})
	disconnect := h.provider.Events().BeforePrompt.Connect(func(struct{}) { push() })
	subs.OnUnsubscribe(disconnect)

	// Seed the panels; the program queues the message until it runs.
	push()
	return runner, nil
}

// repl reads host commands from the (relayed) standard input and runs
// them on the host loop. EOF or "quit" terminates the loop.
func (h *host) repl() {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("(periscope) ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit := false
		if !h.loop.Post(func() { quit = h.command(line) }) {
			return
		}
		// Commands run asynchronously; resync before prompting again.
		if err := h.loop.Call(func() {}); err != nil {
			return
		}
		if quit {
			break
		}
	}
	h.loop.Close()
}

// command executes one REPL line on the host context. Returns true on
// quit.
func (h *host) command(line string) bool {
	defer h.provider.Events().BeforePrompt.Emit(struct{}{})

	if rest, ok := strings.CutPrefix(line, "exec "); ok {
		h.execInMaster(strings.TrimSpace(rest))
		return false
	}

	switch line {
	case "ui enable":
		if err := h.ctrl.Start(); err != nil {
			fmt.Println("error:", err)
			telemetry.Default().Track(telemetry.EventUIStartFailed, map[string]any{"error": err.Error()})
			return false
		}
		telemetry.Default().Track(telemetry.EventUIEnable, nil)
	case "ui disable":
		if err := h.ctrl.Stop(); err != nil {
			fmt.Println("error:", err)
			return false
		}
		telemetry.Default().Track(telemetry.EventUIDisable, nil)
	case "step", "s":
		h.provider.Step()
		fmt.Println("stopped:", "breakpoint")
	case "status":
		snap := h.provider.Snapshot()
		fmt.Printf("%s %s at time %s\n", snap.Target, snap.Mode, snap.Time)
	case "quit", "q":
		return true
	case "help", "h":
		fmt.Println("commands: ui enable, ui disable, step, status, exec <cmd>, quit")
	default:
		fmt.Println("unknown command:", line)
	}
	return false
}

// execInMaster types cmd into the relayed prompt on the user's behalf.
func (h *host) execInMaster(cmd string) {
	if h.master == nil {
		fmt.Println("error: no pseudo-terminal session")
		return
	}
	if cmd == "" {
		fmt.Println("usage: exec <cmd>")
		return
	}
	if err := debugger.Exec(h.master, cmd); err != nil {
		fmt.Println("error:", err)
	}
}
