package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/cjeanneret/OpalFocus/internal/hw/camera"
	"github.com/cjeanneret/OpalFocus/internal/logic/focus"
)

// shell is the interactive terminal surface over a focus controller.
// Commands return immediately; session outcomes are printed as they land.
type shell struct {
	ctrl    *focus.Controller
	out     io.Writer
	pending sync.WaitGroup
}

func newShell(ctrl *focus.Controller, out io.Writer) *shell {
	return &shell{ctrl: ctrl, out: out}
}

// run reads commands until quit, EOF or ctx cancellation.
func (s *shell) run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "focus> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("auto"),
			readline.PcItem("manual"),
			readline.PcItem("drag"),
			readline.PcItem("commit"),
			readline.PcItem("apply"),
			readline.PcItem("status"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	s.out = rl.Stdout()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			fmt.Fprintln(s.out, "Exiting...")
			return nil
		}
		if s.execute(line) {
			s.pending.Wait()
			return nil
		}
	}
}

// execute runs one command line and reports whether the shell should exit.
func (s *shell) execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "auto", "a":
		s.report(s.ctrl.SetAuto())
	case "manual", "m":
		if p, ok := s.position(args); ok {
			s.dispatch(s.ctrl.SetManual(p))
		}
	case "drag", "d":
		if p, ok := s.position(args); ok {
			if camera.ValidatePosition(p) != nil {
				fmt.Fprintf(s.out, "ignored: %d is outside %d-%d\n", p, camera.MinPosition, camera.MaxPosition)
				break
			}
			s.ctrl.DragPreview(p)
			fmt.Fprintf(s.out, "position %d (not applied, use commit)\n", p)
		}
	case "commit", "c":
		if p, ok := s.position(args); ok {
			s.dispatch(s.ctrl.Commit(p))
		}
	case "apply":
		s.report(s.ctrl.Apply())
	case "status", "s":
		s.printStatus()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "unknown command %q, type help\n", cmd)
	}
	return false
}

func (s *shell) position(args []string) (int, bool) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: <command> <position 0-255>")
		return 0, false
	}
	p, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "invalid position %q\n", args[0])
		return 0, false
	}
	return p, true
}

func (s *shell) dispatch(d *focus.Dispatch, err error) {
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.report(d)
}

// report prints the dispatch now and its outcome when the session ends.
func (s *shell) report(d *focus.Dispatch) {
	fmt.Fprintf(s.out, "#%d %s dispatched\n", d.Seq, d.Mode)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := d.Wait(); err != nil {
			fmt.Fprintf(s.out, "#%d failed: %v\n", d.Seq, err)
			var ce *camera.ControlError
			if errors.As(err, &ce) && ce.Hint() != "" {
				fmt.Fprintln(s.out, ce.Hint())
			}
			return
		}
		fmt.Fprintf(s.out, "#%d %s applied\n", d.Seq, d.Mode)
	}()
}

func (s *shell) printStatus() {
	st := s.ctrl.State()
	fmt.Fprintf(s.out, "mode:      %s\n", st.Mode)
	fmt.Fprintf(s.out, "applied:   %s\n", st.Applied)
	fmt.Fprintf(s.out, "position:  %d\n", st.Position)
	fmt.Fprintf(s.out, "in flight: %d\n", st.InFlight)
	fmt.Fprintf(s.out, "status:    %s\n", st.Status)
}

func (s *shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  auto            enable autofocus
  manual <p>      fix the lens at position p (0-255)
  drag <p>        move the displayed position without applying it
  commit <p>      apply position p (end of a drag)
  apply           re-send the current mode
  status          show controller state
  help            show this help
  quit            exit
`)
}
