package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"

	"agentbox/internal/cli/command"
	"agentbox/internal/cli/state"
	"agentbox/internal/sandbox"
)

const prompt = "agentbox> "

// Session holds REPL state.
type Session struct {
	box          *sandbox.Sandbox
	commands     map[string]command.Command
	sessionState *state.SessionState
	statePath    string
	rl           *readline.Instance
	outputWriter *bufio.Writer
}

func New(box *sandbox.Sandbox, commands map[string]command.Command, sessionState *state.SessionState, statePath, historyFile string) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init readline failed: %w", err)
	}
	return &Session{
		box:          box,
		commands:     commands,
		sessionState: sessionState,
		statePath:    statePath,
		rl:           rl,
		outputWriter: bufio.NewWriter(os.Stdout),
	}, nil
}

// Box, State, SaveState, and Printf satisfy command.Env.
func (s *Session) Box() *sandbox.Sandbox      { return s.box }
func (s *Session) State() *state.SessionState { return s.sessionState }
func (s *Session) SaveState() error           { return state.Save(s.statePath, *s.sessionState) }
func (s *Session) Printf(format string, args ...interface{}) {
	s.printLine(format, args...)
}

func (s *Session) Run(ctx context.Context) {
	defer func() { _ = s.rl.Close() }()
	for {
		line, err := s.readInput()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			s.printLine("bye")
			return
		}
		if err != nil {
			s.printLine("read input failed: %v", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if s.handleSystemCommand(line) {
			continue
		}

		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

// readInput reads one logical line, joining continuations marked by a
// trailing backslash.
func (s *Session) readInput() (string, error) {
	line, err := s.rl.Readline()
	if err != nil {
		return "", err
	}
	for strings.HasSuffix(strings.TrimRight(line, " \t"), "\\") {
		line = strings.TrimSuffix(strings.TrimRight(line, " \t"), "\\")
		s.rl.SetPrompt("... ")
		next, err := s.rl.Readline()
		s.rl.SetPrompt(prompt)
		if err != nil {
			return "", err
		}
		line = line + "\n" + next
	}
	return line, nil
}

func (s *Session) handleSystemCommand(line string) bool {
	if line == "help" {
		s.printHelp()
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		s.printLine("usage: set workdir|searchpath|deps <value>")
		return
	}
	value := parts[1]
	switch parts[0] {
	case "workdir":
		if value == "none" {
			s.sessionState.WorkingDir = ""
		} else {
			s.sessionState.WorkingDir = value
		}
	case "searchpath":
		if value == "none" {
			s.sessionState.ExtraSearchPaths = nil
		} else {
			s.sessionState.ExtraSearchPaths = command.ParseStringList(value)
		}
	case "deps":
		if value == "none" {
			s.sessionState.Dependencies = nil
		} else {
			s.sessionState.Dependencies = command.ParseStringList(value)
		}
	default:
		s.printLine("unknown set command")
		return
	}
	if err := s.SaveState(); err != nil {
		s.printLine("save session state failed: %v", err)
		return
	}
	s.printLine("%s updated", parts[0])
}

func (s *Session) handleShow(args string) {
	switch args {
	case "state":
		s.printLine("workdir: %s", orPlaceholder(s.sessionState.WorkingDir))
		s.printLine("searchpath: %s", orPlaceholder(strings.Join(s.sessionState.ExtraSearchPaths, ",")))
		s.printLine("deps: %s", orPlaceholder(strings.Join(s.sessionState.Dependencies, ",")))
	case "config":
		s.printLine("statePath: %s", s.statePath)
		s.printLine("isolation: %s", s.box.Mode())
	default:
		s.printLine("usage: show state|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	cmd, ok := s.commands[tokens[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s (try help)", tokens[0])
	}
	args := tokens[1:]
	if len(args) < cmd.MinArgs {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	raw := strings.TrimSpace(strings.TrimPrefix(line, tokens[0]))

	// An interrupt cancels the running child, not the session.
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return cmd.Run(runCtx, s, args, raw)
}

func (s *Session) printHelp() {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	s.printLine("commands:")
	for _, name := range names {
		cmd := s.commands[name]
		s.printLine("  %-52s %s", cmd.Usage, cmd.Summary)
	}
	s.printLine("system: help | exit | set workdir|searchpath|deps <value> | show state|config")
	s.printLine("values: JSON literals decode, everything else stays a string; key=value become keyword arguments")
}

func orPlaceholder(value string) string {
	if value == "" {
		return "<unset>"
	}
	return value
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.outputWriter, format+"\n", args...)
	_ = s.outputWriter.Flush()
}
