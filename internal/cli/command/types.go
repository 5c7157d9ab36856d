package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agentbox/internal/cli/state"
	"agentbox/internal/sandbox"
)

// Env is what a command needs from the session: the sandbox it drives,
// the persisted run options, and an output sink.
type Env interface {
	Box() *sandbox.Sandbox
	State() *state.SessionState
	SaveState() error
	Printf(format string, args ...interface{})
}

// RunFunc executes one command. args holds the tokens after the command
// name; raw is the untouched remainder of the input line.
type RunFunc func(ctx context.Context, env Env, args []string, raw string) error

// Command defines a REPL command binding.
type Command struct {
	Name    string
	Usage   string
	Summary string
	MinArgs int
	Raw     bool
	Run     RunFunc
}

// ParseValue decodes one token: JSON literals become their decoded value,
// anything else stays a string.
func ParseValue(token string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(token), &v); err == nil {
		return v
	}
	return token
}

// SplitCallArgs separates positional arguments from key=value keyword
// arguments. A token counts as a keyword argument only when everything
// before the first "=" is a bare identifier.
func SplitCallArgs(tokens []string) ([]interface{}, map[string]interface{}) {
	var args []interface{}
	var kwargs map[string]interface{}
	for _, token := range tokens {
		if key, value, ok := splitKwarg(token); ok {
			if kwargs == nil {
				kwargs = make(map[string]interface{})
			}
			kwargs[key] = ParseValue(value)
			continue
		}
		args = append(args, ParseValue(token))
	}
	return args, kwargs
}

func splitKwarg(token string) (string, string, bool) {
	idx := strings.Index(token, "=")
	if idx <= 0 {
		return "", "", false
	}
	key := token[:idx]
	for _, r := range key {
		if !identRune(r) {
			return "", "", false
		}
	}
	return key, token[idx+1:], true
}

func identRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func ParseStringList(value string) []string {
	raw := strings.Split(value, ",")
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

// RenderValue formats a structured result for display.
func RenderValue(v interface{}) string {
	if v == nil {
		return "null"
	}
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(formatted)
}
