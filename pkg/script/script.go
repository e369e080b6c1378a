// Package script executes user-provided Lua snippets inside a restricted
// interpreter: a read-only copy of the lead, a small variable-store API,
// and a logging facade are the only host surfaces exposed. Scripts are
// statically screened before execution and run under a hard wall-clock
// timeout.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/leadflowhq/leadflow/pkg/models"
)

const (
	// MaxSourceBytes is the maximum accepted script size.
	MaxSourceBytes = 50 * 1024

	// DefaultTimeout bounds scripts that do not configure their own.
	DefaultTimeout = 5 * time.Second

	maxResultArrayLen = 1000
	maxResultMapKeys  = 100
)

// ErrRejected marks a script that failed static validation; it never
// reached the interpreter.
var ErrRejected = errors.New("script rejected")

// ErrTimeout marks a script that exceeded its wall-clock budget.
var ErrTimeout = errors.New("script timed out")

// Result carries the sanitized script return value plus the variables the
// script stored through setVariable and everything it logged.
type Result struct {
	Value     any            `json:"value,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Logs      []string       `json:"logs,omitempty"`
}

// forbidden lists source constructs that could escape the sandbox:
// dynamic code loading, process/filesystem access, interpreter
// introspection, and path traversal.
var forbidden = []string{
	"require",
	"dofile",
	"loadfile",
	"loadstring",
	"load(",
	"os.",
	"io.",
	"debug.",
	"package.",
	"collectgarbage",
	"getmetatable",
	"setmetatable",
	"rawset",
	"rawget",
	"../",
	"..\\",
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Runner executes sandboxed scripts.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a script runner.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger.With("module", "script_runner")}
}

// Validate statically screens a script. A rejection wraps ErrRejected and
// is a validation failure, not a runtime error.
func Validate(source string) error {
	if len(source) > MaxSourceBytes {
		return fmt.Errorf("%w: source exceeds %d bytes", ErrRejected, MaxSourceBytes)
	}

	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("%w: source is empty", ErrRejected)
	}

	for _, pattern := range forbidden {
		if strings.Contains(source, pattern) {
			return fmt.Errorf("%w: forbidden construct %q", ErrRejected, pattern)
		}
	}

	return nil
}

// Run validates and executes the script against a deep-copied view of
// the lead. vars seeds the script's variable store so values set by an
// earlier script in the same run are readable through getVariable; the
// store works on a copy, so the caller's map is never mutated directly.
// Exceeding the timeout aborts the interpreter and surfaces ErrTimeout.
func (r *Runner) Run(ctx context.Context, source string, lead *models.Lead, vars map[string]any, timeout time.Duration) (*Result, error) {
	if err := Validate(source); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer state.Close()

	openSafeLibs(state)
	state.SetContext(ctx)

	result := &Result{Variables: make(map[string]any, len(vars))}
	for key, value := range vars {
		result.Variables[key] = value
	}

	r.installHostAPI(state, lead, result)

	if err := state.DoString(source); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}

		return nil, fmt.Errorf("script failed: %w", err)
	}

	if state.GetTop() > 0 {
		result.Value = sanitizeValue(luaToGo(state.Get(-1)), 0)
	}

	return result, nil
}

// openSafeLibs loads only the base, table, string, and math libraries,
// then strips the base-library globals that allow dynamic loading or
// metatable tampering.
func openSafeLibs(state *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		state.Push(state.NewFunction(lib.fn))
		state.Push(lua.LString(lib.name))
		state.Call(1, 0)
	}

	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring", "require",
		"collectgarbage", "getmetatable", "setmetatable",
		"rawset", "rawget", "rawequal", "print", "module",
	} {
		state.SetGlobal(name, lua.LNil)
	}
}

// installHostAPI exposes the frozen lead view, the variable store, and
// the log facade. Nothing else from the host crosses into the script.
func (r *Runner) installHostAPI(state *lua.LState, lead *models.Lead, result *Result) {
	state.SetGlobal("lead", frozenLeadTable(state, lead))

	state.SetGlobal("setVariable", state.NewFunction(func(l *lua.LState) int {
		key := l.CheckString(1)
		if !identifierPattern.MatchString(key) {
			l.RaiseError("setVariable: key %q is not a valid identifier", key)
			return 0
		}

		result.Variables[key] = luaToGo(l.Get(2))

		return 0
	}))

	state.SetGlobal("getVariable", state.NewFunction(func(l *lua.LState) int {
		key := l.CheckString(1)
		if !identifierPattern.MatchString(key) {
			l.RaiseError("getVariable: key %q is not a valid identifier", key)
			return 0
		}

		l.Push(goToLua(l, result.Variables[key]))

		return 1
	}))

	state.SetGlobal("log", state.NewFunction(func(l *lua.LState) int {
		message := l.CheckString(1)
		result.Logs = append(result.Logs, message)
		r.logger.Debug("script log", "message", message)

		return 0
	}))
}

// frozenLeadTable builds a read-only proxy over a deep copy of the lead,
// so scripts observe a snapshot and have no mutation path back into the
// engine's live state.
func frozenLeadTable(state *lua.LState, lead *models.Lead) *lua.LTable {
	snapshot := lead.Clone()

	data := state.NewTable()
	state.SetField(data, "id", lua.LString(snapshot.ID))
	state.SetField(data, "ownerId", lua.LString(snapshot.OwnerID))
	state.SetField(data, "stage", lua.LString(snapshot.Stage))
	state.SetField(data, "score", lua.LNumber(snapshot.Score))
	state.SetField(data, "fields", goToLua(state, snapshot.Fields))
	state.SetField(data, "customFields", goToLua(state, snapshot.CustomFields))
	state.SetField(data, "tags", goToLua(state, stringsToAny(snapshot.Tags)))
	state.SetField(data, "audiences", goToLua(state, stringsToAny(snapshot.Audiences)))

	proxy := state.NewTable()
	meta := state.NewTable()
	state.SetField(meta, "__index", data)
	state.SetField(meta, "__newindex", state.NewFunction(func(l *lua.LState) int {
		l.RaiseError("lead is read-only")
		return 0
	}))
	state.SetMetatable(proxy, meta)

	return proxy
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}

func goToLua(state *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case float64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case []any:
		table := state.NewTable()
		for _, item := range v {
			table.Append(goToLua(state, item))
		}

		return table
	case map[string]any:
		table := state.NewTable()
		for key, item := range v {
			state.SetField(table, key, goToLua(state, item))
		}

		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

func luaToGo(value lua.LValue) any {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case *lua.LTable:
		return luaTableToGo(v)
	default:
		return v.String()
	}
}

// luaTableToGo converts a table to a slice when it is a pure array, and
// to a map otherwise.
func luaTableToGo(table *lua.LTable) any {
	length := table.Len()
	if length > 0 {
		out := make([]any, 0, length)
		for i := 1; i <= length; i++ {
			out = append(out, luaToGo(table.RawGetInt(i)))
		}

		return out
	}

	out := make(map[string]any)
	table.ForEach(func(key, item lua.LValue) {
		out[key.String()] = luaToGo(item)
	})

	return out
}

// sanitizeValue deep-sanitizes a script result before storage: arrays
// truncated at 1000 elements, maps at 100 keys, and keys starting with
// "__" or containing "prototype"/"constructor" silently dropped.
func sanitizeValue(value any, depth int) any {
	if depth > 10 {
		return nil
	}

	switch v := value.(type) {
	case []any:
		if len(v) > maxResultArrayLen {
			v = v[:maxResultArrayLen]
		}

		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item, depth+1)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			if len(out) >= maxResultMapKeys {
				break
			}

			if strings.HasPrefix(key, "__") ||
				strings.Contains(key, "prototype") ||
				strings.Contains(key, "constructor") {
				continue
			}

			out[key] = sanitizeValue(item, depth+1)
		}

		return out
	default:
		return v
	}
}
