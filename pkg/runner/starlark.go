package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/spysmac/spysmac/pkg/configspace"
)

// DefaultScriptTimeout bounds a single command_line call.
const DefaultScriptTimeout = 5 * time.Second

// scriptEntryPoints are the function names a builder script may define, in
// order of preference.
var scriptEntryPoints = []string{"command_line", "get_command_line_cmd"}

// StarlarkBuilder renders commands with a user script. The script defines
//
//	def command_line(runargs, config):
//	    return "%s %s --seed %d" % (runargs["binary"], runargs["instance"], runargs["seed"])
//
// where runargs holds instance, seed, binary, tempdir and memory, and config
// maps active parameter names to their values. The result is a string,
// split on whitespace, or a list of arguments.
type StarlarkBuilder struct {
	name    string
	fn      starlark.Callable
	timeout time.Duration
	logger  zerolog.Logger
}

// NewStarlarkBuilderFromFile loads a builder script from path.
func NewStarlarkBuilderFromFile(path string, timeout time.Duration, logger zerolog.Logger) (*StarlarkBuilder, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read builder script: %w", err)
	}
	return NewStarlarkBuilder(path, string(src), timeout, logger)
}

// NewStarlarkBuilder compiles script and looks up its entry point.
func NewStarlarkBuilder(name, script string, timeout time.Duration, logger zerolog.Logger) (*StarlarkBuilder, error) {
	if timeout == 0 {
		timeout = DefaultScriptTimeout
	}
	logger = logger.With().Str("component", "starlark").Str("script", name).Logger()

	thread := newThread(name, logger)
	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}

	globals, err := starlark.ExecFile(thread, name, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}
	globals.Freeze()

	for _, entry := range scriptEntryPoints {
		v, ok := globals[entry]
		if !ok {
			continue
		}
		fn, ok := v.(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("%s in %s is a %s, not a function", entry, name, v.Type())
		}
		return &StarlarkBuilder{name: name, fn: fn, timeout: timeout, logger: logger}, nil
	}
	return nil, fmt.Errorf("%s does not define %s", name, strings.Join(scriptEntryPoints, " or "))
}

func newThread(name string, logger zerolog.Logger) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug().Str("output", msg).Msg("Script print")
		},
	}
}

// Build implements CommandBuilder.
func (b *StarlarkBuilder) Build(ctx context.Context, args RunArgs, cfg configspace.Configuration) ([]string, error) {
	runargs, err := toStarlarkValue(map[string]any{
		"instance": args.Instance,
		"seed":     int64(args.Seed),
		"binary":   args.Binary,
		"tempdir":  args.TempDir,
		"memory":   args.MemoryMB,
	})
	if err != nil {
		return nil, err
	}

	config := make(map[string]any, len(cfg))
	for name, v := range cfg {
		switch v.Kind() {
		case configspace.KindCategorical:
			config[name] = v.Str()
		case configspace.KindInteger:
			config[name] = v.Int()
		case configspace.KindReal:
			config[name] = v.Float()
		}
	}
	configVal, err := toStarlarkValue(config)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	thread := newThread(b.name, b.logger)
	type result struct {
		val starlark.Value
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		v, err := starlark.Call(thread, b.fn, starlark.Tuple{runargs, configVal}, nil)
		resultCh <- result{v, err}
	}()

	var res result
	select {
	case <-callCtx.Done():
		thread.Cancel("timeout")
		return nil, fmt.Errorf("starlark execution timeout after %v", b.timeout)
	case res = <-resultCh:
	}
	if res.err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", res.err)
	}

	return commandFromValue(res.val)
}

// commandFromValue accepts a command string or a list of arguments.
func commandFromValue(v starlark.Value) ([]string, error) {
	var argv []string
	switch val := v.(type) {
	case starlark.String:
		argv = strings.Fields(string(val))
	case *starlark.List, starlark.Tuple:
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, err
		}
		for _, item := range goVal.([]any) {
			argv = append(argv, fmt.Sprint(item))
		}
	default:
		return nil, fmt.Errorf("command_line returned %s, want string or list", v.Type())
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command_line returned an empty command")
	}
	return argv, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			goVal, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goVal
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
