package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spysmac/spysmac/pkg/configspace"
)

var testConfig = configspace.Configuration{
	"restarts": configspace.Categorical("luby"),
	"decay":    configspace.Real(0.95),
	"budget":   configspace.Integer(200),
}

var testArgs = RunArgs{
	Binary:   "/opt/minisat",
	Instance: "/data/my inst.cnf",
	Seed:     42,
	TempDir:  "/tmp/run-1",
	MemoryMB: 2000,
}

func TestTemplateBuilder(t *testing.T) {
	tests := []struct {
		name       string
		callstring string
		prefix     string
		separator  string
		want       []string
	}{
		{
			name:       "default layout",
			callstring: "<params> <instance>",
			prefix:     "--",
			separator:  "=",
			want:       []string{"/opt/minisat", "--budget=200", "--decay=0.95", "--restarts=luby", "/data/my inst.cnf"},
		},
		{
			name:       "space separator",
			callstring: "<instance> -seed <seed> <params>",
			prefix:     "-",
			separator:  " ",
			want: []string{"/opt/minisat", "/data/my inst.cnf", "-seed", "42",
				"-budget", "200", "-decay", "0.95", "-restarts", "luby"},
		},
		{
			name:       "placeholders inside tokens",
			callstring: "--input=<instance> --proof=<tempdir>/proof.out",
			prefix:     "--",
			separator:  "=",
			want:       []string{"/opt/minisat", "--input=/data/my inst.cnf", "--proof=/tmp/run-1/proof.out"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewTemplateBuilder(tt.callstring, tt.prefix, tt.separator)
			require.NoError(t, err)
			got, err := b.Build(context.Background(), testArgs, testConfig)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplateBuilder_Errors(t *testing.T) {
	_, err := NewTemplateBuilder("<params>", "--", "=")
	assert.Error(t, err)

	b, err := NewTemplateBuilder("x<params> <instance>", "--", "=")
	require.NoError(t, err)
	_, err = b.Build(context.Background(), testArgs, testConfig)
	assert.Error(t, err)

	b, err = NewTemplateBuilder("<instance>", "--", "=")
	require.NoError(t, err)
	_, err = b.Build(context.Background(), RunArgs{Instance: "a.cnf"}, testConfig)
	assert.Error(t, err)
}

const claspScript = `
def command_line(runargs, config):
    cmd = "%s %s --seed %d" % (runargs["binary"], runargs["instance"], runargs["seed"])
    for name in sorted(config.keys()):
        cmd += " --%s=%s" % (name, config[name])
    return cmd
`

func TestStarlarkBuilder_String(t *testing.T) {
	b, err := NewStarlarkBuilder("clasp.star", claspScript, 0, zerolog.Nop())
	require.NoError(t, err)

	got, err := b.Build(context.Background(), RunArgs{Binary: "clasp", Instance: "a.cnf", Seed: 3}, testConfig)
	require.NoError(t, err)
	assert.Equal(t, []string{"clasp", "a.cnf", "--seed", "3", "--budget=200", "--decay=0.95", "--restarts=luby"}, got)
}

func TestStarlarkBuilder_List(t *testing.T) {
	script := `
def get_command_line_cmd(runargs, config):
    args = [runargs["binary"], "--mem", runargs["memory"], runargs["instance"]]
    if config["restarts"] == "luby":
        args.append("--luby")
    return args
`
	b, err := NewStarlarkBuilder("riss.star", script, 0, zerolog.Nop())
	require.NoError(t, err)

	got, err := b.Build(context.Background(), testArgs, testConfig)
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/minisat", "--mem", "2000", "/data/my inst.cnf", "--luby"}, got)
}

func TestStarlarkBuilder_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builder.star")
	require.NoError(t, os.WriteFile(path, []byte(claspScript), 0o644))

	b, err := NewStarlarkBuilderFromFile(path, time.Second, zerolog.Nop())
	require.NoError(t, err)
	got, err := b.Build(context.Background(), RunArgs{Binary: "clasp", Instance: "a.cnf", Seed: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"clasp", "a.cnf", "--seed", "1"}, got)

	_, err = NewStarlarkBuilderFromFile(filepath.Join(t.TempDir(), "missing.star"), 0, zerolog.Nop())
	assert.Error(t, err)
}

func TestStarlarkBuilder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		build  bool
		want   string
	}{
		{name: "syntax", script: "def command_line(:\n", want: "starlark"},
		{name: "no entry point", script: "x = 1\n", want: "does not define"},
		{name: "not a function", script: "command_line = 3\n", want: "not a function"},
		{name: "runtime failure", script: "def command_line(r, c):\n    return c['missing']\n", build: true, want: "starlark execution failed"},
		{name: "bad return", script: "def command_line(r, c):\n    return 5\n", build: true, want: "want string or list"},
		{name: "empty command", script: "def command_line(r, c):\n    return ''\n", build: true, want: "empty"},
		{
			name:   "timeout",
			script: "def command_line(r, c):\n    n = 0\n    for i in range(100000000):\n        n += i\n    return str(n)\n",
			build:  true,
			want:   "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewStarlarkBuilder("test.star", tt.script, 50*time.Millisecond, zerolog.Nop())
			if !tt.build {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.want)
				return
			}
			require.NoError(t, err)
			_, err = b.Build(context.Background(), testArgs, testConfig)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
