package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_YAMLDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scenario.yaml", `
binary: ./bin/minisat
pcs_file: minisat.pcs
instances: instances/
cutoff: 60
num_procs: 4
policies: [policies/]
watch_policies: true
disabled_policies: [restarts]
`)

	s, err := NewLoader(zerolog.Nop()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "bin/minisat"), s.Binary)
	assert.Equal(t, filepath.Join(dir, "minisat.pcs"), s.PCSFile)
	assert.Equal(t, filepath.Join(dir, "instances"), s.Instances)
	assert.Equal(t, []string{filepath.Join(dir, "policies")}, s.Policies)
	assert.True(t, s.WatchPolicies)
	assert.Equal(t, []string{"restarts"}, s.DisabledPolicies)
	assert.Equal(t, filepath.Join(dir, DefaultStore), s.Store)

	assert.Equal(t, 60.0, s.Cutoff)
	assert.Equal(t, 200*60.0, s.WallClock)
	assert.Equal(t, 4, s.NumProcs)
	assert.Equal(t, 1, s.Repetitions)
	assert.Equal(t, uint64(1), s.Seed)
	assert.Equal(t, 0.5, s.ValidationFraction)
	assert.Equal(t, 2000, s.MemoryMB)
	assert.Equal(t, "--", s.Prefix)
	assert.Equal(t, "=", s.Separator)
	assert.Equal(t, "<params> <instance>", s.Callstring)
	assert.Equal(t, dir, s.Dir)
}

func TestLoader_BinaryOnPath(t *testing.T) {
	s, err := NewLoader(zerolog.Nop()).LoadString(`
binary: minisat
pcs_file: a.pcs
instances: list.txt
seed: 0
`, "yaml")
	require.NoError(t, err)
	assert.Equal(t, "minisat", s.Binary)
	assert.Equal(t, uint64(0), s.Seed)
}

func TestLoader_CUE(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scenario.cue", `
binary:    "/opt/solver"
pcs_file:  "space.pcs"
instances: "train.txt"
cutoff:    10
seed:      7
remote: {
	host: "solver-01"
	user: "bench"
	stage_instances: true
}
`)

	s, err := NewLoader(zerolog.Nop()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/solver", s.Binary)
	assert.Equal(t, uint64(7), s.Seed)
	assert.Equal(t, 2000.0, s.WallClock)
	require.NotNil(t, s.Remote)
	assert.Equal(t, "solver-01", s.Remote.Host)
	assert.Equal(t, 22, s.Remote.Port)
	assert.True(t, s.Remote.StageInstances)
}

func TestLoader_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  string
		want    string
	}{
		{
			name:    "missing binary",
			content: "pcs_file: a.pcs\ninstances: dir\n",
			format:  "yaml",
			want:    "binary",
		},
		{
			name:    "unknown key",
			content: "binary: s\npcs_file: a.pcs\ninstances: dir\ncutof: 10\n",
			format:  "yaml",
			want:    "cutof",
		},
		{
			name:    "negative cutoff",
			content: "binary: s\npcs_file: a.pcs\ninstances: dir\ncutoff: -1\n",
			format:  "yaml",
			want:    "cutoff",
		},
		{
			name:    "fraction out of range",
			content: `{"binary": "s", "pcs_file": "a.pcs", "instances": "dir", "validation_fraction": 1.5}`,
			format:  "json",
			want:    "validation_fraction",
		},
		{
			name:    "callstring without instance",
			content: "binary: s\npcs_file: a.pcs\ninstances: dir\ncallstring: \"<params>\"\n",
			format:  "yaml",
			want:    "callstring",
		},
		{
			name:    "cue syntax",
			content: "binary: \"s\"\npcs_file: {",
			format:  "cue",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(zerolog.Nop()).LoadString(tt.content, tt.format)
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %T: %v", err, err)
			assert.NotEmpty(t, verrs)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoader_StructValidation(t *testing.T) {
	l := NewLoader(zerolog.Nop())

	s := Default()
	err := l.Validate(s)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	paths := make([]string, len(verrs))
	for i, v := range verrs {
		paths[i] = v.Path
	}
	assert.Contains(t, paths, "Scenario.Binary")
	assert.Contains(t, paths, "Scenario.PCSFile")

	s.Binary, s.PCSFile, s.Instances = "solver", "a.pcs", "dir"
	assert.NoError(t, l.Validate(s))

	s.Remote = &Remote{Host: "bad host name!", User: "u", Port: 22}
	assert.Error(t, l.Validate(s))
}

func TestLoader_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scenario.toml", "binary = 's'")
	_, err := NewLoader(zerolog.Nop()).Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestScenario_YAML(t *testing.T) {
	s := Default()
	s.Binary = "solver"
	out, err := s.YAML()
	require.NoError(t, err)
	assert.Contains(t, out, "binary: solver")
	assert.Contains(t, out, "cutoff: 900")
}

func TestWatcher_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "space.pcs", "a {x, y} [x]\n")
	other := writeFile(t, dir, "other.txt", "ignored")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	w := NewWatcher(zerolog.Nop()).WithDebounce(20 * time.Millisecond)
	go func() {
		done <- w.Watch(ctx, []string{path}, func(p string) { changed <- p })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte("still ignored"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("a {x, y, z} [x]\n"), 0o644))

	select {
	case p := <-changed:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, abs, p)
	case <-ctx.Done():
		t.Fatal("no change reported")
	}

	cancel()
	assert.NoError(t, <-done)
}
