package runner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spysmac/spysmac/pkg/configspace"
)

// RunArgs describes one solver call independently of the configuration.
type RunArgs struct {
	Binary   string
	Instance string
	Seed     uint64
	TempDir  string
	MemoryMB int
}

// CommandBuilder renders the argv of one solver call.
type CommandBuilder interface {
	Build(ctx context.Context, args RunArgs, cfg configspace.Configuration) ([]string, error)
}

// Callstring placeholders.
const (
	PlaceholderParams   = "<params>"
	PlaceholderInstance = "<instance>"
	PlaceholderSeed     = "<seed>"
	PlaceholderTempDir  = "<tempdir>"
)

// TemplateBuilder renders "binary callstring", where the callstring is split
// on whitespace and each token may contain placeholders. A token that is
// exactly <params> expands to one argument per active parameter, sorted by
// name, written as prefix+name+separator+value. A blank separator puts name
// and value in separate arguments.
type TemplateBuilder struct {
	Callstring string
	Prefix     string
	Separator  string
}

// NewTemplateBuilder creates a builder for callstring.
func NewTemplateBuilder(callstring, prefix, separator string) (*TemplateBuilder, error) {
	if !strings.Contains(callstring, PlaceholderInstance) {
		return nil, fmt.Errorf("callstring %q does not reference %s", callstring, PlaceholderInstance)
	}
	return &TemplateBuilder{Callstring: callstring, Prefix: prefix, Separator: separator}, nil
}

// Build implements CommandBuilder.
func (b *TemplateBuilder) Build(_ context.Context, args RunArgs, cfg configspace.Configuration) ([]string, error) {
	if args.Binary == "" {
		return nil, fmt.Errorf("no solver binary")
	}

	replacer := strings.NewReplacer(
		PlaceholderInstance, args.Instance,
		PlaceholderSeed, strconv.FormatUint(args.Seed, 10),
		PlaceholderTempDir, args.TempDir,
	)

	argv := []string{args.Binary}
	for _, tok := range strings.Fields(b.Callstring) {
		if tok == PlaceholderParams {
			argv = append(argv, b.paramArgs(cfg)...)
			continue
		}
		if strings.Contains(tok, PlaceholderParams) {
			return nil, fmt.Errorf("%s must stand alone in the callstring", PlaceholderParams)
		}
		argv = append(argv, replacer.Replace(tok))
	}
	return argv, nil
}

func (b *TemplateBuilder) paramArgs(cfg configspace.Configuration) []string {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, 2*len(names))
	for _, name := range names {
		flag := b.Prefix + name
		value := cfg[name].String()
		if strings.TrimSpace(b.Separator) == "" {
			out = append(out, flag, value)
			continue
		}
		out = append(out, flag+b.Separator+value)
	}
	return out
}
