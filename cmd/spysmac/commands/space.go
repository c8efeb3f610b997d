package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/spysmac/spysmac/pkg/configspace"
)

// loadSpace parses the PCS file at path.
func loadSpace(path string, opts ...configspace.Option) (*configspace.Space, error) {
	opts = append([]configspace.Option{configspace.WithLogger(log.Logger)}, opts...)
	space, err := configspace.ParseFile(path, opts...)
	if err != nil {
		return nil, err
	}
	return space, nil
}

// parseConfiguration reads a configuration given as a JSON object, or as
// @file holding one.
func parseConfiguration(space *configspace.Space, arg string) (configspace.Configuration, configspace.Vector, error) {
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		var err error
		data, err = os.ReadFile(arg[1:])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("configuration must be a JSON object: %w", err)
	}

	cfg, err := space.Coerce(raw)
	if err != nil {
		return nil, nil, err
	}
	vec, err := space.Encode(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, vec, nil
}

// parseVector reads comma separated floats; "nan" or an empty field marks
// an inactive position.
func parseVector(arg string) (configspace.Vector, error) {
	fields := strings.Split(arg, ",")
	vec := make(configspace.Vector, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || strings.EqualFold(f, "nan") {
			vec[i] = math.NaN()
			continue
		}
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vector entry %d %q: %w", i, f, err)
		}
		vec[i] = x
	}
	return vec, nil
}

// formatVector renders a vector in the form parseVector reads.
func formatVector(v configspace.Vector) string {
	parts := make([]string, len(v))
	for i, x := range v {
		if math.IsNaN(x) {
			parts[i] = "nan"
		} else {
			parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
	}
	return strings.Join(parts, ",")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if !jsonOutput {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// writeJSONLine writes v compactly on one line.
func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
