package configspace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const (
	namePattern   = `[^\s{}\[\]|=,#]+`
	numberPattern = `[+\-]?(?:0|[1-9]\d*)(?:\.\d*)?(?:[eE][+\-]?\d+)?`
)

var (
	categoricalLine = regexp.MustCompile(
		`^\s*(?P<name>` + namePattern + `)\s*\{(?P<values>[^}]*)\}\s*\[(?P<default>[^\]]*)\](?P<misc>.*)$`)
	numericLine = regexp.MustCompile(
		`^\s*(?P<name>` + namePattern + `)\s*\[\s*(?P<min>` + numberPattern + `)\s*,\s*(?P<max>` + numberPattern +
			`)\s*\]\s*\[\s*(?P<default>` + numberPattern + `)\s*\](?P<misc>.*)$`)
	conditionLine = regexp.MustCompile(
		`^\s*(?P<dependent>` + namePattern + `)\s*\|\s*(?P<head>` + namePattern + `)\s+in\s*\{(?P<values>[^}]*)\}\s*$`)
	forbiddenLine = regexp.MustCompile(`^\s*\{(?P<literals>[^}]*)\}\s*$`)
)

// Parse reads a space definition. Each non-blank line, after stripping
// comments starting at '#', declares one of:
//
//	name {v1, v2, ...} [default]          categorical parameter
//	name [min, max] [default] flags       numeric parameter; flags "i" (integer) and "l" (log scale)
//	dependent | head in {v1, v2, ...}     condition
//	{name1=value1, name2=value2, ...}     forbidden clause
//
// Forms are tried in that order and the first match wins. Any other line
// is a definition error carrying its line number.
func Parse(r io.Reader, opts ...Option) (*Space, error) {
	b := NewBuilder(opts...)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := b.parseLine(line, lineNo); err != nil {
			return nil, b.lineErr(err, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read space definition: %w", err)
	}

	return b.Build()
}

// ParseString parses a definition held in memory.
func ParseString(s string, opts ...Option) (*Space, error) {
	return Parse(strings.NewReader(s), opts...)
}

// ParseFile parses the definition at path. Errors name the file.
func ParseFile(path string, opts ...Option) (*Space, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open space definition: %w", err)
	}
	defer f.Close()

	return Parse(f, append(opts, WithSource(path))...)
}

func (b *Builder) parseLine(line string, lineNo int) error {
	if m := categoricalLine.FindStringSubmatch(line); m != nil {
		return b.parseCategorical(m)
	}
	if m := numericLine.FindStringSubmatch(line); m != nil {
		return b.parseNumeric(m)
	}
	if m := conditionLine.FindStringSubmatch(line); m != nil {
		values, err := splitValues(m[conditionLine.SubexpIndex("values")])
		if err != nil {
			return err
		}
		return b.addCondition(
			m[conditionLine.SubexpIndex("dependent")],
			m[conditionLine.SubexpIndex("head")],
			values, lineNo)
	}
	if m := forbiddenLine.FindStringSubmatch(line); m != nil {
		literals, err := splitLiterals(m[forbiddenLine.SubexpIndex("literals")])
		if err != nil {
			return err
		}
		return b.addForbidden(literals, lineNo)
	}

	return NewDefinitionError(fmt.Sprintf("unrecognized line %q", strings.TrimSpace(line)), nil).
		WithCode(ErrCodeSyntax)
}

func (b *Builder) parseCategorical(m []string) error {
	name := m[categoricalLine.SubexpIndex("name")]
	values, err := splitValues(m[categoricalLine.SubexpIndex("values")])
	if err != nil {
		return err
	}
	def := strings.TrimSpace(m[categoricalLine.SubexpIndex("default")])
	return b.AddCategorical(name, values, def)
}

func (b *Builder) parseNumeric(m []string) error {
	name := m[numericLine.SubexpIndex("name")]

	nums := make([]float64, 3)
	for i, group := range []string{"min", "max", "default"} {
		x, err := strconv.ParseFloat(m[numericLine.SubexpIndex(group)], 64)
		if err != nil {
			return NewDefinitionError(fmt.Sprintf("invalid %s", group), err).
				WithCode(ErrCodeSyntax).WithParameter(name)
		}
		nums[i] = x
	}

	misc := m[numericLine.SubexpIndex("misc")]
	kind := KindReal
	if strings.Contains(misc, "i") {
		kind = KindInteger
	}
	log := strings.Contains(misc, "l")

	return b.AddNumeric(name, kind, nums[0], nums[1], nums[2], log)
}

func splitValues(s string) ([]string, error) {
	parts := strings.Split(s, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			return nil, NewDefinitionError(fmt.Sprintf("empty value in {%s}", s), nil).WithCode(ErrCodeSyntax)
		}
		values = append(values, v)
	}
	return values, nil
}

func splitLiterals(s string) ([]Literal, error) {
	pairs, err := splitValues(s)
	if err != nil {
		return nil, err
	}
	literals := make([]Literal, 0, len(pairs))
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, NewDefinitionError(fmt.Sprintf("forbidden literal %q is not name=value", pair), nil).
				WithCode(ErrCodeSyntax)
		}
		name, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if name == "" || value == "" {
			return nil, NewDefinitionError(fmt.Sprintf("forbidden literal %q is not name=value", pair), nil).
				WithCode(ErrCodeSyntax)
		}
		literals = append(literals, Literal{Name: name, Value: value})
	}
	return literals, nil
}
