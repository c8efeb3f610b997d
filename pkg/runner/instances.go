package runner

import (
	"bufio"
	"fmt"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// instanceSuffixes are the file endings picked up when walking a directory.
var instanceSuffixes = []string{".cnf", ".cnf.gz"}

// FindInstances resolves an instance reference. A directory is walked for
// .cnf and .cnf.gz files; any other file is read as a list of instance
// paths, one per line, with relative entries resolved against the list's
// directory. Listed files that do not exist are skipped with a warning.
func FindInstances(ref string, logger zerolog.Logger) ([]string, error) {
	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to stat instances %s: %w", ref, err)
	}

	var found []string
	if info.IsDir() {
		found, err = walkInstances(ref)
	} else {
		found, err = readInstanceList(ref, logger)
	}
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no instances found in %s", ref)
	}

	sort.Strings(found)
	logger.Debug().Str("ref", ref).Int("count", len(found)).Msg("Instances found")
	return found, nil
}

func walkInstances(dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, suffix := range instanceSuffixes {
			if strings.HasSuffix(d.Name(), suffix) {
				found = append(found, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return found, nil
}

func readInstanceList(path string, logger zerolog.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open instance list: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	seen := make(map[string]bool)
	var found []string

	sc := bufio.NewScanner(f)
	for lineNo := 1; sc.Scan(); lineNo++ {
		entry := strings.TrimSpace(sc.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		if !filepath.IsAbs(entry) {
			entry = filepath.Join(dir, entry)
		}
		if _, err := os.Stat(entry); err != nil {
			logger.Warn().
				Str("list", path).
				Int("line", lineNo).
				Str("instance", entry).
				Msg("Instance not found, skipping")
			continue
		}
		if seen[entry] {
			continue
		}
		seen[entry] = true
		found = append(found, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read instance list: %w", err)
	}
	return found, nil
}

// Split shuffles instances with rng and holds out ⌊n·fraction⌋ of them for
// testing. Both sides must be non-empty.
func Split(instances []string, fraction float64, rng *rand.Rand) (train, test []string, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction %g is outside (0, 1)", fraction)
	}

	shuffled := append([]string(nil), instances...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	k := int(math.Floor(float64(len(shuffled)) * fraction))
	test, train = shuffled[:k], shuffled[k:]
	if len(test) == 0 || len(train) == 0 {
		return nil, nil, fmt.Errorf("cannot split %d instances with fraction %g: need at least one training and one test instance",
			len(instances), fraction)
	}

	sort.Strings(train)
	sort.Strings(test)
	return train, test, nil
}

// SplitExplicit uses separately given training and test instance sets.
func SplitExplicit(trainRef, testRef string, logger zerolog.Logger) (train, test []string, err error) {
	train, err = FindInstances(trainRef, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("training instances: %w", err)
	}
	test, err = FindInstances(testRef, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("test instances: %w", err)
	}
	return train, test, nil
}
