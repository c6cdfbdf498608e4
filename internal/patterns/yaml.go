package patterns

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// PatternsFileName is the optional user pattern file under the app dir.
const PatternsFileName = "patterns.yaml"

// filePattern is the serializable subset of Pattern: user-defined steps
// are always static, with raw-output extraction.
type filePattern struct {
	Name  string `yaml:"name"`
	Match string `yaml:"match"`
	Steps []struct {
		ID       string `yaml:"id"`
		Command  string `yaml:"command"`
		Extract  string `yaml:"extract,omitempty"`
		Optional bool   `yaml:"optional,omitempty"`
	} `yaml:"steps"`
}

// LoadFile registers user-defined static patterns from a YAML file. A
// missing file is not an error.
func LoadFile(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("patterns: read %s: %w", path, err)
	}

	var file struct {
		Patterns []filePattern `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("patterns: parse %s: %w", path, err)
	}

	for _, fp := range file.Patterns {
		matcher, err := regexp.Compile(fp.Match)
		if err != nil {
			return fmt.Errorf("patterns: pattern %q: bad regex: %w", fp.Name, err)
		}
		p := &Pattern{Name: fp.Name, Matcher: matcher}
		for _, s := range fp.Steps {
			p.Sequence = append(p.Sequence, Step{
				ID:       s.ID,
				Command:  Command{Static: s.Command},
				Extract:  s.Extract,
				Optional: s.Optional,
			})
		}
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}
