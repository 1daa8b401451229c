package rules

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
)

// Registry is the on-disk rule catalogue.
type Registry struct {
	Version int    `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// ParseRegistryYAML decodes and validates a rule catalogue. Unknown keys are
// rejected so a misspelled threshold cannot silently disable a rule.
func ParseRegistryYAML(data []byte) (*Set, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.RuleConfiguration("", "rule registry is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var reg Registry
	if err := dec.Decode(&reg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRuleConfiguration, "decode rule registry")
	}
	if reg.Version > 1 {
		return nil, errors.RuleConfiguration("", "unsupported rule registry version")
	}
	return NewSet(reg.Rules)
}

// LoadRegistryReader reads a rule catalogue from r.
func LoadRegistryReader(r io.Reader) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRuleConfiguration, "read rule registry")
	}
	return ParseRegistryYAML(data)
}

// LoadRegistryFile loads a rule catalogue from path.
func LoadRegistryFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRuleConfiguration, "read rule registry "+path)
	}
	return ParseRegistryYAML(data)
}
