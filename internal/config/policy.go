package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nadavgross/faculty-rag/internal/core/langguard"
	"github.com/nadavgross/faculty-rag/internal/core/usecase"
)

// Policy bundles the injectable product configuration: routing phrase lists
// and the language guard's script table and thresholds.
type Policy struct {
	Routing  usecase.RoutingPolicy
	Language langguard.Config
}

type policyFile struct {
	Greetings       []string `yaml:"greetings"`
	NumericTriggers []string `yaml:"numeric_triggers"`
	ResetCommands   []string `yaml:"reset_commands"`
	MinQueryLen     *int     `yaml:"min_query_len"`

	Language struct {
		Unwanted                []langguard.Category `yaml:"unwanted_scripts"`
		QueryHebrewThreshold    *float64             `yaml:"query_hebrew_threshold"`
		DocumentHebrewThreshold *float64             `yaml:"document_hebrew_threshold"`
	} `yaml:"language"`
}

// LoadPolicy reads policy overrides from a YAML file. An empty path returns
// the built-in defaults; fields absent from the file keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := Policy{
		Routing:  usecase.DefaultRoutingPolicy(),
		Language: langguard.DefaultConfig(),
	}
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read policy file %s: %w", path, err)
	}
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return policy, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	if len(file.Greetings) > 0 {
		policy.Routing.Greetings = file.Greetings
	}
	if len(file.NumericTriggers) > 0 {
		policy.Routing.NumericTriggers = file.NumericTriggers
	}
	if len(file.ResetCommands) > 0 {
		policy.Routing.ResetCommands = file.ResetCommands
	}
	if file.MinQueryLen != nil && *file.MinQueryLen > 0 {
		policy.Routing.MinQueryLen = *file.MinQueryLen
	}

	if len(file.Language.Unwanted) > 0 {
		policy.Language.Unwanted = file.Language.Unwanted
	}
	if t := file.Language.QueryHebrewThreshold; t != nil && *t > 0 {
		policy.Language.QueryHebrewThreshold = *t
	}
	if t := file.Language.DocumentHebrewThreshold; t != nil && *t > 0 {
		policy.Language.DocumentHebrewThreshold = *t
	}
	return policy, nil
}
