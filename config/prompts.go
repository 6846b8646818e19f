package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptConfig is the bias-analysis prompt template.
type PromptConfig struct {
	SystemPrompt SystemPrompt      `yaml:"system_prompt"`
	Labels       map[string]string `yaml:"labels"`
}

type SystemPrompt struct {
	Role         string       `yaml:"role"`
	Task         string       `yaml:"task"`
	Rules        []string     `yaml:"rules"`
	OutputFormat OutputFormat `yaml:"output_format"`
}

type OutputFormat struct {
	Type      string            `yaml:"type"`
	Structure map[string]string `yaml:"structure"`
}

// LoadPromptConfig reads the prompt file at path. A missing file falls
// back to the embedded default.
func LoadPromptConfig(path string) (*PromptConfig, bool, error) {
	data, err := os.ReadFile(path)
	embedded := false
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("reading prompt file: %w", err)
		}
		data = defaultPrompts
		embedded = true
	}

	pc, err := ParsePromptConfig(data)
	if err != nil {
		return nil, false, fmt.Errorf("parsing prompt file %s: %w", path, err)
	}
	return pc, embedded, nil
}

// DefaultPromptConfig returns the embedded prompt template.
func DefaultPromptConfig() *PromptConfig {
	pc, err := ParsePromptConfig(defaultPrompts)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts.yaml is invalid: %v", err))
	}
	return pc
}

// BuildSystemPrompt renders the template as the system message.
func (pc *PromptConfig) BuildSystemPrompt() string {
	var b strings.Builder

	b.WriteString(pc.SystemPrompt.Role)
	b.WriteString("\n\n")
	b.WriteString(pc.SystemPrompt.Task)
	b.WriteString("\n\n")

	if len(pc.SystemPrompt.Rules) > 0 {
		b.WriteString("Rules:\n")
		for _, r := range pc.SystemPrompt.Rules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}

	if len(pc.Labels) > 0 {
		b.WriteString("Labels:\n")
		for _, k := range sortedKeys(pc.Labels) {
			fmt.Fprintf(&b, "  %s: %s\n", k, pc.Labels[k])
		}
		b.WriteString("\n")
	}

	format := pc.SystemPrompt.OutputFormat.Type
	if format == "" {
		format = "JSON"
	}
	fmt.Fprintf(&b, "Respond ONLY with a %s object, no markdown and no text before or after it, with these fields:\n", format)
	for _, k := range sortedKeys(pc.SystemPrompt.OutputFormat.Structure) {
		fmt.Fprintf(&b, "  %q: %s\n", k, pc.SystemPrompt.OutputFormat.Structure[k])
	}

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ParsePromptConfig(data []byte) (*PromptConfig, error) {
	var pc PromptConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return nil, err
	}
	if pc.SystemPrompt.Role == "" || pc.SystemPrompt.Task == "" {
		return nil, errors.New("system_prompt.role and system_prompt.task are required")
	}
	return &pc, nil
}
