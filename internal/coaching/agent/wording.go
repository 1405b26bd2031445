package agent

import (
	_ "embed"
	"fmt"
	"strings"

	"dealer_coach_backend/internal/coaching/domain"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var defaultWordingYAML []byte

// Wording is the prompt text the agents use. It is data so that tone and
// policy can change without touching code.
type Wording struct {
	Styles         map[domain.Style]string            `yaml:"styles"`
	Levels         map[domain.PerformanceLevel]string `yaml:"levels"`
	ComposeRules   []string                           `yaml:"compose_rules"`
	RankerRules    []string                           `yaml:"ranker_rules"`
	TargetingRules []string                           `yaml:"targeting_rules"`
}

// DefaultWording returns the embedded wording. It panics if the embedded
// file is broken, which is a build defect.
func DefaultWording() Wording {
	w, err := ParseWording(defaultWordingYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded wording: %v", err))
	}
	return w
}

// ParseWording decodes wording YAML and checks that every style and level
// has text.
func ParseWording(data []byte) (Wording, error) {
	var w Wording
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Wording{}, fmt.Errorf("decode wording: %w", err)
	}
	for _, s := range domain.Styles {
		if strings.TrimSpace(w.Styles[s]) == "" {
			return Wording{}, fmt.Errorf("wording: style %q has no text", s)
		}
	}
	for _, l := range domain.Levels {
		if strings.TrimSpace(w.Levels[l]) == "" {
			return Wording{}, fmt.Errorf("wording: level %q has no text", l)
		}
	}
	if len(w.ComposeRules) == 0 || len(w.RankerRules) == 0 || len(w.TargetingRules) == 0 {
		return Wording{}, fmt.Errorf("wording: compose, ranker and targeting rules are required")
	}
	return w, nil
}

func bulletList(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(l))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
