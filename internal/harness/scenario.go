package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario declares one soak run.
type Scenario struct {
	// Name uniquely identifies the scenario (also the golden file name).
	Name string `yaml:"name" json:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Producers is the number of concurrent producer goroutines.
	Producers int `yaml:"producers" json:"producers"`

	// MessagesPerProducer is how many messages each producer posts.
	MessagesPerProducer int `yaml:"messagesPerProducer" json:"messagesPerProducer"`

	// Types lists the message kinds each producer cycles through, in order.
	Types []string `yaml:"types" json:"types"`

	// Listeners lists the kinds that get a registered collector.
	Listeners []string `yaml:"listeners" json:"listeners"`

	// Detach lists kinds whose collector is registered and then torn down
	// before the run starts, so their pending messages must be skipped.
	Detach []string `yaml:"detach,omitempty" json:"detach,omitempty"`

	// TickMillis is the consumer's per-tick wait budget in milliseconds.
	// Zero means the 2ms default.
	TickMillis int `yaml:"tickMillis,omitempty" json:"tickMillis,omitempty"`

	// SessionToken fixes the session token for deterministic traces.
	// Empty means a fresh UUIDv7.
	SessionToken string `yaml:"sessionToken,omitempty" json:"sessionToken,omitempty"`

	// Assertions to evaluate against the finished run.
	Assertions []Assertion `yaml:"assertions" json:"assertions"`
}

// TickBudget returns the consumer wait budget.
func (s *Scenario) TickBudget() time.Duration {
	if s.TickMillis <= 0 {
		return 2 * time.Millisecond
	}
	return time.Duration(s.TickMillis) * time.Millisecond
}

// Total returns the total number of messages the scenario posts.
func (s *Scenario) Total() int {
	return s.Producers * s.MessagesPerProducer
}

// ExpectedPerKind returns how many messages of kind one producer posts.
func (s *Scenario) ExpectedPerKind(kind string) int {
	n := 0
	for i := 0; i < s.MessagesPerProducer; i++ {
		if s.Types[i%len(s.Types)] == kind {
			n++
		}
	}
	return n
}

// Validate checks the scenario for structural problems before running.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario: name is required")
	}
	if s.Producers < 1 {
		return fmt.Errorf("scenario %s: producers must be >= 1", s.Name)
	}
	if s.MessagesPerProducer < 1 {
		return fmt.Errorf("scenario %s: messagesPerProducer must be >= 1", s.Name)
	}
	if len(s.Types) == 0 {
		return fmt.Errorf("scenario %s: at least one message type is required", s.Name)
	}
	for _, kind := range s.Types {
		if !slices.Contains(KnownKinds, kind) {
			return fmt.Errorf("scenario %s: unknown message kind %q", s.Name, kind)
		}
	}
	for _, kind := range s.Listeners {
		if !slices.Contains(KnownKinds, kind) {
			return fmt.Errorf("scenario %s: unknown listener kind %q", s.Name, kind)
		}
	}
	for _, kind := range s.Detach {
		if !slices.Contains(KnownKinds, kind) {
			return fmt.Errorf("scenario %s: unknown detach kind %q", s.Name, kind)
		}
		if slices.Contains(s.Listeners, kind) {
			return fmt.Errorf("scenario %s: kind %q cannot be both listened and detached", s.Name, kind)
		}
	}
	for i, a := range s.Assertions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("scenario %s: assertion %d: %w", s.Name, i, err)
		}
	}
	return nil
}

// LoadScenario reads a scenario from a YAML (.yaml/.yml) or CUE (.cue) file
// and validates it.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s *Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		s, err = parseYAML(data)
	case ".cue":
		s, err = parseCUE(data)
	default:
		return nil, fmt.Errorf("scenario %s: unsupported extension (want .yaml, .yml or .cue)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseYAML(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
