package harness

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// parseCUE compiles a scenario written in CUE and decodes it into the same
// Scenario shape the YAML path produces. CUE scenarios can use the language's
// defaults and constraints; by the time the value reaches Decode it must be
// concrete.
func parseCUE(data []byte) (*Scenario, error) {
	ctx := cuecontext.New()

	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile cue: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("cue scenario not concrete: %w", err)
	}

	var s Scenario
	if err := v.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode cue scenario: %w", err)
	}
	return &s, nil
}
