// Package budget selects which catalog functions fit under a request's
// function-token ceiling.
//
// Selection is one ordered walk over the candidate list — required functions
// first, then ranked preferences (the order [catalog.Registry.Filtered]
// produces). A candidate that does not fit is skipped, not a stopping point:
// later, cheaper candidates may still fit. Required functions get no
// exemption from the ceiling; a required function too expensive to fit is
// skipped like any other. The freeform sentinel is never selected and never
// charged.
package budget

import (
	"log/slog"

	"github.com/frankfralick/openai-func-enums/pkg/catalog"
)

// Selector applies the function-token ceiling to candidate lists.
type Selector struct {
	log *slog.Logger
}

// New returns a Selector. A nil logger falls back to [slog.Default].
func New(log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{log: log}
}

// Select walks candidates in order and keeps every descriptor whose token
// cost still fits under ceiling, returning the kept descriptors and their
// total cost. The walk never reorders and never aborts early. A ceiling of
// zero or less means no limit.
//
// Selection is pure with respect to its inputs: the same candidates and
// ceiling always produce the same result.
func (s *Selector) Select(candidates []*catalog.FunctionDescriptor, ceiling int) ([]*catalog.FunctionDescriptor, int) {
	selected := make([]*catalog.FunctionDescriptor, 0, len(candidates))
	total := 0

	for _, d := range candidates {
		if d == nil || d.Freeform {
			continue
		}
		if ceiling > 0 && total+d.TokenCost > ceiling {
			s.log.Debug("function skipped by token budget",
				"function", d.Name,
				"cost", d.TokenCost,
				"used", total,
				"ceiling", ceiling)
			continue
		}
		selected = append(selected, d)
		total += d.TokenCost
	}
	return selected, total
}

// SelectNames resolves preferred and required name lists against the registry
// and applies Select to the resulting candidates. Unknown names vanish in
// resolution; duplicate names collapse to their first (highest-priority)
// occurrence.
func (s *Selector) SelectNames(reg *catalog.Registry, preferred, required []string, ceiling int) ([]*catalog.FunctionDescriptor, int) {
	return s.Select(reg.Filtered(preferred, required), ceiling)
}
