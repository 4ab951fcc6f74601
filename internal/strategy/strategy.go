// Package strategy implements the position state machines that turn
// continuous indicator series into discrete per-bar position signals.
//
// Every variant is an explicit finite-state machine: a pure Step function
// (state, reading) -> (state, position) folded over the input series. State
// is a small per-variant record (current position, counters), never shared
// across runs. All machines are causal: the position at bar t depends only on
// readings[0..t].
//
// Shared mechanics:
//
//   - Hysteresis: entry thresholds are larger in magnitude than exit
//     thresholds, so a value can't toggle the position at a single boundary.
//   - Confirmation: an entry fires only when its predicate held on every one
//     of the trailing confirm_bars bars. Tracked as a consecutive-satisfying
//     counter, so a failing or non-finite bar restarts confirmation.
//   - Cooldown: after any transition the new position is frozen for
//     cooldown_bars bars.
//   - Non-finite readings hold the current position and count toward neither
//     confirmation nor cooldown decay.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"tradewind/internal/domain"
)

// Inputs bundles the indicator series a generator may consume. Generators
// read only the fields they need; all populated slices must share one index.
type Inputs struct {
	Close    []float64
	EMASlow  []float64
	EMARatio []float64
	HistNorm []float64
	Shock    []float64
	Dist     []float64
	Vol      []float64
}

// Generator produces a full position series from indicator inputs.
type Generator func(in Inputs) ([]int, error)

// Registry holds a named collection of position generators for lookup and
// enumeration.
type Registry struct {
	generators map[string]Generator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

// Register adds a generator under the given name, replacing any previous
// entry.
func (r *Registry) Register(name string, g Generator) {
	r.generators[name] = g
}

// Get retrieves a generator by name. The second return value indicates
// whether it was found.
func (r *Registry) Get(name string) (Generator, bool) {
	g, ok := r.generators[name]
	return g, ok
}

// List returns a sorted slice of all registered generator names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// normalizeMode applies the long_short default and validates the result.
func normalizeMode(m domain.Mode) (domain.Mode, error) {
	if m == "" {
		m = domain.ModeLongShort
	}
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q", m)
	}
	return m, nil
}

// bumpConfirm advances a consecutive-satisfying counter: +1 when the
// predicate held this bar, reset to zero otherwise.
func bumpConfirm(counter int, satisfied bool) int {
	if satisfied {
		return counter + 1
	}
	return 0
}
