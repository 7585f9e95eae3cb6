package detect

import (
	"fmt"

	"github.com/dprod-run/dprod/internal/domain"
	"github.com/rs/zerolog/log"
)

// Detector is the capability set each framework detector implements (§9
// "polymorphism of detectors"): a pure predicate plus a config producer.
// The ordered list of Detectors is data, not control flow.
type Detector interface {
	Name() string
	CanHandle(tree *Tree) bool
	GetConfig(tree *Tree) (domain.Config, error)
}

// Engine runs first-match dispatch over a fixed, ordered detector list.
type Engine struct {
	detectors []Detector
}

// NewEngine builds the engine with the fixed detection order required by
// §4.1: nodejs, python, go, static, generic. generic must always be last —
// it always reports CanHandle=true.
func NewEngine() *Engine {
	return &Engine{
		detectors: []Detector{
			NewNodeJSDetector(),
			NewPythonDetector(),
			NewGoDetector(),
			NewStaticDetector(),
			NewGenericDetector(),
		},
	}
}

// NewEngineWithDetectors builds an engine from an explicit detector list,
// for tests that want to exercise fallthrough without the whole family.
func NewEngineWithDetectors(detectors ...Detector) *Engine {
	return &Engine{detectors: detectors}
}

// Detect walks path and dispatches to the first detector whose CanHandle
// reports true. A detector that errors on a malformed manifest is treated
// as a fallthrough to the next detector (§4.1 error policy) — the fault is
// logged but never surfaced as a job failure, since generic guarantees a
// Config always comes back.
func (e *Engine) Detect(path string) (domain.Config, error) {
	tree, err := Walk(path)
	if err != nil {
		return domain.Config{}, fmt.Errorf("walking bundle tree: %w", err)
	}
	return e.DetectTree(tree)
}

// DetectTree runs dispatch against an already-built Tree, useful for tests
// and for callers that already have a Tree from elsewhere.
func (e *Engine) DetectTree(tree *Tree) (domain.Config, error) {
	for _, d := range e.detectors {
		handled, cfg := e.tryDetector(d, tree)
		if handled {
			return cfg, nil
		}
	}
	// Unreachable as long as generic is present: generic.CanHandle is
	// always true. Reserved per §7's DetectionError for completeness.
	return domain.Config{}, fmt.Errorf("detection: no detector produced a config")
}

func (e *Engine) tryDetector(d Detector, tree *Tree) (bool, domain.Config) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("detector", d.Name()).Interface("panic", r).Msg("detector panicked, falling through")
		}
	}()

	if !d.CanHandle(tree) {
		return false, domain.Config{}
	}

	cfg, err := d.GetConfig(tree)
	if err != nil {
		log.Warn().Str("detector", d.Name()).Err(err).Msg("detector failed to produce config, falling through")
		return false, domain.Config{}
	}
	return true, cfg
}
