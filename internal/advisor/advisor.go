// Package advisor defines the optional advisory-agent seam (A8, §9): a
// pure, non-authoritative layer that may propose an alternative detection
// Config and later learn whether its suggestion worked out. The core
// pipeline never depends on one being configured.
package advisor

import (
	"context"

	"github.com/dprod-run/dprod/internal/domain"
)

// Advisor proposes a Config for a detected project and is later told
// whether that proposal led to a successful deployment. Implementations
// must be safe to call from multiple workers concurrently.
type Advisor interface {
	// Advise may return the ruleConfig unchanged, or an enriched Config it
	// recommends instead. confidence is advisor-defined and carries no
	// meaning to the core pipeline beyond being logged. decisionID is
	// opaque and threaded through JobMessage.DecisionID so a later
	// VerifyOutcome call can be correlated back to this recommendation.
	Advise(ctx context.Context, ruleConfig domain.Config, projectFiles map[string][]byte) (cfg domain.Config, decisionID string, confidence float64, err error)

	// VerifyOutcome reports whether the deployment that used decisionID's
	// recommendation succeeded. Implementations may use this for learning;
	// the core pipeline does not wait on it or act on its result.
	VerifyOutcome(ctx context.Context, decisionID string, success bool, note string) error
}

// NoopAdvisor is the default Advisor: it always defers to the rule-based
// Config it was given and discards outcome reports. The core pipeline runs
// unchanged whether or not a real advisor is wired in (§9 "must not be a
// hard dependency").
type NoopAdvisor struct{}

var _ Advisor = NoopAdvisor{}

func (NoopAdvisor) Advise(_ context.Context, ruleConfig domain.Config, _ map[string][]byte) (domain.Config, string, float64, error) {
	return ruleConfig, "", 0, nil
}

func (NoopAdvisor) VerifyOutcome(_ context.Context, _ string, _ bool, _ string) error {
	return nil
}
