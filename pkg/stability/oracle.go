// Package stability implements the reference stability oracle described
// in spec §4.3: a fixed regex table mapping component ids to a scalar in
// [0, 1], higher meaning "changes less often". The table is the single
// source of determinism for the oracle — there is no learned or runtime
// component to it.
package stability

import (
	"regexp"

	"github.com/kaito-project/chunkah/pkg/component"
)

// Rule is one entry of the stability table: the first Rule whose Pattern
// matches a component id wins.
type Rule struct {
	Pattern *regexp.Regexp
	Score   float64
}

// defaultScore is assigned to any component that matches no rule —
// typically a leaf application package.
const defaultScore = 0.5

// floorScore is always assigned to component.Unattributed.
const floorScore = 0.0

// Table is the ordered list of rules evaluated by Score. Core system
// components are listed first with the highest scores, so the packer
// emits their layers after those of less stable components; packages
// matching none of these patterns fall back to defaultScore.
var Table = []Rule{
	{regexp.MustCompile(`^rpm/(filesystem|setup|glibc|bash|coreutils)$`), 0.99},
	{regexp.MustCompile(`^rpm/(kernel|kernel-core|kernel-modules)`), 0.97},
	{regexp.MustCompile(`^rpm/(glibc-common|ncurses|zlib|openssl-libs|libgcc|libstdc\+\+)`), 0.95},
	{regexp.MustCompile(`^rpm/(systemd|dbus|util-linux|shadow-utils)`), 0.9},
	{regexp.MustCompile(`^rpm/(yum|dnf|rpm|curl|ca-certificates)`), 0.8},
}

// Score returns the stability scalar for id in [0, 1]. Rules are
// evaluated in Table order; the first match wins. component.Unattributed
// always yields floorScore regardless of the table.
func Score(id component.ID) float64 {
	if id == component.Unattributed {
		return floorScore
	}
	for _, rule := range Table {
		if rule.Pattern.MatchString(id) {
			return rule.Score
		}
	}
	return defaultScore
}

// Oracle assigns a stability score to a component id. The reference
// implementation is the package-level Score function; Oracle exists so
// callers (and tests) can substitute a different table without touching
// the packer.
type Oracle interface {
	Score(id component.ID) float64
}

// Reference is the Oracle backed by Table.
type Reference struct{}

func (Reference) Score(id component.ID) float64 { return Score(id) }
