// Package policy provides the severity-dependent gating rules.
package policy

import "github.com/ehs-platform/services/noncompliance/internal/model"

// MinRCADepth returns the minimum analysis depth required before an RCA can
// be approved for a case of the given severity. Stateless; safe for
// concurrent use.
func MinRCADepth(severity model.Severity) int {
	switch severity {
	case model.SeverityCritical:
		return 5
	case model.SeverityMajor:
		return 3
	default:
		return 2
	}
}

// RequiresContainment reports whether validation of a case with the given
// severity requires non-empty containment actions.
func RequiresContainment(severity model.Severity) bool {
	return severity == model.SeverityCritical
}
