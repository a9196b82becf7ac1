// Package warnings defines the warning taxonomy accumulated across the
// dispense calculation pipeline. Warnings are additive: stages only ever
// append, and consumers deduplicate by (type, field) before display.
package warnings

// Type identifies the kind of discrepancy being reported. The set is closed;
// anything that does not fit an existing type uses TypeOther.
type Type string

const (
	TypeInactiveNDC      Type = "inactive_ndc"
	TypeOverfill         Type = "overfill"
	TypeUnderfill        Type = "underfill"
	TypeStrengthMismatch Type = "strength_mismatch"
	TypeUnitMismatch     Type = "unit_mismatch"
	TypeMissingNDC       Type = "missing_ndc"
	TypeInvalidSig       Type = "invalid_sig"
	TypeUnresolvedRxCUI  Type = "unresolved_rxcui"
	TypeOther            Type = "other"
)

// Severity is the display severity of a warning.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Warning is a single non-fatal finding from the pipeline.
type Warning struct {
	Type     Type              `json:"type"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Field    string            `json:"field,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// New creates a warning without field or details.
func New(t Type, sev Severity, message string) Warning {
	return Warning{Type: t, Severity: sev, Message: message}
}

// WithField returns a copy of the warning scoped to a field.
func (w Warning) WithField(field string) Warning {
	w.Field = field
	return w
}

// Dedupe returns the warnings with duplicate (type, field) pairs removed,
// keeping the first occurrence. The input slice is not modified.
func Dedupe(ws []Warning) []Warning {
	type key struct {
		t Type
		f string
	}
	seen := make(map[key]bool, len(ws))
	out := make([]Warning, 0, len(ws))
	for _, w := range ws {
		k := key{w.Type, w.Field}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, w)
	}
	return out
}
