package domain

import (
	"strings"
	"time"
)

// SourceKind identifies which telemetry table (or computed producer) a
// sample came from.
type SourceKind string

const (
	SourceDigital  SourceKind = "DIGITAL"
	SourceAnalog   SourceKind = "ANALOG"
	SourceUnified  SourceKind = "UNIFIED"
	SourceComputed SourceKind = "COMPUTED_STATE"
)

// Sample is one observed value of one tag at one unit at one time.
// Raw optionally carries sibling tag values from the joined source row
// so prerequisite rules can look across signals without a second query.
type Sample struct {
	UnitID    string
	Tag       string
	Value     string
	EventTime time.Time
	Source    SourceKind
	Raw       map[string]string
}

// Sibling returns a sibling tag value carried on the same source row.
// Analog columns of a joined row are prefixed "Analog" by the reader,
// so a lookup for Tag6 also tries AnalogTag6, mirroring the source
// schema where digital and analog tables share tag numbering.
func (s Sample) Sibling(tag string) (string, bool) {
	if s.Raw == nil {
		return "", false
	}
	if v, ok := s.Raw[tag]; ok {
		return v, true
	}
	if v, ok := s.Raw["Analog"+tag]; ok {
		return v, true
	}
	return "", false
}

// TableCompatible reports whether a sample from kind may satisfy a rule
// bound to the given source table. UNIFIED and COMPUTED_STATE samples
// are already reconciled across tables and bypass the check.
func TableCompatible(table string, kind SourceKind) bool {
	if table == "" {
		return true
	}
	if kind == SourceUnified || kind == SourceComputed {
		return true
	}
	if strings.EqualFold(table, TableDigital) {
		return kind == SourceDigital
	}
	return kind == SourceAnalog
}

// Source table names used by rule and prerequisite bindings.
const (
	TableDigital = "DIGITALDATA"
	TableAnalog  = "ANALOGDATA"
)
