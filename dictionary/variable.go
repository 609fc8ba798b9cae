// Package dictionary models the decoded SPSS dictionary: variables, their
// formats and missing-value rules, value labels, multiple-response sets,
// and attributes, plus the decode pipeline that builds all of this from
// sysfile's raw records.
//
// Grounded on spec sections 4.5 and 4.6 (original_source's cooked
// dictionary model lives in rust/pspp/src/sys/cooked.rs, not retrieved
// into this pack — see DESIGN.md), following the teacher's preference for
// small, composable value types over one large struct.
package dictionary

import (
	"strings"

	"github.com/lemenkov/pspp-sub002/sysfile"
)

// Measure classifies a variable's level of measurement.
type Measure int

const (
	MeasureUnknown Measure = iota
	MeasureNominal
	MeasureOrdinal
	MeasureScale
)

// Alignment is a variable's display alignment.
type Alignment int

const (
	AlignmentUnknown Alignment = iota
	AlignmentLeft
	AlignmentRight
	AlignmentCenter
)

// VarType distinguishes numeric from string variables; a string variable
// also carries its declared (possibly "very long", multi-segment) width.
type VarType int

const (
	VarTypeNumeric VarType = iota
	VarTypeString
)

// VarRole is a variable's role in model-building (spec §3's Input/Target/
// Both/None/Partition/Split), a separate concept from VarType. SPSS system
// files carry this as the conventional `$@Role` variable attribute (an
// integer 0..5) rather than a dedicated binary field; no fixed-layout
// record for it appears anywhere in spec §6.1 or in the retrieved
// original_source, so decode.go's applyVariableRoles derives it from that
// attribute after step 8 parses variable attributes.
type VarRole int

const (
	RoleInput VarRole = iota
	RoleTarget
	RoleBoth
	RoleNone
	RolePartition
	RoleSplit
)

// MissingValueSpec records which values of a variable should be treated
// as user-missing, per spec §4.5 step 5's word encoding: 0 none, 1..3
// discrete values, -2 a range, -3 a range plus one discrete value. String
// variables only ever use the discrete form, with values up to the
// variable's width.
type MissingValueSpec struct {
	Discrete        []float64
	HasRange        bool
	Low, High       float64
	DiscreteStrings [][]byte
}

// IsSystemMissing reports whether a datum is system-missing. The case
// readers signal the system-missing sentinel with present=false, so only
// present is consulted; v is not inspected. Defined here rather than in endian because the dictionary layer is
// where numeric predicates ("is this datum user- or system-missing")
// actually get asked, per spec §4.6.
func IsSystemMissing(v float64, present bool) bool {
	return !present
}

// IsUserMissing reports whether v matches one of m's discrete or range
// rules. Only meaningful for numeric variables.
func (m MissingValueSpec) IsUserMissing(v float64) bool {
	for _, d := range m.Discrete {
		if v == d {
			return true
		}
	}
	if m.HasRange && v >= m.Low && v <= m.High {
		return true
	}
	return false
}

// IsMissing reports whether a datum is either system- or user-missing.
func (m MissingValueSpec) IsMissing(v float64, present bool) bool {
	return IsSystemMissing(v, present) || m.IsUserMissing(v)
}

// Format is a decoded print/write format specification.
type Format struct {
	Type     uint8
	Width    uint8
	Decimals uint8
}

func fromRawFormat(f sysfile.FormatSpec) Format {
	return Format{Type: f.Type, Width: f.Width, Decimals: f.Decimals}
}

// Attributes is an ordered multimap of attribute name to values, per
// spec §4.5 step 8's `name('value' 'value' …)` grammar.
type Attributes struct {
	names  []string
	values map[string][]string
}

// NewAttributes returns an empty Attributes set.
func NewAttributes() Attributes {
	return Attributes{values: make(map[string][]string)}
}

// Set replaces the values associated with name, preserving insertion
// order for new names.
func (a *Attributes) Set(name string, values []string) {
	if _, ok := a.values[name]; !ok {
		a.names = append(a.names, name)
	}
	a.values[name] = values
}

// Get returns the values associated with name, if any.
func (a Attributes) Get(name string) ([]string, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Names returns attribute names in insertion order.
func (a Attributes) Names() []string {
	return append([]string(nil), a.names...)
}

// Variable is one column of a decoded dictionary.
type Variable struct {
	Name      string
	ShortName string
	Type      VarType
	Role      VarRole
	Width     int // string width in bytes; 0 for numeric
	Print     Format
	Write     Format
	Label     string
	HasLabel  bool
	Missing   MissingValueSpec
	Measure      Measure
	Alignment    Alignment
	DisplayWidth int
	Attributes   Attributes

	// segments records, for a very-long-string variable reconstituted
	// from multiple physical string-continuation slots (spec §4.5 step
	// 4), the byte width contributed by each underlying physical slot,
	// in order, so case decoding can re-join them.
	segments []int
}

// Segments returns the physical-slot byte widths that compose v's value in
// the case layout; for an ordinary (non-very-long) variable, this is a
// single segment equal to v's Width, and for numeric variables it's a
// single 8-byte segment.
func (v Variable) Segments() []int {
	if len(v.segments) > 0 {
		return append([]int(nil), v.segments...)
	}
	if v.Type == VarTypeNumeric {
		return []int{8}
	}
	return []int{v.Width}
}

// NormalizedName returns a case-insensitive lookup key for v's name.
func NormalizedName(name string) string {
	return strings.ToUpper(name)
}
