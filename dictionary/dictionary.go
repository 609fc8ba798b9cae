package dictionary

import (
	"github.com/tidwall/btree"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ValueLabels maps raw 8-byte values (numeric bit patterns or left-
// justified string bytes) to display labels for one variable.
type ValueLabels struct {
	byValue map[[8]byte]string
	order   []([8]byte)
}

// NewValueLabels returns an empty ValueLabels.
func NewValueLabels() ValueLabels {
	return ValueLabels{byValue: make(map[[8]byte]string)}
}

// Set associates raw with label, in insertion order.
func (vl *ValueLabels) Set(raw [8]byte, label string) {
	if _, ok := vl.byValue[raw]; !ok {
		vl.order = append(vl.order, raw)
	}
	vl.byValue[raw] = label
}

// Get returns the label associated with raw, if any.
func (vl ValueLabels) Get(raw [8]byte) (string, bool) {
	l, ok := vl.byValue[raw]
	return l, ok
}

// Len reports how many labels are defined.
func (vl ValueLabels) Len() int { return len(vl.order) }

// CategorySource identifies how a multiple-response set's "counted value"
// is determined, per spec §6.1's `C`/`D`/`E` grammar.
type CategorySource int

const (
	CategorySourceVarList CategorySource = iota // C: categories are the variables' own value labels
	CategorySourceDichotomies                    // D: dichotomies, no counted value
	CategorySourceCountedValue                   // E: dichotomies with one explicit counted value
)

// MultipleResponseSet groups several dictionary variables that together
// represent one logical multiple-response question.
type MultipleResponseSet struct {
	Name         string
	Label        string
	Source       CategorySource
	CountedValue []byte // present iff Source == CategorySourceCountedValue
	Variables    []string
}

// VariableSet names a user-defined grouping of variables for UI display
// (spec §3, decoded from extension record subtype 5).
type VariableSet struct {
	Name      string
	Variables []string
}

// Dictionary is an ordered collection of Variables plus the set-level
// metadata (value labels, mrsets, attributes, weight, encoding) that a
// decoded system file carries.
//
// Grounded on spec §4.6 (lookup by name, declared-order iteration,
// mutation hooks for the writer, encoding as a read-only property); the
// case-insensitive name index uses github.com/tidwall/btree rather than a
// bare map so that future range-style queries (e.g. "variables whose name
// starts with…") stay cheap, matching the rest of this module's domain-
// stack wiring.
type Dictionary struct {
	Encoding string

	variables []Variable
	byName    btree.Map[string, int]

	valueLabels  map[string]ValueLabels // keyed by normalized variable name
	mrsets       []MultipleResponseSet
	variableSets []VariableSet
	attributes   Attributes
	weightVar    string
	hasWeight    bool
	documents    []string
}

// New returns an empty Dictionary for the given text encoding.
func New(encoding string) *Dictionary {
	return &Dictionary{
		Encoding:    encoding,
		valueLabels: make(map[string]ValueLabels),
		attributes:  NewAttributes(),
	}
}

// AddVariable appends v to the dictionary, indexing it by its (normalized)
// name. It returns false without modifying the dictionary if the name
// already exists.
func (d *Dictionary) AddVariable(v Variable) bool {
	key := NormalizedName(v.Name)
	if _, exists := d.byName.Get(key); exists {
		return false
	}
	idx := len(d.variables)
	d.variables = append(d.variables, v)
	d.byName.Set(key, idx)
	return true
}

// Variable looks up a variable by name, case-insensitively.
func (d *Dictionary) Variable(name string) (Variable, bool) {
	idx, ok := d.byName.Get(NormalizedName(name))
	if !ok {
		return Variable{}, false
	}
	return d.variables[idx], true
}

// VariableIndex returns the declared-order position of name, or -1.
func (d *Dictionary) VariableIndex(name string) int {
	idx, ok := d.byName.Get(NormalizedName(name))
	if !ok {
		return -1
	}
	return idx
}

// ReplaceVariable overwrites the variable at position idx, used by decode
// steps that progressively enrich a variable (long names, formats,
// labels) after it is first added.
func (d *Dictionary) ReplaceVariable(idx int, v Variable) {
	oldKey := NormalizedName(d.variables[idx].Name)
	newKey := NormalizedName(v.Name)
	if oldKey != newKey {
		d.byName.Delete(oldKey)
		d.byName.Set(newKey, idx)
	}
	d.variables[idx] = v
}

// Variables returns the dictionary's variables in declared order.
func (d *Dictionary) Variables() []Variable {
	return append([]Variable(nil), d.variables...)
}

// Len returns the number of variables.
func (d *Dictionary) Len() int { return len(d.variables) }

// RemoveVariables deletes the variables at the given declared-order
// indices in one pass and returns a map from each surviving variable's
// old index to its new one, so callers holding their own index-keyed
// state (e.g. a physical-slot-to-dictionary-index map built during
// variable construction) can stay in sync. Indices that don't survive
// are absent from the returned map.
func (d *Dictionary) RemoveVariables(indices []int) map[int]int {
	if len(indices) == 0 {
		return nil
	}
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	remap := make(map[int]int, len(d.variables))
	kept := make([]Variable, 0, len(d.variables))
	for i, v := range d.variables {
		if drop[i] {
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, v)
	}
	d.variables = kept
	d.byName = btree.Map[string, int]{}
	for i, v := range d.variables {
		d.byName.Set(NormalizedName(v.Name), i)
	}
	return remap
}

// SetValueLabels installs the value-label set for a variable.
func (d *Dictionary) SetValueLabels(variableName string, labels ValueLabels) {
	d.valueLabels[NormalizedName(variableName)] = labels
}

// ValueLabelsFor returns the value labels for a variable, if any.
func (d *Dictionary) ValueLabelsFor(variableName string) (ValueLabels, bool) {
	vl, ok := d.valueLabels[NormalizedName(variableName)]
	return vl, ok
}

// AddMultipleResponseSet appends an mrset.
func (d *Dictionary) AddMultipleResponseSet(m MultipleResponseSet) {
	d.mrsets = append(d.mrsets, m)
}

// MultipleResponseSets returns all mrsets in declared order.
func (d *Dictionary) MultipleResponseSets() []MultipleResponseSet {
	return append([]MultipleResponseSet(nil), d.mrsets...)
}

// AddVariableSet appends a variable set.
func (d *Dictionary) AddVariableSet(vs VariableSet) {
	d.variableSets = append(d.variableSets, vs)
}

// VariableSets returns all variable sets in declared order.
func (d *Dictionary) VariableSets() []VariableSet {
	return append([]VariableSet(nil), d.variableSets...)
}

// VariableSetMembership returns, for each variable referenced by at
// least one variable set, the sorted list of set names that include it.
func (d *Dictionary) VariableSetMembership() map[string][]string {
	raw := make(map[string][]string)
	for _, vs := range d.variableSets {
		for _, name := range vs.Variables {
			raw[name] = append(raw[name], vs.Name)
		}
	}
	for name, sets := range raw {
		slices.Sort(sets)
		raw[name] = sets
	}
	return raw
}

// VariableSetNames returns the declared variable-set names in sorted
// order.
func (d *Dictionary) VariableSetNames() []string {
	byName := make(map[string]bool, len(d.variableSets))
	for _, vs := range d.variableSets {
		byName[vs.Name] = true
	}
	names := maps.Keys(byName)
	slices.Sort(names)
	return names
}

// Attributes returns the dataset-level attributes.
func (d *Dictionary) Attributes() Attributes { return d.attributes }

// SetAttributes replaces the dataset-level attributes.
func (d *Dictionary) SetAttributes(a Attributes) { d.attributes = a }

// SetWeight designates variableName as the dictionary's weight variable.
func (d *Dictionary) SetWeight(variableName string) { d.weightVar, d.hasWeight = variableName, true }

// Weight returns the weight variable's name, if one is set.
func (d *Dictionary) Weight() (string, bool) { return d.weightVar, d.hasWeight }

// SetDocuments replaces the dictionary's document lines.
func (d *Dictionary) SetDocuments(lines []string) { d.documents = lines }

// Documents returns the dictionary's document lines.
func (d *Dictionary) Documents() []string { return append([]string(nil), d.documents...) }
