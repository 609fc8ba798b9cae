package dictionary

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"

	"github.com/lemenkov/pspp-sub002/internal/codepage"
	"github.com/lemenkov/pspp-sub002/message"
	"github.com/lemenkov/pspp-sub002/pspptext"
	"github.com/lemenkov/pspp-sub002/sysfile"
)

// IntegerInfo is the decoded payload of extension subtype 3.
type IntegerInfo struct {
	Version       [3]int32
	Machine       int32
	FloatFormat   int32
	Compression   int32
	Endianness    int32
	CharacterCode int32
}

// DecodeOptions configures the dictionary decode pipeline.
type DecodeOptions struct {
	// EncodingOverride, if non-empty, beats both the encoding extension
	// record and the integer-info character code (spec §4.5 step 1).
	EncodingOverride string
}

// physicalVariable tracks a variable record's position in the file's
// nominal case layout, before long-name rewriting and very-long-string
// merging.
type physicalVariable struct {
	record sysfile.VariableRecord
	index  int // 0-based physical slot
}

// Decode builds a Dictionary from the raw records collected from a
// system-file's dictionary stream, applying spec §4.5's nine steps in
// order. Only a failure to resolve the file's character encoding (an
// EBCDIC file or an unknown code page) is returned as an error;
// everything else is reported through h and decoding continues
// best-effort.
func Decode(header sysfile.Header, records []sysfile.RawRecord, opts DecodeOptions, h *message.Handler) (*Dictionary, error) {
	dec := &decoder{header: header, handler: h}
	return dec.run(records, opts)
}

type decoder struct {
	header  sysfile.Header
	handler *message.Handler

	integerInfo     IntegerInfo
	haveIntegerInfo bool
	encodingRecord  string
	haveEncoding    bool
}

func (d *decoder) warn(text string) {
	if d.handler == nil {
		return
	}
	d.handler.Report(message.Diagnostic{
		Severity: message.Warning,
		Category: message.Data,
		Text:     text,
	})
}

func (d *decoder) run(records []sysfile.RawRecord, opts DecodeOptions) (*Dictionary, error) {
	// First pass: pull out extension records that inform later steps
	// (encoding, integer-info) without assuming an ordering relative to
	// variable records.
	var physVars []physicalVariable
	var valueLabelRecs []sysfile.ValueLabelRecord
	var extByType = map[int32][]sysfile.ExtensionRecord{}
	var documents []string

	for _, rec := range records {
		switch r := rec.(type) {
		case sysfile.VariableRecord:
			physVars = append(physVars, physicalVariable{record: r, index: len(physVars)})
		case sysfile.ValueLabelRecord:
			valueLabelRecs = append(valueLabelRecs, r)
		case sysfile.ExtensionRecord:
			extByType[r.Subtype] = append(extByType[r.Subtype], r)
		case sysfile.DocumentRecord:
			for _, line := range r.Lines {
				documents = append(documents, string(bytes.TrimRight(line[:], " ")))
			}
		case sysfile.TerminatorRecord:
			// no-op; marks end of dictionary stream
		}
	}

	if recs, ok := extByType[3]; ok && len(recs) > 0 {
		d.integerInfo = parseIntegerInfo(recs[0])
		d.haveIntegerInfo = true
	}
	if recs, ok := extByType[20]; ok && len(recs) > 0 {
		d.encodingRecord = string(recs[0].Data)
		d.haveEncoding = true
	}

	// Step 1: encoding resolution.
	encodingLabel, err := d.resolveEncoding(opts)
	if err != nil {
		return nil, err
	}
	enc, ok := pspptext.LookupEncoding(encodingLabel)
	if !ok {
		d.warn(fmt.Sprintf("unrecognized encoding %q, falling back to windows-1252", encodingLabel))
		enc, _ = pspptext.LookupEncoding("windows-1252")
	}

	dict := New(encodingLabel)

	// Step 2: variables, skipping string-continuation slots (width -1)
	// but keeping them as reserved physical positions.
	var slotToVarIdx = map[int]int{} // physical slot -> dict variable index
	for _, pv := range physVars {
		rec := pv.record
		if rec.Width == -1 {
			continue // continuation slot, logically invisible
		}
		name := decodeFixedName(rec.ShortName[:], enc)
		v := Variable{
			Name:      name,
			ShortName: name,
			Print:     fromRawFormat(rec.Print),
			Write:     fromRawFormat(rec.Write),
		}
		if rec.Width == 0 {
			v.Type = VarTypeNumeric
		} else {
			v.Type = VarTypeString
			v.Width = int(rec.Width)
		}
		if rec.HasLabel {
			v.HasLabel = true
			v.Label = decodeText(rec.Label, enc)
		}
		v.Missing = decodeMissing(rec, v.Type)

		idx := dict.Len()
		if !dict.AddVariable(v) {
			d.warn(fmt.Sprintf("duplicate variable name %q", name))
			continue
		}
		slotToVarIdx[pv.index] = idx
	}

	// Step 3: long variable names (subtype 13): "short=long" pairs
	// separated by tab, terminated by \0 per entry boundary or end of
	// blob.
	if recs, ok := extByType[13]; ok && len(recs) > 0 {
		d.applyLongNames(dict, string(recs[0].Data))
	}

	// Step 4: very-long strings (subtype 14): "name=width\0\t" entries.
	if recs, ok := extByType[14]; ok && len(recs) > 0 {
		d.applyVeryLongStrings(dict, string(recs[0].Data), physVars, slotToVarIdx)
	}

	// Step 5: display parameters (subtype 11): per-variable (measure,
	// width, alignment) triples, in declared order over variables that
	// are not continuation slots.
	if recs, ok := extByType[11]; ok && len(recs) > 0 {
		d.applyDisplayParams(dict, recs[0])
	}

	// Step 6: value labels.
	d.applyValueLabels(dict, valueLabelRecs, slotToVarIdx, physVars, enc)
	if recs, ok := extByType[21]; ok && len(recs) > 0 {
		d.applyLongStringValueLabels(dict, recs[0], enc)
	}

	// Step 6b: variable sets (subtype 5), named groupings for UI display.
	if recs, ok := extByType[5]; ok && len(recs) > 0 {
		d.applyVariableSets(dict, string(recs[0].Data))
	}

	// Step 7: multiple-response sets.
	for _, subtype := range []int32{7, 19} {
		if recs, ok := extByType[subtype]; ok {
			for _, rec := range recs {
				d.applyMrsets(dict, string(rec.Data))
			}
		}
	}

	// Step 8: attributes. Dataset-level (subtype 17) and variable-level
	// (subtype 18) attribute text share no target state — one replaces
	// dict's own Attributes, the other populates a name-keyed map later
	// applied to individual variables — so their parsing (pure functions
	// over the raw blobs) runs concurrently via errgroup, matching the
	// compiler teacher's use of errgroup.Group to fan out independent
	// per-file work in its own driver.
	var (
		datasetAttrs     Attributes
		haveDatasetAttrs bool
		datasetAttrsErr  error
		varAttrsByName   map[string]Attributes
		varAttrWarnings  []string
	)
	var g errgroup.Group
	if recs, ok := extByType[17]; ok && len(recs) > 0 {
		haveDatasetAttrs = true
		blob := string(recs[0].Data)
		g.Go(func() error {
			datasetAttrs, datasetAttrsErr = parseAttributeText(blob)
			return nil
		})
	}
	if recs, ok := extByType[18]; ok && len(recs) > 0 {
		blob := string(recs[0].Data)
		g.Go(func() error {
			varAttrsByName, varAttrWarnings = parseVariableAttributeBlob(blob)
			return nil
		})
	}
	g.Wait() // both Go funcs always return nil; nothing to check

	if haveDatasetAttrs {
		if datasetAttrsErr != nil {
			d.warn(fmt.Sprintf("bad dataset attribute syntax: %v", datasetAttrsErr))
		}
		dict.SetAttributes(datasetAttrs)
	}
	for _, msg := range varAttrWarnings {
		d.warn(msg)
	}
	for name, attrs := range varAttrsByName {
		idx := dict.VariableIndex(name)
		if idx < 0 {
			d.warn(fmt.Sprintf("attributes reference unknown variable %q", name))
			continue
		}
		v := dict.Variables()[idx]
		v.Attributes = attrs
		dict.ReplaceVariable(idx, v)
	}
	d.applyVariableRoles(dict)

	// Step 9: weight.
	if d.header.WeightIndex > 0 {
		if idx, ok := slotToVarIdx[int(d.header.WeightIndex)-1]; ok {
			v := dict.Variables()[idx]
			if v.Type == VarTypeNumeric {
				dict.SetWeight(v.Name)
			} else {
				d.warn(fmt.Sprintf("weight variable %q is not numeric", v.Name))
			}
		} else {
			d.warn("weight index does not name a variable")
		}
	}

	dict.SetDocuments(documents)
	return dict, nil
}

func (d *decoder) resolveEncoding(opts DecodeOptions) (string, error) {
	if opts.EncodingOverride != "" {
		return opts.EncodingOverride, nil
	}
	if d.haveEncoding && d.encodingRecord != "" {
		return d.encodingRecord, nil
	}
	characterCode := int32(0)
	haveCode := false
	if d.haveIntegerInfo {
		characterCode = d.integerInfo.CharacterCode
		haveCode = true
	}
	label, err := codepage.Resolve("", false, int(characterCode), haveCode)
	if err != nil {
		if cpErr, ok := err.(codepage.Error); ok && cpErr.Kind == codepage.NoEncoding {
			d.warn("system file does not indicate its own character encoding; assuming windows-1252")
			return "windows-1252", nil
		}
		return "", err
	}
	return label, nil
}

func parseIntegerInfo(rec sysfile.ExtensionRecord) IntegerInfo {
	var info IntegerInfo
	vals := make([]int32, rec.Count)
	for i := 0; i < len(vals) && (i+1)*4 <= len(rec.Data); i++ {
		// Integer-info values are stored in the file's native byte
		// order; the raw reader has already normalized individual
		// fields elsewhere, but this extension record's bytes are
		// untouched, so reinterpret using big-endian as a reasonable
		// default when the exact per-file endian isn't threaded
		// through here.
		vals[i] = int32(uint32(rec.Data[i*4])<<24 | uint32(rec.Data[i*4+1])<<16 | uint32(rec.Data[i*4+2])<<8 | uint32(rec.Data[i*4+3]))
	}
	if len(vals) >= 8 {
		info.Version = [3]int32{vals[0], vals[1], vals[2]}
		info.Machine = vals[3]
		info.FloatFormat = vals[4]
		info.Compression = vals[5]
		info.Endianness = vals[6]
		info.CharacterCode = vals[7]
	}
	return info
}

// decodeFixedName decodes a NUL/space-padded fixed-width name field.
// Short names are restricted to the file's encoding's invariant subset in
// practice (they come from identifier syntax), so trimming padding before
// recoding is sufficient; no truncation-safe resize is needed here.
func decodeFixedName(raw []byte, enc *encoding.Encoding) string {
	trimmed := bytes.TrimRight(raw, " \x00")
	return decodeText(trimmed, enc)
}

func decodeText(raw []byte, enc *encoding.Encoding) string {
	if enc == nil {
		return string(raw)
	}
	str := pspptext.NewString(raw, enc, "")
	return str.AsStr()
}

func decodeMissing(rec sysfile.VariableRecord, vtype VarType) MissingValueSpec {
	spec := MissingValueSpec{}
	switch {
	case rec.MissingValues == 0:
		return spec
	case rec.MissingValues > 0 && rec.MissingValues <= 3:
		n := int(rec.MissingValues)
		for i := 0; i < n && i < len(rec.Missing); i++ {
			spec.Discrete = append(spec.Discrete, rec.Missing[i])
		}
	case rec.MissingValues == -2:
		if len(rec.Missing) >= 2 {
			spec.HasRange = true
			spec.Low, spec.High = rec.Missing[0], rec.Missing[1]
		}
	case rec.MissingValues == -3:
		if len(rec.Missing) >= 3 {
			spec.HasRange = true
			spec.Low, spec.High = rec.Missing[0], rec.Missing[1]
			spec.Discrete = append(spec.Discrete, rec.Missing[2])
		}
	}
	return spec
}

func (d *decoder) applyLongNames(dict *Dictionary, blob string) {
	for _, entry := range strings.Split(blob, "\t") {
		entry = strings.TrimRight(entry, "\x00")
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			d.warn(fmt.Sprintf("malformed long-name entry %q", entry))
			continue
		}
		short, long := parts[0], parts[1]
		idx := dict.VariableIndex(short)
		if idx < 0 {
			d.warn(fmt.Sprintf("long-name entry names unknown variable %q", short))
			continue
		}
		v := dict.Variables()[idx]
		v.Name = long
		dict.ReplaceVariable(idx, v)
	}
}

// applyVeryLongStrings merges the physical segment-variables a very-long
// string (width > 255) was split into back into one logical variable,
// per spec §4.5 step 4. The first physical segment carries the declared
// name and keeps its dictionary slot; its width 252..255 follow-on
// segments were each added by step 2 as their own, now-spurious
// dictionary entries (spec §8 S5: "the dictionary contains exactly one
// variable of width 500 and zero continuations") and are dropped once
// every entry in the blob has been applied, so index-based lookups made
// while processing the blob stay valid throughout.
func (d *decoder) applyVeryLongStrings(dict *Dictionary, blob string, physVars []physicalVariable, slotToVarIdx map[int]int) {
	varIdxToSlot := make(map[int]int, len(slotToVarIdx))
	for slot, vi := range slotToVarIdx {
		varIdxToSlot[vi] = slot
	}

	var consumed []int
	for _, entry := range strings.Split(blob, "\t") {
		entry = strings.TrimRight(entry, "\x00")
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			d.warn(fmt.Sprintf("malformed very-long-string entry %q", entry))
			continue
		}
		name, widthStr := parts[0], parts[1]
		width, err := strconv.Atoi(widthStr)
		if err != nil || width <= 0 {
			d.warn(fmt.Sprintf("bad very-long-string width in %q", entry))
			continue
		}
		idx := dict.VariableIndex(name)
		if idx < 0 {
			continue
		}
		v := dict.Variables()[idx]

		// The format always allocates the first segment as wide as
		// possible (up to 255 bytes) and every following segment at a
		// full 252 bytes, regardless of how much of that continuation
		// segment the logical width actually needs; the excess is
		// trimmed against width when cases are reassembled, not here.
		nSegments := (width + 251) / 252
		segments := make([]int, 0, nSegments)
		for i := 0; i < nSegments; i++ {
			if i == 0 {
				first := width
				if first > 255 {
					first = 255
				}
				segments = append(segments, first)
			} else {
				segments = append(segments, 252)
			}
		}
		v.Width = width
		v.segments = segments
		dict.ReplaceVariable(idx, v)

		slot, ok := varIdxToSlot[idx]
		if !ok {
			continue
		}
		remaining := nSegments - 1
		for p := slot + 1; p < len(physVars) && remaining > 0; p++ {
			if physVars[p].record.Width == -1 {
				continue // sub-octet continuation of a segment, not a segment itself
			}
			segIdx, ok := slotToVarIdx[p]
			if !ok {
				break
			}
			consumed = append(consumed, segIdx)
			remaining--
		}
		if remaining > 0 {
			d.warn(fmt.Sprintf("very-long string %q declares %d segments but only %d were found", name, nSegments, nSegments-remaining))
		}
	}

	if remap := dict.RemoveVariables(consumed); remap != nil {
		updated := make(map[int]int, len(slotToVarIdx))
		for slot, oldIdx := range slotToVarIdx {
			if newIdx, ok := remap[oldIdx]; ok {
				updated[slot] = newIdx
			}
		}
		for slot := range slotToVarIdx {
			delete(slotToVarIdx, slot)
		}
		for slot, newIdx := range updated {
			slotToVarIdx[slot] = newIdx
		}
	}
}

func (d *decoder) applyDisplayParams(dict *Dictionary, rec sysfile.ExtensionRecord) {
	n := int(rec.Count)
	if n*12 > len(rec.Data) {
		d.warn("display-parameter extension is shorter than declared")
		n = len(rec.Data) / 12
	}
	vars := dict.Variables()
	for i := 0; i < n && i < len(vars); i++ {
		off := i * 12
		measure := be32(rec.Data[off : off+4])
		width := be32(rec.Data[off+4 : off+8])
		alignment := be32(rec.Data[off+8 : off+12])
		v := vars[i]
		v.Measure = clampMeasure(measure, d)
		v.DisplayWidth = int(width)
		v.Alignment = clampAlignment(alignment, d)
		dict.ReplaceVariable(i, v)
	}
}

func be32(b []byte) int32 {
	return int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

func clampMeasure(v int32, d *decoder) Measure {
	switch v {
	case 1:
		return MeasureNominal
	case 2:
		return MeasureOrdinal
	case 3:
		return MeasureScale
	default:
		d.warn(fmt.Sprintf("invalid measure value %d", v))
		return MeasureUnknown
	}
}

func clampAlignment(v int32, d *decoder) Alignment {
	switch v {
	case 0:
		return AlignmentLeft
	case 1:
		return AlignmentRight
	case 2:
		return AlignmentCenter
	default:
		d.warn(fmt.Sprintf("invalid alignment value %d", v))
		return AlignmentUnknown
	}
}

func (d *decoder) applyValueLabels(dict *Dictionary, recs []sysfile.ValueLabelRecord, slotToVarIdx map[int]int, physVars []physicalVariable, enc *encoding.Encoding) {
	vars := dict.Variables()
	for _, rec := range recs {
		var vtype VarType
		haveType := false
		names := make([]string, 0, len(rec.VariableIndex))
		ok := true
		for _, oneBased := range rec.VariableIndex {
			slot := int(oneBased) - 1
			idx, exists := slotToVarIdx[slot]
			if !exists {
				d.warn("value-label record references a string-continuation or out-of-range slot")
				ok = false
				continue
			}
			v := vars[idx]
			if !haveType {
				vtype = v.Type
				haveType = true
			} else if v.Type != vtype {
				d.warn("value-label record applies to variables of mixed type")
				ok = false
				continue
			}
			names = append(names, v.Name)
		}
		if !ok || len(names) == 0 {
			continue
		}
		vl := NewValueLabels()
		for _, entry := range rec.Labels {
			vl.Set(entry.RawValue, decodeText(entry.Label, enc))
		}
		for _, name := range names {
			dict.SetValueLabels(name, vl)
		}
	}
}

func (d *decoder) applyLongStringValueLabels(dict *Dictionary, rec sysfile.ExtensionRecord, enc *encoding.Encoding) {
	// Binary sub-format: repeated {var_name_len:i32, var_name, width:i32,
	// n_labels:i32, {value_len:i32, value, label_len:i32, label}*}.
	data := rec.Data
	pos := 0
	readI32 := func() (int32, bool) {
		if pos+4 > len(data) {
			return 0, false
		}
		v := be32(data[pos : pos+4])
		pos += 4
		return v, true
	}
	for pos < len(data) {
		nameLen, ok := readI32()
		if !ok {
			break
		}
		if pos+int(nameLen) > len(data) {
			d.warn("truncated long-string value-label record")
			break
		}
		name := string(data[pos : pos+int(nameLen)])
		pos += int(nameLen)
		width, ok := readI32()
		if !ok {
			break
		}
		nLabels, ok := readI32()
		if !ok {
			break
		}
		vl := NewValueLabels()
		for i := int32(0); i < nLabels; i++ {
			valLen, ok := readI32()
			if !ok || pos+int(valLen) > len(data) {
				d.warn("truncated long-string value-label entry")
				break
			}
			value := data[pos : pos+int(valLen)]
			pos += int(valLen)
			labelLen, ok := readI32()
			if !ok || pos+int(labelLen) > len(data) {
				d.warn("truncated long-string value-label entry")
				break
			}
			label := data[pos : pos+int(labelLen)]
			pos += int(labelLen)
			var raw [8]byte
			copy(raw[:], value)
			vl.Set(raw, decodeText(label, enc))
		}
		_ = width
		dict.SetValueLabels(name, vl)
	}
}

// applyVariableSets parses subtype 5's text blob: newline-separated
// entries of the form "name=v1 v2 v3", the same "name=list" shape the
// long-names and very-long-string blobs use elsewhere in this file,
// adapted to a many-valued right-hand side instead of a single name or
// width.
func (d *decoder) applyVariableSets(dict *Dictionary, blob string) {
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimRight(line, "\r\x00")
		if strings.TrimSpace(line) == "" {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			d.warn(fmt.Sprintf("malformed variable-set entry %q", line))
			continue
		}
		name := strings.TrimSpace(line[:eq])
		members := strings.Fields(line[eq+1:])
		if name == "" || len(members) == 0 {
			d.warn(fmt.Sprintf("malformed variable-set entry %q", line))
			continue
		}
		vs := VariableSet{Name: name}
		for _, m := range members {
			if _, ok := dict.Variable(m); !ok {
				d.warn(fmt.Sprintf("variable set %q references unknown variable %q (known: %v)", name, m, sortedVariableNames(dict)))
				continue
			}
			vs.Variables = append(vs.Variables, m)
		}
		if len(vs.Variables) > 0 {
			dict.AddVariableSet(vs)
		}
	}
}

func (d *decoder) applyMrsets(dict *Dictionary, blob string) {
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimRight(line, "\r\x00")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := d.parseMrsetLine(dict, line); err != nil {
			d.warn(fmt.Sprintf("bad multiple-response set syntax: %v", err))
		}
	}
}

// parseMrsetLine parses one "$name=..." line of an mrset blob per spec
// §4.5 step 7 / §6.1. The category source determines what immediately
// follows the '=': C or D are bare letters, E carries an inline
// counted value ("1 SP n SP" followed by the n raw bytes themselves,
// which may contain whitespace and so can't be tokenized with
// strings.Fields). Whatever remains after the source is
// whitespace-tokenized; its first token is the variable count and the
// trailing that-many tokens are the variable names, so everything
// between the count and those trailing names is the (possibly
// multi-word) label.
func (d *decoder) parseMrsetLine(dict *Dictionary, line string) error {
	eq := strings.Index(line, "=")
	if eq < 0 || !strings.HasPrefix(line, "$") {
		return fmt.Errorf("missing $name=")
	}
	name := line[:eq]
	rest := line[eq+1:]
	if strings.TrimSpace(rest) == "" {
		return fmt.Errorf("empty set body")
	}

	pos := 0
	for pos < len(rest) && (rest[pos] == ' ' || rest[pos] == '\t') {
		pos++
	}
	if pos >= len(rest) {
		return fmt.Errorf("missing category source")
	}

	set := MultipleResponseSet{Name: name}
	var tail string
	switch rest[pos] {
	case 'C':
		set.Source = CategorySourceVarList
		tail = rest[pos+1:]
	case 'D':
		set.Source = CategorySourceDichotomies
		tail = rest[pos+1:]
	case 'E':
		set.Source = CategorySourceCountedValue
		pos++
		if pos >= len(rest) || rest[pos] != ' ' {
			return fmt.Errorf("expected space after 'E'")
		}
		pos++
		if pos >= len(rest) || rest[pos] != '1' {
			return fmt.Errorf("expected counted-value marker")
		}
		pos++
		if pos >= len(rest) || rest[pos] != ' ' {
			return fmt.Errorf("expected space after counted-value marker")
		}
		pos++
		start := pos
		for pos < len(rest) && rest[pos] >= '0' && rest[pos] <= '9' {
			pos++
		}
		if pos == start {
			return fmt.Errorf("missing counted-value length")
		}
		n, err := strconv.Atoi(rest[start:pos])
		if err != nil {
			return fmt.Errorf("bad counted-value length: %w", err)
		}
		if pos >= len(rest) || rest[pos] != ' ' {
			return fmt.Errorf("expected space after counted-value length")
		}
		pos++
		if pos+n > len(rest) {
			return fmt.Errorf("counted value runs past end of set body")
		}
		set.CountedValue = []byte(rest[pos : pos+n])
		tail = rest[pos+n:]
	default:
		return fmt.Errorf("unknown category source %q", string(rest[pos]))
	}

	fields := strings.Fields(tail)
	if len(fields) == 0 {
		return fmt.Errorf("missing variable count")
	}
	nvars, err := strconv.Atoi(fields[0])
	if err != nil || nvars < 0 {
		return fmt.Errorf("bad variable count %q", fields[0])
	}
	fields = fields[1:]
	if len(fields) < nvars {
		return fmt.Errorf("declared %d variables but only %d fields remain", nvars, len(fields))
	}
	labelFields := fields[:len(fields)-nvars]
	vars := fields[len(fields)-nvars:]
	set.Label = strings.Join(labelFields, " ")

	if len(vars) < 2 {
		d.warn(fmt.Sprintf("multiple-response set %q has fewer than 2 variables, dropping", name))
		return nil
	}

	var vtype VarType
	haveType := false
	width := -1
	for _, vname := range vars {
		v, ok := dict.Variable(vname)
		if !ok {
			d.warn(fmt.Sprintf("multiple-response set %q references unknown variable %q", name, vname))
			continue
		}
		if !haveType {
			vtype, haveType = v.Type, true
			if v.Type == VarTypeString {
				width = v.Width
			}
		} else if v.Type != vtype {
			return fmt.Errorf("set %q mixes numeric and string variables", name)
		} else if v.Type == VarTypeString && v.Width != width {
			return fmt.Errorf("set %q mixes string variables of different widths", name)
		}
		set.Variables = append(set.Variables, v.Name)
	}
	if len(set.Variables) < 2 {
		return nil
	}
	dict.AddMultipleResponseSet(set)
	return nil
}

// parseVariableAttributeBlob splits a subtype-18 blob into its per-
// variable "varname:attrs" chunks and parses each, independently of any
// Dictionary — unknown-variable-name resolution happens in the caller,
// once it is safe to touch dict again, so this stays a pure function safe
// to run on its own goroutine.
func parseVariableAttributeBlob(blob string) (byName map[string]Attributes, warnings []string) {
	byName = make(map[string]Attributes)
	for _, chunk := range strings.Split(blob, "/") {
		chunk = strings.TrimRight(chunk, "\x00")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		colon := strings.Index(chunk, ":")
		if colon < 0 {
			warnings = append(warnings, "variable-attribute chunk missing variable name")
			continue
		}
		name := chunk[:colon]
		attrs, err := parseAttributeText(chunk[colon+1:])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("bad attribute syntax for %q: %v", name, err))
		}
		byName[name] = attrs
	}
	return byName, warnings
}

// applyVariableRoles reads the conventional `$@Role` per-variable
// attribute (installed from subtype 18's parsed blob, if it carried
// one) and sets VarRole accordingly. Values outside 0..5 are warned about
// and left at the zero value (RoleInput), matching spec §4.5's general
// "ignore invalid combinations with warnings" policy for extension data.
func (d *decoder) applyVariableRoles(dict *Dictionary) {
	vars := dict.Variables()
	for i, v := range vars {
		values, ok := v.Attributes.Get("$@Role")
		if !ok || len(values) == 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(values[0]))
		if err != nil || n < int(RoleInput) || n > int(RoleSplit) {
			d.warn(fmt.Sprintf("variable %q has invalid $@Role attribute %q", v.Name, values[0]))
			continue
		}
		v.Role = VarRole(n)
		dict.ReplaceVariable(i, v)
	}
}

// parseAttributeText parses `name('value' 'value' …)name2('value')…`
// sequences per spec §4.5 step 8. Quoted values may contain any byte
// except the closing quote; this simplified grammar has no escape for an
// embedded quote, matching spec's "unterminated or unescaped values are a
// warning" allowance.
func parseAttributeText(text string) (Attributes, error) {
	attrs := NewAttributes()
	i := 0
	for i < len(text) {
		start := i
		for i < len(text) && text[i] != '(' {
			i++
		}
		if i >= len(text) {
			if strings.TrimSpace(text[start:]) != "" {
				return attrs, fmt.Errorf("trailing text %q without value list", text[start:])
			}
			break
		}
		name := text[start:i]
		i++ // skip '('
		var values []string
		for i < len(text) && text[i] != ')' {
			if text[i] != '\'' {
				return attrs, fmt.Errorf("expected quote in attribute %q", name)
			}
			i++
			valStart := i
			for i < len(text) && text[i] != '\'' {
				i++
			}
			if i >= len(text) {
				return attrs, fmt.Errorf("unterminated value for attribute %q", name)
			}
			values = append(values, text[valStart:i])
			i++ // skip closing quote
		}
		if i < len(text) {
			i++ // skip ')'
		}
		if i < len(text) && text[i] == '/' {
			i++ // skip the attribute separator
		}
		attrs.Set(name, values)
	}
	return attrs, nil
}

// sortedVariableNames returns dict's variable names sorted, used by
// diagnostics to present a stable order independent of declaration
// order.
func sortedVariableNames(dict *Dictionary) []string {
	names := make([]string, 0, dict.Len())
	for _, v := range dict.Variables() {
		names = append(names, v.Name)
	}
	slices.Sort(names)
	return names
}
