// Package sack is a small assembler DSL for hand-authoring system-file
// byte fixtures in tests, so round-trip tests don't need to check in
// opaque binary blobs.
//
// Grounded on original_source/rust/pspp/src/sys/sack.rs's "SAv Construction
// Kit": a semicolon-terminated sequence of data items (integers, floats,
// padded strings, sized integers, COUNT-prefixed groups, parenthesized
// groups, and `label:`/`@label` offset arithmetic), reimplemented in Go
// idiom rather than ported line-for-line (a hand-written recursive-descent
// parser over a token slice, matching this module's lexer package's own
// style, instead of the Rust original's custom Lexer/Token enum).
package sack

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lemenkov/pspp-sub002/endian"
)

// Build assembles input into bytes using the given byte order. It panics
// on malformed input, since sack fixtures are test-only literals authored
// alongside the assertions that consume them — a typo there is a test bug,
// not a runtime condition to recover from.
func Build(e endian.Endian, input string) []byte {
	toks := tokenize(input)
	p := &parser{toks: toks, e: e, labels: map[string]int{}, refs: map[string][]int{}}
	p.items(&p.out)
	for name, offsets := range p.refs {
		val, ok := p.labels[name]
		if !ok {
			panic(fmt.Sprintf("sack: label %q used but never defined", name))
		}
		for _, pos := range offsets {
			copy(p.out[pos:pos+4], e.EmitI32(int32(val)))
		}
	}
	return p.out
}

type tokKind int

const (
	tInt tokKind = iota
	tFloat
	tString
	tWord // bare identifier/keyword, including "sNN", "label:", "@name"
	tSemicolon
	tAsterisk
	tLParen
	tRParen
	tPlus
	tMinus
)

type token struct {
	kind tokKind
	text string
	ival int64
	fval float64
}

func tokenize(input string) []token {
	var toks []token
	s := input
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			break
		}
		if s[0] == '#' {
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
			} else {
				s = ""
			}
			continue
		}
		switch s[0] {
		case ';':
			toks = append(toks, token{kind: tSemicolon})
			s = s[1:]
			continue
		case '*':
			toks = append(toks, token{kind: tAsterisk})
			s = s[1:]
			continue
		case '(':
			toks = append(toks, token{kind: tLParen})
			s = s[1:]
			continue
		case ')':
			toks = append(toks, token{kind: tRParen})
			s = s[1:]
			continue
		case '+':
			toks = append(toks, token{kind: tPlus})
			s = s[1:]
			continue
		case '"':
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				panic("sack: unterminated string")
			}
			toks = append(toks, token{kind: tString, text: s[1 : 1+end]})
			s = s[2+end:]
			continue
		}
		if isWordStart(s[0]) {
			n := 1
			for n < len(s) && isWordCont(s[n]) {
				n++
			}
			word := s[:n]
			s = s[n:]
			if strings.HasSuffix(word, ":") {
				toks = append(toks, token{kind: tWord, text: "label:" + strings.TrimSuffix(word, ":")})
			} else {
				toks = append(toks, token{kind: tWord, text: word})
			}
			continue
		}
		if isDigitOrMinus(s[0]) {
			n := 1
			for n < len(s) && isNumCont(s[n]) {
				n++
			}
			lit := s[:n]
			s = s[n:]
			if lit == "-" {
				toks = append(toks, token{kind: tMinus})
				continue
			}
			if strings.HasPrefix(lit, "0x") {
				v, err := strconv.ParseInt(lit[2:], 16, 64)
				if err != nil {
					panic("sack: bad hex literal " + lit)
				}
				toks = append(toks, token{kind: tInt, ival: v})
				continue
			}
			if strings.ContainsAny(lit, ".") {
				v, err := strconv.ParseFloat(lit, 64)
				if err != nil {
					panic("sack: bad float literal " + lit)
				}
				toks = append(toks, token{kind: tFloat, fval: v})
				continue
			}
			v, err := strconv.ParseInt(lit, 10, 64)
			if err != nil {
				panic("sack: bad integer literal " + lit)
			}
			toks = append(toks, token{kind: tInt, ival: v})
			continue
		}
		panic(fmt.Sprintf("sack: unexpected byte %q", s[0]))
	}
	return toks
}

func isWordStart(c byte) bool {
	return c == '@' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isWordCont(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9') || c == ':' || c == '.'
}
func isDigitOrMinus(c byte) bool { return (c >= '0' && c <= '9') || c == '-' }
func isNumCont(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') || c == 'x'
}

type parser struct {
	toks   []token
	pos    int
	e      endian.Endian
	out    []byte
	labels map[string]int
	refs   map[string][]int // label name -> byte offsets of pending i32 references
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

// items parses a semicolon-terminated sequence of data items until the
// token stream runs out or (inside a parenthesized group) an RParen is
// seen; out accumulates the emitted bytes, appended by reference so
// COUNT's length-prefix patch can find its start offset.
func (p *parser) items(out *[]byte) {
	for {
		t, ok := p.peek()
		if !ok || t.kind == tRParen {
			return
		}
		if t.kind == tWord && strings.HasPrefix(t.text, "label:") {
			p.next()
			p.labels[strings.TrimPrefix(t.text, "label:")] = len(*out)
			continue
		}
		p.item(out)
	}
}

func (p *parser) item(out *[]byte) {
	start := len(*out)
	t := p.next()
	switch t.kind {
	case tInt:
		*out = append(*out, p.e.EmitI32(int32(t.ival))...)
	case tFloat:
		*out = append(*out, p.e.EmitF64(t.fval)...)
	case tMinus:
		n := p.next()
		if n.kind != tInt {
			panic("sack: expected integer after '-'")
		}
		*out = append(*out, p.e.EmitI32(int32(-n.ival))...)
	case tString:
		*out = append(*out, t.text...)
	case tLParen:
		p.items(out)
		p.expect(tRParen)
	case tWord:
		p.word(t.text, out)
	default:
		panic(fmt.Sprintf("sack: unexpected token kind %d", t.kind))
	}

	if n, ok := p.peek(); ok && n.kind == tAsterisk {
		p.next()
		cnt := p.next()
		if cnt.kind != tInt || cnt.ival < 1 {
			panic("sack: positive integer expected after '*'")
		}
		chunk := append([]byte(nil), (*out)[start:]...)
		for i := int64(1); i < cnt.ival; i++ {
			*out = append(*out, chunk...)
		}
	}

	if n, ok := p.peek(); ok {
		if n.kind == tSemicolon {
			p.next()
			return
		}
		if n.kind == tRParen {
			return
		}
	} else {
		return
	}
	panic("sack: ';' expected")
}

func (p *parser) expect(k tokKind) {
	t := p.next()
	if t.kind != k {
		panic("sack: unexpected token")
	}
}

func (p *parser) word(word string, out *[]byte) {
	switch {
	case strings.HasPrefix(word, "@"):
		name := strings.TrimPrefix(word, "@")
		val := p.offsetExpr(name)
		pos := len(*out)
		*out = append(*out, p.e.EmitI32(0)...)
		if val.known {
			copy((*out)[pos:pos+4], p.e.EmitI32(int32(val.value)))
		} else {
			p.refs[name] = append(p.refs[name], pos)
		}
	case strings.HasPrefix(word, "s"):
		size, err := strconv.Atoi(strings.TrimPrefix(word, "s"))
		if err != nil {
			panic("sack: bad counted string literal " + word)
		}
		t := p.next()
		if t.kind != tString {
			panic("sack: string expected after 's" + strconv.Itoa(size) + "'")
		}
		if len(t.text) > size {
			panic(fmt.Sprintf("sack: %d-byte string longer than pad length %d", len(t.text), size))
		}
		*out = append(*out, t.text...)
		*out = append(*out, strings.Repeat(" ", size-len(t.text))...)
	case word == "i8":
		v := p.next()
		if v.kind != tInt {
			panic("sack: integer expected after 'i8'")
		}
		*out = append(*out, byte(int8(v.ival)))
	case word == "i16":
		v := p.next()
		if v.kind != tInt {
			panic("sack: integer expected after 'i16'")
		}
		*out = append(*out, p.e.EmitI16(int16(v.ival))...)
	case word == "i64":
		v := p.next()
		if v.kind != tInt {
			panic("sack: integer expected after 'i64'")
		}
		*out = append(*out, p.e.EmitI64(v.ival)...)
	case word == "SYSMIS":
		*out = append(*out, p.e.EmitF64(-math.MaxFloat64)...)
	case word == "LOWEST":
		*out = append(*out, p.e.EmitF64(math.Nextafter(-math.MaxFloat64, 0))...)
	case word == "HIGHEST":
		*out = append(*out, p.e.EmitF64(math.MaxFloat64)...)
	case word == "ENDIAN":
		v := int32(2)
		if p.e == endian.Big {
			v = 1
		}
		*out = append(*out, p.e.EmitI32(v)...)
	case word == "COUNT" || word == "COUNT8":
		is8 := word == "COUNT8"
		placeholderPos := len(*out)
		if is8 {
			*out = append(*out, 0)
		} else {
			*out = append(*out, p.e.EmitI32(0)...)
		}
		p.expect(tLParen)
		contentStart := len(*out)
		p.items(out)
		p.expect(tRParen)
		n := len(*out) - contentStart
		if is8 {
			if n > 255 {
				panic("sack: COUNT8 group too large")
			}
			(*out)[placeholderPos] = byte(n)
		} else {
			copy((*out)[placeholderPos:placeholderPos+4], p.e.EmitI32(int32(n)))
		}
	default:
		panic("sack: invalid token " + word)
	}
}

type offsetValue struct {
	value int
	known bool
}

// offsetExpr handles `@label (+|- @label|integer)*`, resolving only
// labels already seen; references to as-yet-undefined labels are left
// for Build's final patch-up pass.
func (p *parser) offsetExpr(first string) offsetValue {
	val, ok := p.labelValue(first)
	for {
		t, peeked := p.peek()
		if !peeked || (t.kind != tPlus && t.kind != tMinus) {
			break
		}
		p.next()
		sign := 1
		if t.kind == tMinus {
			sign = -1
		}
		opnd := p.next()
		var operand offsetValue
		switch opnd.kind {
		case tInt:
			operand = offsetValue{value: int(opnd.ival), known: true}
		case tWord:
			if !strings.HasPrefix(opnd.text, "@") {
				panic("sack: expecting @label or integer in offset expression")
			}
			operand, _ = p.labelValue(strings.TrimPrefix(opnd.text, "@"))
		default:
			panic("sack: expecting @label or integer in offset expression")
		}
		if ok && operand.known {
			val.value += sign * operand.value
		} else {
			val.known = false
		}
	}
	return val
}

func (p *parser) labelValue(name string) (offsetValue, bool) {
	if v, ok := p.labels[name]; ok {
		return offsetValue{value: v, known: true}, true
	}
	return offsetValue{known: false}, false
}
