package crypto

import "math/bits"

// EncodedPassword represents an SPSS "encrypted password": not actually
// encrypted, but encoded with a one-to-many scheme, analogous to base64,
// that maps each plaintext byte to a pair of ASCII characters in the
// range 32-126. Because the scheme is one-to-many, a single
// plaintext password has many possible encodings, all of which decode back
// to the same plaintext.
//
// Grounded bit-for-bit on original_source/rust/pspp/src/crypto.rs's
// EncodedPassword and its four nibble-class bitmask tables (AH/AL/BH/BL).
type EncodedPassword struct {
	// positions holds, for each of the encoded password's character
	// positions, the set of bytes that could occupy it while still
	// decoding to the same plaintext. A password built by
	// ParseEncodedPassword has exactly one variant per position; one
	// built by NewEncodedPassword typically has several.
	positions [][]byte
}

func b(x int) uint16 { return 1 << uint(x) }

// ah, al, bh, bl classify each nibble of a plaintext byte into one of four
// sections; section[0] is the bitmask of nibble values in the section,
// section[1] is the bitmask of encoded-nibble values that decode to it.
var (
	ah = [4][2]uint16{
		{b(2), b(2) | b(3) | b(6) | b(7)},
		{b(3), b(0) | b(1) | b(4) | b(5)},
		{b(4) | b(7), b(8) | b(9) | b(12) | b(13)},
		{b(5) | b(6), b(10) | b(11) | b(14) | b(15)},
	}
	al = [4][2]uint16{
		{b(0) | b(3) | b(12) | b(15), b(0) | b(1) | b(4) | b(5)},
		{b(1) | b(2) | b(13) | b(14), b(2) | b(3) | b(6) | b(7)},
		{b(4) | b(7) | b(8) | b(11), b(8) | b(9) | b(12) | b(13)},
		{b(5) | b(6) | b(9) | b(10), b(10) | b(11) | b(14) | b(15)},
	}
	bh = [4][2]uint16{
		{b(2), b(1) | b(3) | b(9) | b(11)},
		{b(3), b(0) | b(2) | b(8) | b(10)},
		{b(4) | b(7), b(4) | b(6) | b(12) | b(14)},
		{b(5) | b(6), b(5) | b(7) | b(13) | b(15)},
	}
	bl = [4][2]uint16{
		{b(0) | b(3) | b(12) | b(15), b(0) | b(2) | b(8) | b(10)},
		{b(1) | b(2) | b(13) | b(14), b(1) | b(3) | b(9) | b(11)},
		{b(4) | b(7) | b(8) | b(11), b(4) | b(6) | b(12) | b(14)},
		{b(5) | b(6) | b(9) | b(10), b(5) | b(7) | b(13) | b(15)},
	}
)

func decodeNibble(table [4][2]uint16, nibble byte) uint16 {
	for _, section := range table {
		if section[0]&(1<<nibble) != 0 {
			return section[1]
		}
	}
	return 0
}

func find1Bit(x uint16) (byte, bool) {
	if x == 0 || x&(x-1) != 0 {
		return 0, false
	}
	return byte(bits.TrailingZeros16(x)), true
}

func decodePair(a, b byte) (byte, bool) {
	x, ok := find1Bit(decodeNibble(ah, a>>4) & decodeNibble(bh, b>>4))
	if !ok {
		return 0, false
	}
	y, ok := find1Bit(decodeNibble(al, a&15) & decodeNibble(bl, b&15))
	if !ok {
		return 0, false
	}
	return x<<4 | y, true
}

func encodeNibble(table [4][2]uint16) func(nibble byte) []byte {
	return func(nibble byte) []byte {
		for _, section := range table {
			if section[1]&(1<<nibble) == 0 {
				continue
			}
			var out []byte
			bitsLeft := section[0]
			for bitsLeft != 0 {
				out = append(out, byte(bits.TrailingZeros16(bitsLeft)))
				bitsLeft &= bitsLeft - 1
			}
			return out
		}
		return nil
	}
}

func encodeByte(hiTable, loTable [4][2]uint16, value byte) []byte {
	hiVariants := encodeNibble(hiTable)(value >> 4)
	loVariants := encodeNibble(loTable)(value & 15)
	variants := make([]byte, 0, len(hiVariants)*len(loVariants))
	for _, hi := range hiVariants {
		for _, lo := range loVariants {
			enc := hi<<4 | lo
			if enc != 127 {
				variants = append(variants, enc)
			}
		}
	}
	return variants
}

// ParseEncodedPassword parses an already-encoded password. It returns
// ok=false if encoded is not a valid encoding: too long, of odd length, or
// containing bytes outside the range 32..127.
func ParseEncodedPassword(encoded []byte) (EncodedPassword, bool) {
	if len(encoded) > 20 || len(encoded)%2 != 0 {
		return EncodedPassword{}, false
	}
	for _, c := range encoded {
		if c < 32 || c > 127 {
			return EncodedPassword{}, false
		}
	}
	positions := make([][]byte, len(encoded))
	for i, c := range encoded {
		positions[i] = []byte{c}
	}
	return EncodedPassword{positions: positions}, true
}

// NewEncodedPassword builds an EncodedPassword encoding plaintext, using at
// most its first 10 bytes.
func NewEncodedPassword(plaintext []byte) EncodedPassword {
	if len(plaintext) > 10 {
		plaintext = plaintext[:10]
	}
	positions := make([][]byte, 0, len(plaintext)*2)
	for _, value := range plaintext {
		positions = append(positions, encodeByte(ah, al, value), encodeByte(bh, bl, value))
	}
	return EncodedPassword{positions: positions}
}

// NVariants returns how many distinct encoded strings decode to the same
// plaintext as p. A password built by ParseEncodedPassword always has
// exactly one variant.
func (p EncodedPassword) NVariants() uint64 {
	n := uint64(1)
	for _, variants := range p.positions {
		n *= uint64(len(variants))
	}
	return n
}

// Variant returns the index'th encoded-string variant of p. All variants
// decode to the same plaintext.
func (p EncodedPassword) Variant(index uint64) []byte {
	out := make([]byte, 0, len(p.positions))
	for _, variants := range p.positions {
		n := uint64(len(variants))
		out = append(out, variants[index%n])
		index /= n
	}
	return out
}

// Decode returns the plaintext password p encodes.
func (p EncodedPassword) Decode() []byte {
	out := make([]byte, 0, len(p.positions)/2)
	for i := 0; i+1 < len(p.positions); i += 2 {
		value, ok := decodePair(p.positions[i][0], p.positions[i+1][0])
		if !ok {
			continue
		}
		out = append(out, value)
	}
	return out
}
