// Package crypto implements the SPSS encrypted-file envelope: detection,
// AES-256 key derivation from a password via fixed NIST SP 800-108
// parameters, password verification by trial decryption, and a streaming
// io.ReadSeeker over the plaintext.
//
// Grounded bit-for-bit on original_source/rust/pspp/src/crypto.rs.
package crypto

import (
	"bytes"
	"crypto/aes"
	"errors"
	"fmt"
	"io"

	"github.com/aead/cmac"
)

// FileType identifies which kind of SPSS file an encrypted envelope wraps.
type FileType int

const (
	// Data is a .sav system file.
	Data FileType = iota
	// Syntax is a .sps syntax file.
	Syntax
	// Viewer is a .spv viewer file.
	Viewer
)

func (t FileType) String() string {
	switch t {
	case Data:
		return "SAV"
	case Syntax:
		return "SPS"
	case Viewer:
		return "SPV"
	default:
		return "unknown"
	}
}

// Errors returned by this package. An incorrect password has no exported
// error value: Unlock reports it by returning the *File for another
// attempt together with an unexported error, and UnlockLiteral returns
// that unexported error alone.
var (
	// ErrNotEncrypted is returned when the file does not begin with the
	// "ENCRYPTED" magic.
	ErrNotEncrypted = errors.New("crypto: not an encrypted file")
	// ErrInvalidPadding is returned when the final ciphertext block's
	// PKCS#7-like padding does not validate.
	ErrInvalidPadding = errors.New("crypto: invalid padding in final encrypted data block")
)

// ErrUnknownFileType is returned when the 3-byte file-type tag in the
// header is not one of SAV, SPS, or SPV.
type ErrUnknownFileType struct{ Tag string }

func (e ErrUnknownFileType) Error() string {
	return fmt.Sprintf("crypto: unknown file type %q", e.Tag)
}

// ErrInvalidLength is returned when the file's total length is too short or
// not aligned to a 16-byte boundary past the 36-byte header.
type ErrInvalidLength struct{ Length int64 }

func (e ErrInvalidLength) Error() string {
	return fmt.Sprintf("crypto: encrypted file has invalid length %d (expected 4 more than a multiple of 16)", e.Length)
}

const (
	headerLen = 36
	blockLen  = 16
)

// File is an encrypted file whose header has been parsed but which has not
// yet been unlocked with a password.
type File struct {
	reader     io.ReadSeeker
	fileType   FileType
	length     int64 // ciphertext length, excluding the 36-byte header
	firstBlock [blockLen]byte
	lastBlock  [blockLen]byte
}

// Open reads enough of r to verify that it begins with an SPSS encrypted
// envelope and returns a File describing it. It returns ErrNotEncrypted if
// the "ENCRYPTED" magic is absent.
func Open(r io.ReadSeeker) (*File, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrNotEncrypted
		}
		return nil, err
	}
	if !bytes.Equal(header[8:17], []byte("ENCRYPTED")) {
		return nil, ErrNotEncrypted
	}
	var fileType FileType
	switch tag := string(header[17:20]); tag {
	case "SAV":
		fileType = Data
	case "SPS":
		fileType = Syntax
	case "SPV":
		fileType = Viewer
	default:
		return nil, ErrUnknownFileType{Tag: tag}
	}

	var first [blockLen]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return nil, err
	}

	end, err := r.Seek(-blockLen, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	length := end + blockLen
	if length < headerLen+blockLen || (length-headerLen)%blockLen != 0 {
		return nil, ErrInvalidLength{Length: length}
	}

	var last [blockLen]byte
	if _, err := io.ReadFull(r, last[:]); err != nil {
		return nil, err
	}
	if _, err := r.Seek(headerLen, io.SeekStart); err != nil {
		return nil, err
	}

	return &File{
		reader:     r,
		fileType:   fileType,
		length:     length - headerLen,
		firstBlock: first,
		lastBlock:  last,
	}, nil
}

// FileType returns the type of file this envelope wraps.
func (f *File) FileType() FileType { return f.fileType }

// magics are the fixed plaintext prefixes that indicate a correctly
// decrypted first block: system-file ($FL2/$FL3), syntax (a leading
// comment), or viewer (zip local-file header).
var magics = [][]byte{
	[]byte("$FL2@(#)"),
	[]byte("$FL3@(#)"),
	[]byte("* Encoding"),
	{'P', 'K', 0x03, 0x04, 0x14, 0x00, 0x08},
}

// Unlock tries password literally, then (if that fails and password looks
// like a valid EncodedPassword) tries it decoded. On success it returns a
// Reader over the plaintext; on failure it returns f again so the caller
// can try another password.
func (f *File) Unlock(password []byte) (*Reader, *File, error) {
	if r, err := f.UnlockLiteral(password); err == nil {
		return r, nil, nil
	}
	if encoded, ok := ParseEncodedPassword(password); ok {
		if r, err := f.UnlockLiteral(encoded.Decode()); err == nil {
			return r, nil, nil
		}
	}
	return nil, f, errWrongPassword
}

var errWrongPassword = errors.New("crypto: password did not unlock file")

// UnlockLiteral tries password as given, with no encoded-password fallback.
func (f *File) UnlockLiteral(password []byte) (*Reader, error) {
	key, err := deriveKey(password)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	var out [blockLen]byte
	block.Decrypt(out[:], f.firstBlock[:])
	ok := false
	for _, magic := range magics {
		if bytes.HasPrefix(out[:], magic) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, errWrongPassword
	}

	block.Decrypt(out[:], f.lastBlock[:])
	padLen, ok := parsePadding(out[:])
	if !ok {
		return nil, ErrInvalidPadding
	}

	return newReader(f.reader, block, f.fileType, f.length-int64(padLen)), nil
}

func parsePadding(block []byte) (int, bool) {
	pad := int(block[blockLen-1])
	if pad < 1 || pad > blockLen {
		return 0, false
	}
	for _, b := range block[blockLen-pad:] {
		if int(b) != pad {
			return 0, false
		}
	}
	return pad, true
}

// deriveKey implements the SPSS key schedule: truncate the password to 10
// bytes, zero-pad to 32 bytes, run AES-256-CMAC over a fixed NIST SP 800-108
// block, and repeat the 16-byte CMAC output twice to build a 32-byte key.
func deriveKey(password []byte) ([]byte, error) {
	if len(password) > 10 {
		password = password[:10]
	}
	padded := make([]byte, 32)
	copy(padded, password)

	mac, err := cmacSum(padded, fixedSP800108)
	if err != nil {
		return nil, err
	}

	key := make([]byte, 32)
	copy(key[:16], mac)
	copy(key[16:], mac)
	return key, nil
}

// fixedSP800108 is the 73-byte fixed NIST SP 800-108 counter-mode KDF input
// (counter || label || 0x00 delimiter || context || L), bit-identical to
// the reference implementation.
var fixedSP800108 = []byte{
	// i
	0x00, 0x00, 0x00, 0x01,

	// label
	0x35, 0x27, 0x13, 0xcc, 0x53, 0xa7, 0x78, 0x89,
	0x87, 0x53, 0x22, 0x11, 0xd6, 0x5b, 0x31, 0x58,
	0xdc, 0xfe, 0x2e, 0x7e, 0x94, 0xda, 0x2f, 0x00,
	0xcc, 0x15, 0x71, 0x80, 0x0a, 0x6c, 0x63, 0x53,

	// delimiter
	0x00,

	// context
	0x38, 0xc3, 0x38, 0xac, 0x22, 0xf3, 0x63, 0x62,
	0x0e, 0xce, 0x85, 0x3f, 0xb8, 0x07, 0x4c, 0x4e,
	0x2b, 0x77, 0xc7, 0x21, 0xf5, 0x1a, 0x80, 0x1d,
	0x67, 0xfb, 0xe1, 0xe1, 0x83, 0x07, 0xd8, 0x0d,

	// L
	0x00, 0x00, 0x01, 0x00,
}

func cmacSum(key, message []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cmac.Sum(message, block, block.BlockSize())
}
