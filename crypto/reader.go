package crypto

import (
	"crypto/cipher"
	"errors"
	"io"
)

// Reader streams the plaintext of an unlocked encrypted file. It implements
// io.Reader and io.Seeker over the AES-256-ECB-decrypted, padding-stripped
// ciphertext, decoding one 4096-byte window at a time so callers can seek
// within large case streams without holding the whole file in memory.
//
// Grounded on crypto.rs's EncryptedReader, adapted to Go's io.Reader idiom
// in place of the original's manual buffer-refill loop.
type Reader struct {
	src      io.ReadSeeker
	block    cipher.Block
	fileType FileType
	length   int64 // plaintext length
	pos      int64 // current plaintext offset

	window    [windowSize]byte
	windowOff int64 // plaintext offset of window[0]
	windowLen int   // valid bytes in window
}

const windowSize = 4096

func newReader(src io.ReadSeeker, block cipher.Block, fileType FileType, length int64) *Reader {
	return &Reader{src: src, block: block, fileType: fileType, length: length, windowOff: -1}
}

// FileType returns the type of file this reader decodes.
func (r *Reader) FileType() FileType { return r.fileType }

// Len returns the total plaintext length.
func (r *Reader) Len() int64 { return r.length }

func (r *Reader) fillWindow(off int64) error {
	if r.windowOff == off {
		return nil
	}
	if _, err := r.src.Seek(headerLen+off, io.SeekStart); err != nil {
		return err
	}
	n := windowSize
	if remaining := r.length - off; int64(n) > remaining {
		n = int(remaining)
	}
	// Round up to a block boundary so we always decrypt whole blocks.
	readLen := (n + blockLen - 1) / blockLen * blockLen
	buf := make([]byte, readLen)
	if _, err := io.ReadFull(r.src, buf); err != nil {
		return err
	}
	for i := 0; i+blockLen <= readLen; i += blockLen {
		r.block.Decrypt(r.window[i:i+blockLen], buf[i:i+blockLen])
	}
	r.windowOff = off
	r.windowLen = n
	return nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.pos >= r.length {
		return 0, io.EOF
	}
	windowStart := r.pos - (r.pos % windowSize)
	if err := r.fillWindow(windowStart); err != nil {
		return 0, err
	}
	avail := r.windowLen - int(r.pos-r.windowOff)
	if avail <= 0 {
		return 0, io.EOF
	}
	n := copy(p, r.window[r.pos-r.windowOff:r.windowLen])
	r.pos += int64(n)
	return n, nil
}

// Seek implements io.Seeker over the plaintext stream.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = r.pos + offset
	case io.SeekEnd:
		newPos = r.length + offset
	default:
		return 0, errors.New("crypto: invalid whence")
	}
	if newPos < 0 {
		return 0, errors.New("crypto: negative seek position")
	}
	r.pos = newPos
	return newPos, nil
}
