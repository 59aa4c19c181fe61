package core

// streaming.go provides memory-efficient readers shared by file formats.
//
// These readers wrap io.Reader so an upload is never loaded whole:
//
//   - BOMSkippingReader: Removes UTF-8 BOM (0xEF 0xBB 0xBF) from Windows files
//   - CRLineReader: Rewrites bare carriage returns as newlines
//   - CountLines: Counts newline-terminated lines for progress estimates
//   - Decode: Applies a named character encoding

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var buf [3]byte
		n, err := io.ReadFull(r.reader, buf[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if !(n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF) {
			r.pending = append([]byte(nil), buf[:n]...)
		}
	}

	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// CRLineReader rewrites every '\r' as '\n'. It is only applied to files
// whose sniffed line terminator is a bare carriage return.
type CRLineReader struct {
	reader io.Reader
}

// NewCRLineReader creates a new carriage-return rewriting reader.
func NewCRLineReader(r io.Reader) *CRLineReader {
	return &CRLineReader{reader: r}
}

// Read implements io.Reader.
func (r *CRLineReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	for i := 0; i < n; i++ {
		if p[i] == '\r' {
			p[i] = '\n'
		}
	}
	return n, err
}

// CountLines counts lines in r without parsing them. A final line with no
// trailing newline is counted.
func CountLines(r io.Reader) (int, error) {
	buf := make([]byte, 64*1024)
	count := 0
	var last byte

	for {
		n, err := r.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if last != 0 && last != '\n' {
		count++
	}
	return count, nil
}

// LookupEncoding resolves an IANA encoding name such as "utf-8" or
// "windows-1252".
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" || IsUTF8(name) {
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// IsUTF8 reports whether name refers to UTF-8.
func IsUTF8(name string) bool {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "utf-8", "utf8":
		return true
	}
	return false
}

// Decode wraps r so it yields UTF-8 text. UTF-8 input passes through
// unchanged so invalid bytes can still be detected by the caller.
func Decode(r io.Reader, name string) (io.Reader, error) {
	if name == "" || IsUTF8(name) {
		return NewBOMSkippingReader(r), nil
	}
	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
