package protocol

import (
	"bufio"
	"io"
)

// FrameReader splits a byte stream into JSON messages. A frame ends at a
// newline, or as soon as the top-level object or array it opened is closed, so
// both newline-delimited clients and clients that write bare back-to-back
// objects are understood. Any newline resynchronises the stream after garbage.
type FrameReader struct {
	r       *bufio.Reader
	maxSize int
	buf     []byte
}

// NewFrameReader wraps r. Frames longer than maxSize are consumed and reported
// as a *DecodeError so the connection can keep going.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	return &FrameReader{
		r:       bufio.NewReader(r),
		maxSize: maxSize,
		buf:     make([]byte, 0, 1024),
	}
}

// Next returns the next frame. The slice is only valid until the following
// call. I/O errors from the underlying reader are returned unchanged.
func (f *FrameReader) Next() ([]byte, error) {
	first, err := f.skipSpace()
	if err != nil {
		return nil, err
	}

	f.buf = f.buf[:0]
	overflow := false
	keep := func(b byte) {
		if len(f.buf) < f.maxSize {
			f.buf = append(f.buf, b)
			return
		}
		overflow = true
	}
	keep(first)

	container := first == '{' || first == '['
	depth := 0
	if container {
		depth = 1
	}
	inString, escaped := false, false

	for !(container && depth == 0) {
		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			break
		}
		keep(b)

		if !container {
			continue
		}
		switch {
		case inString:
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
		case b == '"':
			inString = true
		case b == '{' || b == '[':
			depth++
		case b == '}' || b == ']':
			depth--
		}
	}

	if overflow {
		return nil, decodeErrorf("message exceeds %d bytes", f.maxSize)
	}
	return f.buf, nil
}

func (f *FrameReader) skipSpace() (byte, error) {
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, nil
	}
}
