// Package frame implements the length-prefixed framing used on the TCP
// control socket (§4.1): a u32 big-endian length prefix followed by a
// JSON payload, capped to prevent a single frame from exhausting memory.
package frame

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameSize is the default cap on a single frame's payload
// length, per §4.1.
const DefaultMaxFrameSize = 1 << 20 // 1 MiB

const lengthPrefixSize = 4

// ErrFrameTooLarge is a fatal protocol error: the peer claimed a length
// exceeding the configured cap.
var ErrFrameTooLarge = errors.New("frame: length exceeds maximum frame size")

// Reader reads length-prefixed JSON frames from an underlying stream,
// buffering partial reads until a complete frame is available. A Reader
// is not safe for concurrent use; one connection has one reader used by
// one goroutine, per §5's single-request-at-a-time discipline.
type Reader struct {
	r       *bufio.Reader
	maxSize uint32
}

// NewReader wraps r with the default max frame size.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, DefaultMaxFrameSize)
}

// NewReaderSize wraps r with an explicit max frame size.
func NewReaderSize(r io.Reader, maxSize uint32) *Reader {
	return &Reader{r: bufio.NewReader(r), maxSize: maxSize}
}

// ReadFrame reads exactly one length-prefixed frame and unmarshals its
// JSON payload into v. It blocks until a full frame has arrived, an error
// occurs, or the underlying reader is closed.
func (fr *Reader) ReadFrame(v any) error {
	payload, err := fr.ReadRaw()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("frame: decoding payload: %w", err)
	}
	return nil
}

// ReadRaw reads exactly one frame's raw JSON payload bytes, without
// decoding it. Used by the dispatcher to peek at "kind"/"cmd" before
// picking a concrete payload type.
func (fr *Reader) ReadRaw() ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("frame: reading length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > fr.maxSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, fmt.Errorf("frame: reading payload: %w", err)
	}
	return payload, nil
}

// Writer serializes frames to an underlying stream. Safe for concurrent
// use: writes are serialized under a mutex so one logical message's
// length+payload can never be interleaved with another's, per §4.1.
type Writer struct {
	mu      sync.Mutex
	w       *bufio.Writer
	maxSize uint32
}

// NewWriter wraps w with the default max frame size.
func NewWriter(w io.Writer) *Writer {
	return NewWriterSize(w, DefaultMaxFrameSize)
}

// NewWriterSize wraps w with an explicit max frame size.
func NewWriterSize(w io.Writer, maxSize uint32) *Writer {
	return &Writer{w: bufio.NewWriter(w), maxSize: maxSize}
}

// WriteFrame marshals v to JSON and writes it as one length-prefixed
// frame.
func (fw *Writer) WriteFrame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("frame: encoding payload: %w", err)
	}
	return fw.WriteRaw(payload)
}

// WriteRaw writes a pre-encoded payload as one length-prefixed frame.
func (fw *Writer) WriteRaw(payload []byte) error {
	if uint32(len(payload)) > fw.maxSize {
		return ErrFrameTooLarge
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("frame: writing length prefix: %w", err)
	}
	if _, err := fw.w.Write(payload); err != nil {
		return fmt.Errorf("frame: writing payload: %w", err)
	}
	return fw.w.Flush()
}
