// Package ctl exposes the cache control surface over a unix domain
// socket. Requests and responses are fixed-layout binary frames wrapping
// the opcode records defined by pkg/pagecache.
//
// Frame layout, little-endian:
//
//	request:  magic [4]byte | op uint32 | payloadLen uint32 | payload
//	response: status uint32 | payloadLen uint32 | payload
//
// Status maps the pagecache error taxonomy; payload is the opcode's
// response record on success, or a UTF-8 error message otherwise.
package ctl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

// FrameMagic opens every request frame.
const FrameMagic = "KDBC"

// OpHello is handled by the transport, not the cache: it returns the
// server's instance ID so clients can detect restarts.
const OpHello uint32 = 0

// Response status codes.
const (
	StatusOK uint32 = iota
	StatusInvalidArgument
	StatusAlreadyActive
	StatusOutOfRange
	StatusResourceExhausted
	StatusInternal
)

// maxPayload bounds request payloads; the largest legitimate record is
// the stats snapshot.
const maxPayload = 4096

// ErrBadFrame indicates a malformed control frame.
var ErrBadFrame = errors.New("ctl: bad frame")

// statusFor maps an error to its wire status.
func statusFor(err error) uint32 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, pagecache.ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, pagecache.ErrAlreadyActive):
		return StatusAlreadyActive
	case errors.Is(err, pagecache.ErrOutOfRange):
		return StatusOutOfRange
	case errors.Is(err, pagecache.ErrResourceExhausted):
		return StatusResourceExhausted
	default:
		return StatusInternal
	}
}

// errorFor maps a wire status back to the sentinel the caller checks.
func errorFor(status uint32, msg string) error {
	var sentinel error

	switch status {
	case StatusInvalidArgument:
		sentinel = pagecache.ErrInvalidArgument
	case StatusAlreadyActive:
		sentinel = pagecache.ErrAlreadyActive
	case StatusOutOfRange:
		sentinel = pagecache.ErrOutOfRange
	case StatusResourceExhausted:
		sentinel = pagecache.ErrResourceExhausted
	default:
		return fmt.Errorf("ctl: server error: %s", msg)
	}

	if msg == "" {
		return sentinel
	}

	return fmt.Errorf("%w: %s", sentinel, msg)
}

// readRequest reads one request frame.
func readRequest(r io.Reader) (op uint32, payload []byte, err error) {
	var hdr [12]byte

	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}

	if string(hdr[0:4]) != FrameMagic {
		return 0, nil, fmt.Errorf("%w: magic %q", ErrBadFrame, hdr[0:4])
	}

	op = binary.LittleEndian.Uint32(hdr[4:8])
	size := binary.LittleEndian.Uint32(hdr[8:12])

	if size > maxPayload {
		return 0, nil, fmt.Errorf("%w: payload %d exceeds max %d", ErrBadFrame, size, maxPayload)
	}

	if size > 0 {
		payload = make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}

	return op, payload, nil
}

func writeRequest(w io.Writer, op uint32, payload []byte) error {
	buf := make([]byte, 12+len(payload))
	copy(buf[0:4], FrameMagic)
	binary.LittleEndian.PutUint32(buf[4:8], op)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	copy(buf[12:], payload)

	_, err := w.Write(buf)

	return err
}

func readResponse(r io.Reader) (status uint32, payload []byte, err error) {
	var hdr [8]byte

	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}

	status = binary.LittleEndian.Uint32(hdr[0:4])
	size := binary.LittleEndian.Uint32(hdr[4:8])

	if size > maxPayload {
		return 0, nil, fmt.Errorf("%w: payload %d exceeds max %d", ErrBadFrame, size, maxPayload)
	}

	if size > 0 {
		payload = make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}

	return status, payload, nil
}

func writeResponse(w io.Writer, status uint32, payload []byte) error {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], status)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)

	_, err := w.Write(buf)

	return err
}
