package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MaxPayload is the largest pid payload, line feed included, that the
// daemon may write to the handoff channel.
const MaxPayload = 31

// FormatPID encodes a process identifier as the handoff payload: the decimal
// representation of pid followed by a line feed.
//
// Parameters:
//   - pid: The process identifier, must be positive
//
// Returns:
//   - The payload bytes, never longer than MaxPayload
//   - An error if pid is not positive
func FormatPID(pid int) ([]byte, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}

	payload := strconv.AppendInt(make([]byte, 0, MaxPayload), int64(pid), 10)
	payload = append(payload, '\n')
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("pid payload is %d bytes, limit is %d", len(payload), MaxPayload)
	}

	return payload, nil
}

// ParsePID decodes a handoff payload written by FormatPID.
//
// Only a non-empty run of ASCII digits terminated by a single line feed is
// accepted, and the value must be a positive int. A truncated payload such as
// "123" without its line feed is rejected rather than read as pid 123.
//
// Parameters:
//   - payload: The bytes received from the handoff channel
//
// Returns:
//   - The decoded pid
//   - An error describing why the payload was rejected
func ParsePID(payload []byte) (int, error) {
	switch {
	case len(payload) == 0:
		return 0, errors.New("empty pid payload")
	case len(payload) > MaxPayload:
		return 0, fmt.Errorf("pid payload is %d bytes, limit is %d", len(payload), MaxPayload)
	case payload[len(payload)-1] != '\n':
		return 0, fmt.Errorf("pid payload %q is not terminated by a line feed", payload)
	}

	digits := payload[:len(payload)-1]
	if len(digits) == 0 {
		return 0, errors.New("pid payload has no digits")
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("pid payload %q contains a non-digit", payload)
		}
	}

	pid, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, fmt.Errorf("pid payload %q: %w", payload, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("pid payload %q is not a positive pid", payload)
	}

	return pid, nil
}

// readPayload reads from r until a line feed arrives, the writer side is
// closed, or one byte more than MaxPayload has been read. Short reads are
// accumulated, so a payload split across several reads is still returned
// whole. An empty result with a nil error means the channel was closed
// without any data.
func readPayload(r io.Reader) ([]byte, error) {
	buf := make([]byte, MaxPayload+1)
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if bytes.IndexByte(buf[:total], '\n') >= 0 {
			return buf[:total], nil
		}
		if errors.Is(err, io.EOF) {
			return buf[:total], nil
		}
		if err != nil {
			return buf[:total], err
		}
	}
	return buf[:total], nil
}
