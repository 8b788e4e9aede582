package proto

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

const (
	MaxFrameSize     = 1 << 20
	SoftMaxFrameSize = 4 << 10
	TypeSniffBytes   = 512
)

var ErrFrameSize = errors.New("invalid frame size")

// EncodeFrame prefixes payload with its length as a big endian uint32.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameSize, "payload of %d bytes", len(payload))
	}
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}

func ReadFrame(r io.Reader) ([]byte, error) {
	return ReadFrameWithTypeCap(r, 0, nil)
}

// ReadFrameWithTypeCap reads one frame. Frames larger than softMax are only
// accepted if the JSON "type" found in their first bytes allows that size
// according to typeCap.
func ReadFrameWithTypeCap(r io.Reader, softMax int, typeCap func(string) int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(lenBuf[:]))
	if n == 0 || n > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameSize, "announced %d bytes", n)
	}
	payload := make([]byte, n)
	if softMax <= 0 || n <= softMax {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	prefix := payload[:min(n, TypeSniffBytes)]
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	msgType, ok := sniffType(prefix)
	if !ok {
		return nil, errors.Wrap(ErrFrameSize, "message too large for type sniff")
	}
	if typeCap == nil || typeCap(msgType) < n {
		return nil, errors.Wrapf(ErrFrameSize, "%d bytes exceed cap of type %s", n, msgType)
	}
	if _, err := io.ReadFull(r, payload[len(prefix):]); err != nil {
		return nil, err
	}
	return payload, nil
}

func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	for len(frame) > 0 {
		n, err := w.Write(frame)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		frame = frame[n:]
	}
	return nil
}

// sniffType extracts the "type" member from a possibly truncated JSON object.
func sniffType(prefix []byte) (string, bool) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(prefix, &hdr); err == nil && hdr.Type != "" {
		return hdr.Type, true
	}
	_, rest, found := bytes.Cut(prefix, []byte(`"type"`))
	if !found {
		return "", false
	}
	_, rest, found = bytes.Cut(rest, []byte(":"))
	if !found {
		return "", false
	}
	rest = bytes.TrimLeft(rest, " \t\r\n")
	if len(rest) == 0 || rest[0] != '"' {
		return "", false
	}
	value, _, found := bytes.Cut(rest[1:], []byte(`"`))
	if !found {
		return "", false
	}
	return string(value), true
}
