package proto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := []byte(`{"type":"relay","msg_id":"1"}`)
	frame, err := EncodeFrame(payload)
	require.NoError(t, err)
	got, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEncodeFrameRejectsEmpty(t *testing.T) {
	_, err := EncodeFrame(nil)
	assert.ErrorIs(t, err, ErrFrameSize)
}

func TestReadFrameTypeCap(t *testing.T) {
	big := `{"type":"node_hello","pad":"` + strings.Repeat("x", MaxNodeHelloSize) + `"}`
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(big)))
	_, err := ReadFrameWithTypeCap(&buf, SoftMaxFrameSize, TypeCap)
	assert.ErrorIs(t, err, ErrFrameSize, "oversized hello")

	relay := `{"type":"relay","data":"` + strings.Repeat("y", 2*SoftMaxFrameSize) + `"}`
	buf.Reset()
	require.NoError(t, WriteFrame(&buf, []byte(relay)))
	got, err := ReadFrameWithTypeCap(&buf, SoftMaxFrameSize, TypeCap)
	require.NoError(t, err)
	assert.Equal(t, relay, string(got))
}

func TestSniffTypeTruncated(t *testing.T) {
	msgType, ok := sniffType([]byte(`{"msg_id":"abc", "type" : "relay", "data":"AAAA`))
	assert.True(t, ok)
	assert.Equal(t, "relay", msgType)
	_, ok = sniffType([]byte(`{"data":"AAAA`))
	assert.False(t, ok)
}
