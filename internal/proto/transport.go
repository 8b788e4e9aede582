package proto

import (
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// Transport frame types. Every frame is a JSON object with a "type" member.
const (
	MsgTypeNodeHello = "node_hello"
	MsgTypeRelay     = "relay"

	MaxNodeHelloSize = 4 << 10
	MaxRelaySize     = 256 << 10
)

// NodeHelloMsg is the first frame sent on a new connection. It binds the
// connection to the sender identity: Sig is an ed25519 signature over
// NodeHelloHash.
type NodeHelloMsg struct {
	Type       string `json:"type"`
	NodeID     string `json:"node_id"`
	PubKey     []byte `json:"pubkey"`
	ListenAddr string `json:"listen_addr,omitempty"`
	Nonce      uint64 `json:"nonce"`
	Sig        []byte `json:"sig"`
}

// RelayMsg carries encoded control messages. Broadcast frames and frames for
// a To that is not a direct neighbour are flooded and keep the signature of
// their origin From.
type RelayMsg struct {
	Type      string `json:"type"`
	MsgID     string `json:"msg_id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	PubKey    []byte `json:"pubkey"`
	Broadcast bool   `json:"broadcast,omitempty"`
	Hops      int    `json:"hops,omitempty"`
	Data      []byte `json:"data"`
	Sig       []byte `json:"sig"`
}

var ErrUnexpectedType = errors.New("unexpected frame type")

func EncodeNodeHelloMsg(m NodeHelloMsg) ([]byte, error) {
	m.Type = MsgTypeNodeHello
	return json.Marshal(m)
}

func DecodeNodeHelloMsg(data []byte) (NodeHelloMsg, error) {
	var m NodeHelloMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return NodeHelloMsg{}, errors.Wrap(err, "decoding node hello")
	}
	if m.Type != MsgTypeNodeHello {
		return NodeHelloMsg{}, errors.Wrap(ErrUnexpectedType, m.Type)
	}
	return m, nil
}

func EncodeRelayMsg(m RelayMsg) ([]byte, error) {
	m.Type = MsgTypeRelay
	return json.Marshal(m)
}

func DecodeRelayMsg(data []byte) (RelayMsg, error) {
	var m RelayMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return RelayMsg{}, errors.Wrap(err, "decoding relay frame")
	}
	if m.Type != MsgTypeRelay {
		return RelayMsg{}, errors.Wrap(ErrUnexpectedType, m.Type)
	}
	return m, nil
}

// FrameType returns the "type" member of a transport frame.
func FrameType(data []byte) (string, bool) {
	return sniffType(data)
}

// TypeCap is the per type size limit used with ReadFrameWithTypeCap.
func TypeCap(msgType string) int {
	switch msgType {
	case MsgTypeNodeHello:
		return MaxNodeHelloSize
	case MsgTypeRelay:
		return MaxRelaySize
	}
	return 0
}

func NodeHelloHash(nodeID string, pub []byte, listenAddr string, nonce uint64) [32]byte {
	h := sha3.New256()
	writeField(h, []byte("ringrelay:hello:v1"))
	writeField(h, []byte(nodeID))
	writeField(h, pub)
	writeField(h, []byte(listenAddr))
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], nonce)
	h.Write(tmp[:])
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func RelayHash(msgID, from, to string, broadcast bool, data []byte) [32]byte {
	h := sha3.New256()
	writeField(h, []byte("ringrelay:relay:v1"))
	writeField(h, []byte(msgID))
	writeField(h, []byte(from))
	writeField(h, []byte(to))
	if broadcast {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	writeField(h, data)
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func writeField(h interface{ Write([]byte) (int, error) }, b []byte) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(b)))
	h.Write(tmp[:])
	h.Write(b)
}
