package node

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"ringrelay/internal/crypto"
	"ringrelay/internal/proto"
)

var (
	ErrBadNodeID = errors.New("node id does not match public key")
	ErrBadSig    = errors.New("signature verification failed")
)

// PeerInfo is the identity proven by a node hello.
type PeerInfo struct {
	NodeID     string
	PubKey     []byte
	ListenAddr string
}

func (n *Node) Hello(nonce uint64, listenAddr string) (proto.NodeHelloMsg, error) {
	digest := proto.NodeHelloHash(n.ID, n.PubKey, listenAddr, nonce)
	sig, err := crypto.SignDigest(n.PrivKey, digest[:])
	if err != nil {
		return proto.NodeHelloMsg{}, err
	}
	return proto.NodeHelloMsg{
		Type:       proto.MsgTypeNodeHello,
		NodeID:     n.ID,
		PubKey:     append([]byte(nil), n.PubKey...),
		ListenAddr: listenAddr,
		Nonce:      nonce,
		Sig:        sig,
	}, nil
}

func VerifyHello(m proto.NodeHelloMsg) (PeerInfo, error) {
	if len(m.PubKey) != ed25519.PublicKeySize {
		return PeerInfo{}, errors.Wrap(crypto.ErrBadKey, "hello pubkey")
	}
	if DeriveNodeID(m.PubKey) != m.NodeID {
		return PeerInfo{}, ErrBadNodeID
	}
	digest := proto.NodeHelloHash(m.NodeID, m.PubKey, m.ListenAddr, m.Nonce)
	if !crypto.VerifyDigest(m.PubKey, digest[:], m.Sig) {
		return PeerInfo{}, ErrBadSig
	}
	return PeerInfo{NodeID: m.NodeID, PubKey: m.PubKey, ListenAddr: m.ListenAddr}, nil
}

// SignRelay fills in the origin fields and signature of m.
func (n *Node) SignRelay(m *proto.RelayMsg) error {
	m.From = n.ID
	m.PubKey = append([]byte(nil), n.PubKey...)
	digest := proto.RelayHash(m.MsgID, m.From, m.To, m.Broadcast, m.Data)
	sig, err := crypto.SignDigest(n.PrivKey, digest[:])
	if err != nil {
		return err
	}
	m.Sig = sig
	return nil
}

// VerifyRelay checks that m was signed by the node named in From. Flooded
// frames arrive once per neighbour, so successful verifications are cached.
func (n *Node) VerifyRelay(m proto.RelayMsg) error {
	if DeriveNodeID(m.PubKey) != m.From {
		return ErrBadNodeID
	}
	digest := proto.RelayHash(m.MsgID, m.From, m.To, m.Broadcast, m.Data)
	if n.sigs.verified(digest, m.Sig) {
		return nil
	}
	if !crypto.VerifyDigest(m.PubKey, digest[:], m.Sig) {
		return ErrBadSig
	}
	n.sigs.put(digest, m.Sig)
	return nil
}
