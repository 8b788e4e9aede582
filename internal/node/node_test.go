package node

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"testing"

	"ringrelay/internal/crypto"
	"ringrelay/internal/proto"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	_, priv, err := crypto.GenKeypair()
	if err != nil {
		t.Fatalf("gen keypair failed: %v", err)
	}
	return FromKey(priv)
}

func TestDeriveNodeID(t *testing.T) {
	pub := []byte("test-pubkey")
	got := DeriveNodeID(pub)
	want := hex.EncodeToString(crypto.SHA3_256(append([]byte("ringrelay:nodeid:v1"), pub...)))
	if got != want {
		t.Fatalf("unexpected node id %s", got)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}
}

func TestVerifyHello(t *testing.T) {
	n := newTestNode(t)
	msg, err := n.Hello(42, "127.0.0.1:9000")
	if err != nil {
		t.Fatalf("hello failed: %v", err)
	}
	peerInfo, err := VerifyHello(msg)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if peerInfo.NodeID != n.ID {
		t.Fatalf("node id mismatch")
	}
	if !bytes.Equal(peerInfo.PubKey, n.PubKey) {
		t.Fatalf("pubkey mismatch")
	}
	if peerInfo.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("listen addr mismatch: %q", peerInfo.ListenAddr)
	}

	tampered := msg
	tampered.Nonce++
	if _, err := VerifyHello(tampered); err != ErrBadSig {
		t.Fatalf("expected ErrBadSig, got %v", err)
	}

	msg.NodeID = hex.EncodeToString(make([]byte, 32))
	if _, err := VerifyHello(msg); err != ErrBadNodeID {
		t.Fatalf("expected ErrBadNodeID, got %v", err)
	}
}

func TestVerifyRelay(t *testing.T) {
	sender := newTestNode(t)
	receiver := newTestNode(t)
	m := proto.RelayMsg{MsgID: "m1", Broadcast: true, Data: []byte("payload")}
	if err := sender.SignRelay(&m); err != nil {
		t.Fatalf("sign relay failed: %v", err)
	}
	if m.From != sender.ID {
		t.Fatalf("expected from to be set")
	}
	for i := 0; i < 2; i++ {
		if err := receiver.VerifyRelay(m); err != nil {
			t.Fatalf("verify relay attempt %d failed: %v", i, err)
		}
	}
	m.Data = []byte("forged")
	if err := receiver.VerifyRelay(m); err != ErrBadSig {
		t.Fatalf("expected ErrBadSig, got %v", err)
	}
	m.From = receiver.ID
	if err := receiver.VerifyRelay(m); err != ErrBadNodeID {
		t.Fatalf("expected ErrBadNodeID, got %v", err)
	}
}

func TestLoadGeneratesAndReloadsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.pem")
	n, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if n.ID != again.ID {
		t.Fatalf("expected stable identity, got %s and %s", n.ID, again.ID)
	}
	if _, err := crypto.LoadKey(path); err != nil {
		t.Fatalf("expected key persisted: %v", err)
	}
}

func TestLoadEphemeral(t *testing.T) {
	a, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	b, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct ephemeral identities")
	}
}
