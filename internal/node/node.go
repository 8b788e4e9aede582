package node

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"

	"github.com/pkg/errors"

	"ringrelay/internal/crypto"
)

const nodeIDLabel = "ringrelay:nodeid:v1"

// Node is the local identity.
type Node struct {
	ID      string
	PubKey  ed25519.PublicKey
	PrivKey ed25519.PrivateKey

	sigs *sigCache
}

// Load returns the identity stored at keyPath. A missing file is created with
// a fresh key. An empty keyPath yields an ephemeral identity.
func Load(keyPath string) (*Node, error) {
	if keyPath == "" {
		_, priv, err := crypto.GenKeypair()
		if err != nil {
			return nil, err
		}
		return FromKey(priv), nil
	}
	priv, err := crypto.LoadKey(keyPath)
	if err == nil {
		return FromKey(priv), nil
	}
	if !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrapf(err, "loading key %s", keyPath)
	}
	_, priv, err = crypto.GenKeypair()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveKey(keyPath, priv); err != nil {
		return nil, err
	}
	return FromKey(priv), nil
}

func FromKey(priv ed25519.PrivateKey) *Node {
	pub := priv.Public().(ed25519.PublicKey)
	return &Node{
		ID:      DeriveNodeID(pub),
		PubKey:  pub,
		PrivKey: priv,
		sigs:    newSigCache(),
	}
}

// DeriveNodeID returns the ring identifier of a public key.
func DeriveNodeID(pub []byte) string {
	return hex.EncodeToString(crypto.KDF(nodeIDLabel, pub))
}
