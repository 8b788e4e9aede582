// internal/crypto/crypto.go
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// -----------------------------------------------------------------------------
// ringrelay crypto
//
// - identity: ed25519, private key persisted as PKCS#8 PEM
// - hashing: SHA3-256 for identifiers and signature digests
// -----------------------------------------------------------------------------

const pemTypePrivateKey = "PRIVATE KEY"

var (
	ErrBadKey       = errors.New("bad key material")
	ErrBadSignature = errors.New("bad signature")
)

// -----------------------------------------------------------------------------
// SHA-3
// -----------------------------------------------------------------------------

func SHA3_256(msg []byte) []byte {
	sum := sha3.Sum256(msg)
	return sum[:]
}

// KDF hashes label followed by parts. It is used for domain separated digests.
func KDF(label string, parts ...[]byte) []byte {
	buf := make([]byte, 0, len(label))
	buf = append(buf, []byte(label)...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return SHA3_256(buf)
}

// -----------------------------------------------------------------------------
// ed25519
// -----------------------------------------------------------------------------

func GenKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating ed25519 key")
	}
	return pub, priv, nil
}

// SignDigest signs a 32 byte digest.
func SignDigest(priv ed25519.PrivateKey, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, errors.New("bad digest size")
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrBadKey
	}
	return ed25519.Sign(priv, digest), nil
}

func VerifyDigest(pub []byte, digest []byte, sig []byte) bool {
	if len(digest) != 32 || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), digest, sig)
}

// -----------------------------------------------------------------------------
// Key storage
// -----------------------------------------------------------------------------

func MarshalPrivateKey(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling private key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: der}), nil
}

func ParsePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivateKey {
		return nil, errors.Wrap(ErrBadKey, "no PEM private key block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(ErrBadKey, err.Error())
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.Wrap(ErrBadKey, "not an ed25519 private key")
	}
	return priv, nil
}

// SaveKey writes priv to path with owner-only permissions, creating the
// parent directory if needed.
func SaveKey(path string, priv ed25519.PrivateKey) error {
	if len(priv) != ed25519.PrivateKeySize {
		return ErrBadKey
	}
	data, err := MarshalPrivateKey(priv)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "creating key directory")
	}
	return errors.Wrap(os.WriteFile(path, data, 0600), "writing private key")
}

// LoadKey reads a key written by SaveKey. A missing file is reported with an
// error satisfying os.IsNotExist after errors.Cause.
func LoadKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParsePrivateKey(data)
}
