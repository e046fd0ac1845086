/*
Package identity manages a peer's long-term Ed25519 signing keypair: loading
it from a PKCS#8 PEM file on disk, generating one on first run, and deriving
the ephemeral X25519 material the handshake needs (spec §4.2, §6).

Persistent keypair storage location and file-system mechanics are out of
scope for the protocol itself (SPEC_FULL.md); this package picks a
conventional location via os.UserConfigDir, mirroring how PeernetOfficial's
Peer ID.go loads-or-generates the peer key at startup.
*/
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/crypto/curve25519"

	"github.com/MyK00L/decipi/wire"
)

const pemBlockType = "PRIVATE KEY"

// Identity is a peer's long-term signing keypair, loaded or generated once
// at startup and held for the process lifetime.
type Identity struct {
	SigKey wire.SigKey
	Verify wire.VerifyKey
}

// defaultKeyPath returns the conventional on-disk location of the identity
// key, under the user's config directory.
func defaultKeyPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("identity: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "decipi", "identity.pem"), nil
}

// LoadOrGenerate loads the identity key from path, generating and persisting
// a fresh one if no file exists yet. An empty path resolves to the default
// per-user location.
func LoadOrGenerate(path string) (Identity, error) {
	if path == "" {
		p, err := defaultKeyPath()
		if err != nil {
			return Identity{}, err
		}
		path = p
	}

	if b, err := os.ReadFile(path); err == nil {
		id, err := parsePEM(b)
		if err != nil {
			return Identity{}, fmt.Errorf("identity: corrupted key at %s: %w", path, err)
		}
		return id, nil
	} else if !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("identity: read %s: %w", path, err)
	}

	log.Printf("identity: no key found at %s, generating a new one", path)
	id, err := Generate()
	if err != nil {
		return Identity{}, err
	}
	if err := save(path, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Generate creates a fresh random Ed25519 keypair.
func Generate() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: generate key: %w", err)
	}
	sk := wire.NewSigKeyFromPrivate(priv)
	var vk wire.VerifyKey
	copy(vk[:], pub)
	return Identity{SigKey: sk, Verify: vk}, nil
}

func parsePEM(b []byte) (Identity, error) {
	block, _ := pem.Decode(b)
	if block == nil || block.Type != pemBlockType {
		return Identity{}, fmt.Errorf("identity: no PEM private key block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: parse PKCS#8: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return Identity{}, fmt.Errorf("identity: key is not Ed25519")
	}
	sk := wire.NewSigKeyFromPrivate(priv)
	return Identity{SigKey: sk, Verify: sk.Verify()}, nil
}

func save(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: create key dir: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(id.SigKey.Private())
	if err != nil {
		return fmt.Errorf("identity: marshal PKCS#8: %w", err)
	}
	block := &pem.Block{Type: pemBlockType, Bytes: der}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	return nil
}

// KexPair is a fresh, one-shot X25519 Diffie-Hellman keypair minted for a
// single handshake attempt (spec §4.2). It must never be reused across
// handshakes.
type KexPair struct {
	Secret wire.KexSecret
	Public wire.KexPublic
}

// NewKexPair draws a fresh ephemeral X25519 keypair.
func NewKexPair() (KexPair, error) {
	var secret wire.KexSecret
	if _, err := rand.Read(secret[:]); err != nil {
		return KexPair{}, fmt.Errorf("identity: draw kex secret: %w", err)
	}
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return KexPair{}, fmt.Errorf("identity: derive kex public: %w", err)
	}
	var public wire.KexPublic
	copy(public[:], pub)
	return KexPair{Secret: secret, Public: public}, nil
}

// DeriveMacKey runs X25519 between our ephemeral secret and the peer's
// ephemeral public value, then hashes the shared point down to a MacKey
// with blake3 (spec §4.2: the raw DH output is never used directly as a
// key). Both sides derive the same MacKey regardless of which one
// initiated, since X25519 is commutative.
func DeriveMacKey(secret wire.KexSecret, peerPublic wire.KexPublic) (wire.MacKey, error) {
	shared, err := curve25519.X25519(secret[:], peerPublic[:])
	if err != nil {
		return wire.MacKey{}, fmt.Errorf("identity: derive shared secret: %w", err)
	}
	digest := wire.KeyedBlake3([32]byte{}, shared)
	return wire.MacKey(digest), nil
}
