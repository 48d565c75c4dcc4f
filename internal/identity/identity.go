// Package identity implements node keypairs, the self-certifying
// node_id, and message signing/verification (spec §3 "Node identity",
// §4.4).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// NodeID is the stable, self-certifying identifier derived from a
// node's public key: base58(sha256(pubkey)[:20]).
type NodeID string

// Identity wraps a node's persistent Ed25519 keypair.
type Identity struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// New generates a fresh keypair.
func New() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	return &Identity{Public: pub, private: priv}, nil
}

// NodeID derives the self-certifying identifier for this identity.
func (id *Identity) NodeID() NodeID {
	return DeriveNodeID(id.Public)
}

// DeriveNodeID derives a NodeID from an arbitrary Ed25519 public key,
// used by peers to validate a remote node_id against its signing key
// during the handshake (spec §4.1).
func DeriveNodeID(pub ed25519.PublicKey) NodeID {
	sum := sha256.Sum256(pub)
	return NodeID(base58.Encode(sum[:20]))
}

// PrivateSeed returns the 32-byte Ed25519 seed underlying this
// identity's private key, used to derive keys in other groups (e.g.
// the libp2p host key, the secp256k1 anonymous-voting key) from the
// same root secret.
func (id *Identity) PrivateSeed() []byte {
	return id.private.Seed()
}

// Sign produces a detached Ed25519 signature over payload.
func (id *Identity) Sign(payload []byte) []byte {
	return ed25519.Sign(id.private, payload)
}

// SignJSON marshals v deterministically-enough (encoding/json field
// order is declaration order) and signs the result, returning both the
// canonical bytes and the signature so callers can store either.
func (id *Identity) SignJSON(v any) ([]byte, []byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal for signing: %w", err)
	}
	return raw, id.Sign(raw), nil
}

// Verify checks a detached signature against a known public key.
func Verify(pub ed25519.PublicKey, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}

// persistedKey is the on-disk representation of an identity (spec §6
// "Persisted state layout": the identity keypair is one of the two
// durable artifacts every node maintains).
type persistedKey struct {
	Public  []byte `json:"public"`
	Private []byte `json:"private"`
}

// Save writes the keypair to path with owner-only permissions.
func (id *Identity) Save(path string) error {
	raw, err := json.Marshal(persistedKey{Public: id.Public, Private: id.private})
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return nil
}

// Load reads a previously Saved keypair. A corrupt or truncated key is a
// fatal error per spec §7: the node must refuse to start rather than
// run with a half-loaded identity.
func Load(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	var pk persistedKey
	if err := json.Unmarshal(raw, &pk); err != nil {
		return nil, fmt.Errorf("corrupt identity file %s: %w", path, err)
	}
	if len(pk.Public) != ed25519.PublicKeySize || len(pk.Private) != ed25519.PrivateKeySize {
		return nil, errors.New("corrupt identity file: wrong key length")
	}
	return &Identity{Public: pk.Public, private: pk.Private}, nil
}

// LoadOrCreate loads an identity from path, generating and persisting a
// fresh one if the file does not exist.
func LoadOrCreate(path string) (*Identity, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		id, err := New()
		if err != nil {
			return nil, err
		}
		if err := id.Save(path); err != nil {
			return nil, err
		}
		return id, nil
	}
	return Load(path)
}
