package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := []byte("hello synapse")
	sig := id.Sign(payload)
	if !Verify(id.Public, payload, sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(id.Public, []byte("tampered"), sig) {
		t.Fatalf("signature must not verify against a different payload")
	}
}

func TestNodeIDDeterministic(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := id.NodeID()
	b := DeriveNodeID(id.Public)
	if a != b {
		t.Fatalf("NodeID() and DeriveNodeID(pub) must agree: %s != %s", a, b)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")

	id, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := id.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NodeID() != id.NodeID() {
		t.Fatalf("loaded identity has a different node id")
	}
	sig := loaded.Sign([]byte("x"))
	if !Verify(id.Public, []byte("x"), sig) {
		t.Fatalf("signature from loaded identity must verify against original public key")
	}
}

func TestLoadOrCreateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")

	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate second call: %v", err)
	}
	if first.NodeID() != second.NodeID() {
		t.Fatalf("LoadOrCreate must return the same identity across calls")
	}
}

func TestLoadCorruptFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected corrupt identity file to fail loading")
	}
}
