// Package anonvote implements the anonymous-vote proof contract of
// spec.md §4.4: a voter proves, without revealing which key is theirs,
// that they control a secp256k1 key belonging to a reputation tier's
// eligible-voter set, while producing a nullifier that prevents a
// second vote on the same proposal from being accepted.
//
// Construction (spec.md §9, Open Question 1 resolved here): a
// non-interactive linkable ring signature in the CryptoNote/LSAG style
// over secp256k1, Fiat-Shamir challenges hashed with the proposal id so
// the proof cannot be replayed against a different proposal. The
// "commitment, challenge, response" triple spec.md §4.4 describes is the
// ring's (c_0, s_0..s_{n-1}) transcript; "nullifier" is the linking tag
// I = x*Hp(P) standard to linkable ring signatures, which is
// deterministic per (secret key, proposal) exactly as spec.md requires,
// rather than a bare hash of the secret — a bare hash cannot be tied
// into the ring equations that prove tier membership, so the key-image
// form is the one that makes both properties (anonymity within the
// tier, and double-vote detection) hold simultaneously.
package anonvote

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// VotingKey is a voter's secp256k1 keypair used only for anonymous
// voting proofs — distinct from the node's Ed25519 signing identity,
// since the ring equations below require a group with usable scalar
// arithmetic over the same curve as the rest of this package.
type VotingKey struct {
	priv *secp256k1.PrivateKey
}

// DeriveVotingKey derives a deterministic secp256k1 voting key from a
// node's Ed25519 private key seed, so a node need not manage a second
// independent secret.
func DeriveVotingKey(ed25519Seed []byte) *VotingKey {
	h := sha256.Sum256(append([]byte("synapse-ng/anonvote/voting-key"), ed25519Seed...))
	priv := secp256k1.PrivKeyFromBytes(h[:])
	return &VotingKey{priv: priv}
}

// PublicKey returns the serialized compressed public key identifying
// this voting key within a tier's ring.
func (k *VotingKey) PublicKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// Proof is the anonymous vote proof attached to a proposal's
// anonymous_votes entry (spec.md §3 "Proposal").
type Proof struct {
	Tier       int      `json:"tier"`
	Nullifier  []byte   `json:"nullifier"`
	Ring       [][]byte `json:"ring"`   // compressed pubkeys of every tier member considered, in order
	C0         []byte   `json:"c0"`     // 32-byte scalar
	Responses  [][]byte `json:"responses"` // one 32-byte scalar per ring member
}

// hashToPoint implements a try-and-increment hash-to-curve so that the
// resulting point has no known discrete log relationship to G; without
// this, any Hp(P) expressible as h*G would let a verifier compute the
// nullifier without the secret, defeating the proof of knowledge.
func hashToPoint(seed []byte) secp256k1.JacobianPoint {
	for counter := uint32(0); ; counter++ {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], counter)
		sum := sha256.Sum256(append(append([]byte{}, seed...), buf[:]...))

		var x secp256k1.FieldVal
		if overflow := x.SetByteSlice(sum[:]); overflow {
			continue
		}
		var y secp256k1.FieldVal
		if !secp256k1.DecompressY(&x, false, &y) {
			continue
		}
		var p secp256k1.JacobianPoint
		p.X, p.Y = x, y
		p.Z.SetInt(1)
		return p
	}
}

// challengeScalar is the Fiat-Shamir hash used at every ring step; it
// binds the transcript to the proposal id so a proof cannot be reused
// against a different proposal.
func challengeScalar(proposalID string, tier int, l, r *secp256k1.JacobianPoint) secp256k1.ModNScalar {
	l.ToAffine()
	r.ToAffine()
	h := sha256.New()
	h.Write([]byte("synapse-ng/anonvote/challenge"))
	h.Write([]byte(proposalID))
	var tierBuf [4]byte
	binary.BigEndian.PutUint32(tierBuf[:], uint32(tier))
	h.Write(tierBuf[:])
	lb := l.X.Bytes()
	rb := r.X.Bytes()
	h.Write(lb[:])
	h.Write(rb[:])
	sum := h.Sum(nil)
	var s secp256k1.ModNScalar
	s.SetByteSlice(sum)
	return s
}

// pointFromPub loads the Jacobian form of a compressed public key.
func pointFromPub(compressed []byte) (secp256k1.JacobianPoint, error) {
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		var zero secp256k1.JacobianPoint
		return zero, fmt.Errorf("parse ring member pubkey: %w", err)
	}
	var p secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	return p, nil
}

// Prove produces an anonymous-vote proof that the caller's voting key is
// one of ring (the public keys of every node in the caller's reputation
// tier), without revealing which index. signerIndex identifies the
// caller's own key's position within ring.
func Prove(key *VotingKey, proposalID string, tier int, ring [][]byte, signerIndex int) (*Proof, error) {
	if signerIndex < 0 || signerIndex >= len(ring) {
		return nil, errors.New("signer index out of range")
	}
	n := len(ring)
	points := make([]secp256k1.JacobianPoint, n)
	for i, pk := range ring {
		p, err := pointFromPub(pk)
		if err != nil {
			return nil, err
		}
		points[i] = p
	}

	var xScalar secp256k1.ModNScalar
	xBytes := key.priv.Serialize()
	xScalar.SetByteSlice(xBytes)

	// Per-member hash-to-curve point, bound to the proposal id so the
	// resulting key image (nullifier) is specific to this proposal.
	hps := make([]secp256k1.JacobianPoint, n)
	for i, pk := range ring {
		hps[i] = hashToPoint(append(append([]byte{}, pk...), []byte(proposalID)...))
	}
	hpSigner := hps[signerIndex]

	var image secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&xScalar, &hpSigner, &image)
	image.ToAffine()

	cs := make([]secp256k1.ModNScalar, n)
	ss := make([]secp256k1.ModNScalar, n)

	alpha, err := randScalar()
	if err != nil {
		return nil, err
	}

	var lStart, rStart secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&alpha, &lStart)
	secp256k1.ScalarMultNonConst(&alpha, &hpSigner, &rStart)

	next := (signerIndex + 1) % n
	cs[next] = challengeScalar(proposalID, tier, &lStart, &rStart)

	for steps := 1; steps < n; steps++ {
		i := (signerIndex + steps) % n
		s, err := randScalar()
		if err != nil {
			return nil, err
		}
		ss[i] = s

		var sg, cp, l secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(&s, &sg)
		secp256k1.ScalarMultNonConst(&cs[i], &points[i], &cp)
		secp256k1.AddNonConst(&sg, &cp, &l)

		var shp, ci secp256k1.JacobianPoint
		secp256k1.ScalarMultNonConst(&s, &hps[i], &shp)
		secp256k1.ScalarMultNonConst(&cs[i], &image, &ci)
		var r secp256k1.JacobianPoint
		secp256k1.AddNonConst(&shp, &ci, &r)

		nextIdx := (i + 1) % n
		cs[nextIdx] = challengeScalar(proposalID, tier, &l, &r)
	}

	// close the ring: s_signer = alpha - c_signer * x (mod N)
	var cx secp256k1.ModNScalar
	cx.Set(&cs[signerIndex])
	cx.Mul(&xScalar)
	var sSigner secp256k1.ModNScalar
	sSigner.Set(&alpha)
	negCX := cx
	negCX.Negate()
	sSigner.Add(&negCX)
	ss[signerIndex] = sSigner

	responses := make([][]byte, n)
	for i := range ss {
		b := ss[i].Bytes()
		responses[i] = b[:]
	}
	c0 := cs[0].Bytes()

	imgBytes := imagePointBytes(&image)

	return &Proof{
		Tier:      tier,
		Nullifier: imgBytes,
		Ring:      append([][]byte{}, ring...),
		C0:        c0[:],
		Responses: responses,
	}, nil
}

// Verify checks a Proof against the proposal id and tier it claims, and
// returns whether the ring closes (i.e. some member of Ring produced
// it). It does not, and cannot, identify which member.
func Verify(proof *Proof, proposalID string) (bool, error) {
	n := len(proof.Ring)
	if n == 0 || len(proof.Responses) != n {
		return false, errors.New("malformed proof: ring/response length mismatch")
	}
	points := make([]secp256k1.JacobianPoint, n)
	for i, pk := range proof.Ring {
		p, err := pointFromPub(pk)
		if err != nil {
			return false, err
		}
		points[i] = p
	}

	image, err := imagePointFromBytes(proof.Nullifier)
	if err != nil {
		return false, err
	}

	var c secp256k1.ModNScalar
	if overflow := c.SetByteSlice(proof.C0); overflow {
		return false, errors.New("malformed proof: c0 out of range")
	}
	c0 := c

	for i := 0; i < n; i++ {
		hp := hashToPoint(append(append([]byte{}, proof.Ring[i]...), []byte(proposalID)...))

		var s secp256k1.ModNScalar
		if overflow := s.SetByteSlice(proof.Responses[i]); overflow {
			return false, errors.New("malformed proof: response out of range")
		}

		var sg, cp, l secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(&s, &sg)
		secp256k1.ScalarMultNonConst(&c, &points[i], &cp)
		secp256k1.AddNonConst(&sg, &cp, &l)

		var shp, ci, r secp256k1.JacobianPoint
		secp256k1.ScalarMultNonConst(&s, &hp, &shp)
		secp256k1.ScalarMultNonConst(&c, &image, &ci)
		secp256k1.AddNonConst(&shp, &ci, &r)

		c = challengeScalar(proposalID, proof.Tier, &l, &r)
	}

	return c.Equals(&c0), nil
}

func randScalar() (secp256k1.ModNScalar, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		var zero secp256k1.ModNScalar
		return zero, err
	}
	var s secp256k1.ModNScalar
	s.SetByteSlice(buf[:])
	return s, nil
}

func imagePointBytes(p *secp256k1.JacobianPoint) []byte {
	p.ToAffine()
	var pub secp256k1.PublicKey
	pub = *secp256k1.NewPublicKey(&p.X, &p.Y)
	return pub.SerializeCompressed()
}

func imagePointFromBytes(b []byte) (secp256k1.JacobianPoint, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		var zero secp256k1.JacobianPoint
		return zero, fmt.Errorf("parse nullifier point: %w", err)
	}
	var p secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	return p, nil
}
