// Package signature signs and verifies canonical payloads with secp256r1 keys.
//
// Signing is deterministic (RFC 6979): the same payload and timestamp always
// produce the same 64-byte r||s signature, hex encoded. Signatures are
// canonical: exactly 128 lowercase hex characters with s in the lower half of
// the curve order, so a signed payload has a single accepted encoding.
package signature

import (
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/relay_layer/internal/errors"
	"github.com/R3E-Network/relay_layer/pkg/canonical"
	"github.com/R3E-Network/relay_layer/pkg/intent"
)

// Field is the payload key that carries the signature and is excluded from
// the signed bytes.
const Field = "signature"

// HexLength is the length of a canonical hex signature.
const HexLength = 128

var (
	curveOrder     = elliptic.P256().Params().N
	halfCurveOrder = new(big.Int).Rsh(curveOrder, 1)
)

// InvalidKeyError is returned for key material that cannot be decoded.
type InvalidKeyError struct {
	Reason string
	Err    error
}

func (e *InvalidKeyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid key: %s: %v", e.Reason, e.Err)
	}
	return "invalid key: " + e.Reason
}

func (e *InvalidKeyError) Unwrap() error { return e.Err }

// ErrorKind implements errors.Kinded.
func (e *InvalidKeyError) ErrorKind() errors.Kind { return errors.KindInternal }

// ParsePublicKey decodes a compressed or uncompressed hex public key.
func ParsePublicKey(s string) (*keys.PublicKey, error) {
	s = trimHex(s)
	if s == "" {
		return nil, &InvalidKeyError{Reason: "public key is empty"}
	}
	pub, err := keys.NewPublicKeyFromString(s)
	if err != nil {
		return nil, &InvalidKeyError{Reason: "public key", Err: err}
	}
	return pub, nil
}

// ParsePrivateKey decodes a 32-byte hex private key.
func ParsePrivateKey(s string) (*keys.PrivateKey, error) {
	s = trimHex(s)
	if s == "" {
		return nil, &InvalidKeyError{Reason: "private key is empty"}
	}
	priv, err := keys.NewPrivateKeyFromHex(s)
	if err != nil {
		return nil, &InvalidKeyError{Reason: "private key", Err: err}
	}
	return priv, nil
}

// PublicKeyHex returns the compressed hex form of key's public key.
func PublicKeyHex(key *keys.PrivateKey) string {
	return hex.EncodeToString(key.PublicKey().Bytes())
}

// SignDigest signs a 32-byte digest and returns the canonical hex r||s
// signature.
func SignDigest(key *keys.PrivateKey, digest [32]byte) string {
	sig := key.SignHash(util.Uint256(digest))
	s := new(big.Int).SetBytes(sig[32:])
	if s.Cmp(halfCurveOrder) > 0 {
		s.Sub(curveOrder, s)
		s.FillBytes(sig[32:])
	}
	return hex.EncodeToString(sig)
}

// VerifyDigest checks a hex signature over digest. Malformed and
// non-canonical signatures verify as false.
func VerifyDigest(pub *keys.PublicKey, digest [32]byte, sigHex string) bool {
	sig, ok := decodeCanonical(sigHex)
	if !ok {
		return false
	}
	return pub.Verify(sig, digest[:])
}

// IsCanonical reports whether sigHex is 128 lowercase hex characters encoding
// r||s with s no greater than half the curve order.
func IsCanonical(sigHex string) bool {
	_, ok := decodeCanonical(sigHex)
	return ok
}

func decodeCanonical(sigHex string) ([]byte, bool) {
	if len(sigHex) != HexLength {
		return nil, false
	}
	for i := 0; i < len(sigHex); i++ {
		c := sigHex[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, false
		}
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, false
	}
	if new(big.Int).SetBytes(sig[32:]).Cmp(halfCurveOrder) > 0 {
		return nil, false
	}
	return sig, true
}

// Signer signs payloads with a private key.
type Signer struct {
	Key *keys.PrivateKey
	Now func() time.Time
}

// NewSigner returns a Signer using the wall clock.
func NewSigner(key *keys.PrivateKey) *Signer {
	return &Signer{Key: key, Now: time.Now}
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PublicKeyHex returns the signer's compressed public key.
func (s *Signer) PublicKeyHex() string { return PublicKeyHex(s.Key) }

// Sign removes any existing signature from payload, stamps a millisecond
// timestamp when absent and signs the canonical encoding. payload is updated
// in place so the caller transmits exactly what was signed.
func (s *Signer) Sign(payload map[string]any) (string, error) {
	if s.Key == nil {
		return "", &InvalidKeyError{Reason: "signer has no private key"}
	}
	delete(payload, Field)
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = s.now().UnixMilli()
	}
	digest, err := canonical.Hash(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return SignDigest(s.Key, digest), nil
}

// SignIntent stamps and signs a typed intent.
func (s *Signer) SignIntent(in *intent.TransactionIntent) (*intent.SignedIntent, error) {
	signed := &intent.SignedIntent{TransactionIntent: *in}
	signed.Normalize()
	signed.Stamp(s.now())

	payload, err := canonical.ToObject(signed.TransactionIntent)
	if err != nil {
		return nil, fmt.Errorf("encode intent: %w", err)
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return nil, err
	}
	signed.Signature = sig
	return signed, nil
}

// Verify checks sigHex against the canonical encoding of payload without its
// signature field. It returns an error only when publicKeyHex is malformed.
func Verify(payload map[string]any, sigHex, publicKeyHex string) (bool, error) {
	pub, err := ParsePublicKey(publicKeyHex)
	if err != nil {
		return false, err
	}

	digest, err := Digest(payload)
	if err != nil {
		return false, nil
	}
	return VerifyDigest(pub, digest, sigHex), nil
}

// Digest returns the hash of the canonical encoding of payload without its
// signature field. It identifies what a signature commits to.
func Digest(payload map[string]any) ([32]byte, error) {
	unsigned := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != Field {
			unsigned[k] = v
		}
	}
	return canonical.Hash(unsigned)
}

// VerifyIntent checks a typed signed intent.
func VerifyIntent(si *intent.SignedIntent, publicKeyHex string) (bool, error) {
	payload, err := canonical.ToObject(si.TransactionIntent)
	if err != nil {
		if _, keyErr := ParsePublicKey(publicKeyHex); keyErr != nil {
			return false, keyErr
		}
		return false, nil
	}
	return Verify(payload, si.Signature, publicKeyHex)
}

func trimHex(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	return strings.TrimPrefix(s, "0X")
}
