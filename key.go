package memox

import (
	"bytes"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/ripemd160"
)

// PrivateKey is a secp256k1 private memo key.
type PrivateKey struct {
	k *btcec.PrivateKey
}

// PublicKey is a secp256k1 public memo key, along with the address prefix it
// is serialized with. The prefix is cosmetic, key identity is the curve
// point, see Equal.
type PublicKey struct {
	k      *btcec.PublicKey
	prefix string
}

// GenerateKey returns a new random private memo key.
func GenerateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{k}, nil
}

// ParsePrivateKey parses a private key in wallet import format: base58 of a
// version byte, the 32 key bytes and a 4-byte double-SHA-256 checksum. The
// version byte is ignored, like in the wallets this format comes from.
func ParsePrivateKey(s string) (*PrivateKey, error) {
	buf, _, err := base58.CheckDecode(s)
	if err != nil {
		return nil, prefixError(ErrBadKey, "decoding wallet import format: %s", err)
	}
	defer zero(buf)
	if len(buf) != 32 {
		return nil, prefixError(ErrBadKey, "got %d key bytes, expected 32", len(buf))
	}
	k, _ := btcec.PrivKeyFromBytes(buf)
	if k.Key.IsZero() {
		return nil, prefixError(ErrBadKey, "key is zero")
	}
	return &PrivateKey{k}, nil
}

// String returns the private key in wallet import format. This is the
// secret, handle with care.
func (k *PrivateKey) String() string {
	buf := k.k.Serialize()
	defer zero(buf)
	return base58.CheckEncode(buf, 0x80)
}

// Public returns the public key belonging to this private key, serialized
// with the given address prefix.
func (k *PrivateKey) Public(prefix string) *PublicKey {
	return &PublicKey{k.k.PubKey(), prefix}
}

// Zero clears the private key material.
func (k *PrivateKey) Zero() {
	k.k.Zero()
}

// ParsePublicKey parses a public memo key: the address prefix followed by
// base58 of the 33-byte compressed curve point and a 4-byte RIPEMD-160
// checksum.
func ParsePublicKey(s, prefix string) (*PublicKey, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, prefixError(ErrBadKey, "missing %q address prefix", prefix)
	}
	buf := base58.Decode(s[len(prefix):])
	if len(buf) == 0 {
		return nil, prefixError(ErrBadKey, "bad base58 in public key")
	}
	if len(buf) != 33+4 {
		return nil, prefixError(ErrBadKey, "got %d public key bytes, expected 37", len(buf))
	}
	point, sum := buf[:33], buf[33:]
	if !bytes.Equal(keyChecksum(point), sum) {
		return nil, prefixError(ErrBadKey, "public key checksum mismatch")
	}
	k, err := btcec.ParsePubKey(point)
	if err != nil {
		return nil, prefixError(ErrBadKey, "invalid curve point: %s", err)
	}
	return &PublicKey{k, prefix}, nil
}

// String returns the serialized public key: prefix plus base58 of the
// compressed point and checksum.
func (k *PublicKey) String() string {
	buf := k.k.SerializeCompressed()
	return k.prefix + base58.Encode(append(buf, keyChecksum(buf)...))
}

// Equal reports whether both keys are the same curve point. The address
// prefix does not influence key identity: the same key serialized with
// different prefixes is still the same key.
func (k *PublicKey) Equal(o *PublicKey) bool {
	return k.k.IsEqual(o.k)
}

func keyChecksum(buf []byte) []byte {
	h := ripemd160.New()
	h.Write(buf)
	return h.Sum(nil)[:4]
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
