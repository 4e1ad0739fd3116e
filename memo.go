package memox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	// ErrBadKey indicates a malformed public or private key: bad base58, a
	// failing checksum, a wrong length or a point not on the curve.
	ErrBadKey = errors.New("bad key")

	// ErrBadMemo indicates malformed encrypted memo data, like bad hex or a
	// length that is not a multiple of the cipher block size.
	ErrBadMemo = errors.New("malformed memo")

	// ErrChecksum is returned when an encrypted memo decrypts without its
	// embedded checksum matching the message: a wrong key, a wrong nonce or
	// a tampered message.
	ErrChecksum = errors.New("memo checksum mismatch")

	// ErrKeyNotFound is returned by a KeyStore that holds no private key for
	// the requested public key.
	ErrKeyNotFound = errors.New("key not found in key store")

	// ErrMissingKey is returned when no usable private key is available for
	// encrypting or decrypting a memo.
	ErrMissingKey = errors.New("missing private key")

	// ErrNoMemoxDir indicates no .memox directory was found.
	ErrNoMemoxDir = errors.New("no .memox directory found")

	// ErrNoKeyring indicates no keyring file was found.
	ErrNoKeyring = errors.New("no keyring file was found")

	// ErrKeyringSealed indicates a keyring file is passphrase-sealed. Open
	// it with OpenKeyring or ReadSealedKeyring.
	ErrKeyringSealed = errors.New("keyring is sealed")

	// ErrNotSealed indicates data passed to OpenKeyring is not a sealed
	// keyring.
	ErrNotSealed = errors.New("not a sealed keyring")

	// ErrPassphrase is returned when a sealed keyring does not open with the
	// given passphrase. A corrupted sealed keyring is indistinguishable from
	// a wrong passphrase.
	ErrPassphrase = errors.New("wrong passphrase or corrupted sealed keyring")

	errBadKeyring = errors.New("malformed keyring file")
)

// EncodeMemo encrypts message from the holder of priv to the holder of the
// private key matching pub. The nonce is consumed as the literal string,
// typically a decimal 64-bit number: decoding requires the exact nonce
// string stored alongside the message. The result is lowercase hex of
// AES-256-CBC over a 4-byte SHA-256 checksum of the message, the message,
// and block padding. Key and IV are derived from the shared secret and the
// nonce, see sharedSecret and deriveKeyIV.
func EncodeMemo(priv *PrivateKey, pub *PublicKey, nonce string, message []byte) (string, error) {
	secret := sharedSecret(priv, pub)
	defer zero(secret)
	key, iv := deriveKeyIV(secret, nonce)
	defer zero(key)
	defer zero(iv)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(message)
	buf := make([]byte, 0, 4+len(message)+aes.BlockSize)
	buf = append(buf, digest[:4]...)
	buf = append(buf, message...)
	buf = pad(buf)
	defer zero(buf)

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return hex.EncodeToString(buf), nil
}

// DecodeMemo decrypts a memo made by EncodeMemo, given one of the two
// private keys, the other party's public key and the stored nonce. The
// embedded checksum must match the decrypted message, a mismatch results in
// ErrChecksum.
func DecodeMemo(priv *PrivateKey, pub *PublicKey, nonce string, message string) ([]byte, error) {
	raw, err := hex.DecodeString(message)
	if err != nil {
		return nil, prefixError(ErrBadMemo, "bad hex: %s", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, prefixError(ErrBadMemo, "got %d bytes of encrypted data, expected a positive multiple of %d", len(raw), aes.BlockSize)
	}

	secret := sharedSecret(priv, pub)
	defer zero(secret)
	key, iv := deriveKeyIV(secret, nonce)
	defer zero(key)
	defer zero(iv)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(raw, raw)
	defer zero(raw)

	buf := unpad(raw)
	if len(buf) < 4 {
		return nil, ErrChecksum
	}
	digest := sha256.Sum256(buf[4:])
	if !bytes.Equal(buf[:4], digest[:4]) {
		return nil, ErrChecksum
	}
	msg := make([]byte, len(buf)-4)
	copy(msg, buf[4:])
	return msg, nil
}

// sharedSecret returns the shared secret bytes for a private and public key:
// the affine X coordinate of priv*Pub in big-endian, with leading zero bytes
// stripped down to a floor of 16 bytes. Deployed implementations of this
// scheme format X with a minimum-width hex format, so roughly 1 in 256 key
// pairs has a secret shorter than 32 bytes, and their messages only decrypt
// when the stripping is reproduced exactly.
func sharedSecret(priv *PrivateKey, pub *PublicKey) []byte {
	var pt, res btcec.JacobianPoint
	pub.k.AsJacobian(&pt)
	btcec.ScalarMultNonConst(&priv.k.Key, &pt, &res)
	res.ToAffine()
	xbuf := res.X.Bytes()
	secret := xbuf[:]
	for len(secret) > 16 && secret[0] == 0 {
		secret = secret[1:]
	}
	return secret
}

// deriveKeyIV derives the AES-256 key and CBC initialization vector for a
// shared secret and nonce: SHA-512 over the nonce string followed by the
// lowercase hex SHA-512 of the secret. The first 32 digest bytes are the
// key, the next 16 the IV.
func deriveKeyIV(secret []byte, nonce string) (key, iv []byte) {
	ss := sha512.Sum512(secret)
	seed := make([]byte, 0, len(nonce)+2*len(ss))
	seed = append(seed, nonce...)
	seed = append(seed, hex.EncodeToString(ss[:])...)
	d := sha512.Sum512(seed)
	zero(ss[:])
	zero(seed)
	return d[:32], d[32:48]
}

func pad(buf []byte) []byte {
	n := aes.BlockSize - len(buf)%aes.BlockSize
	for i := 0; i < n; i++ {
		buf = append(buf, byte(n))
	}
	return buf
}

// unpad strips block padding only when the trailing bytes form valid
// padding: a count byte of at least 1 with that many trailing bytes all
// equal to it. Anything else is returned unchanged, the memo checksum is the
// integrity check.
func unpad(buf []byte) []byte {
	if len(buf) == 0 {
		return buf
	}
	n := int(buf[len(buf)-1])
	if n == 0 || n > len(buf) {
		return buf
	}
	for _, c := range buf[len(buf)-n:] {
		if int(c) != n {
			return buf
		}
	}
	return buf[:len(buf)-n]
}
