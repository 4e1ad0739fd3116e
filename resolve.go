package memox

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"

	"golang.org/x/xerrors"
)

// KeyStore provides private memo keys for public keys, like a Keyring.
type KeyStore interface {
	// LookupPrivate returns the private key for a public memo key.
	// Implementations return ErrKeyNotFound, possibly wrapped, when they
	// hold no private key for pub. Any other error aborts the operation
	// that needed the key.
	LookupPrivate(pub *PublicKey) (*PrivateKey, error)
}

// Envelope is an encrypted memo as attached to a transfer: the sender and
// receiver public memo keys, the nonce and the hex encrypted message.
type Envelope struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// Encrypt encrypts memo from the holder of public memo key from to the
// holder of to, with a fresh random nonce. The sender's private key comes
// from keys, with ErrMissingKey when keys does not have it. An empty memo
// returns a nil envelope and no error, transfers commonly carry no memo at
// all.
func Encrypt(keys KeyStore, from, to *PublicKey, memo string) (*Envelope, error) {
	if memo == "" {
		return nil, nil
	}

	priv, err := keys.LookupPrivate(from)
	if err != nil {
		if xerrors.Is(err, ErrKeyNotFound) {
			return nil, &wrapErr{prefixError(ErrMissingKey, "no private key for sender memo key %s", from), err}
		}
		return nil, xerrors.Errorf("looking up sender private key: %w", err)
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	enc, err := EncodeMemo(priv, to, nonce, []byte(memo))
	if err != nil {
		return nil, err
	}
	return &Envelope{From: from.String(), To: to.String(), Nonce: nonce, Message: enc}, nil
}

// Decrypt decrypts an envelope, trying private keys for both roles: first as
// receiver, with the key for the envelope's "to" memo key, then as sender,
// with the key for "from". One keyring thus reads both incoming and outgoing
// memos. A key missing from keys is only a reason to try the other role,
// other key store errors abort. With no private key for either role the
// error is ErrMissingKey, naming both keys. A nil envelope or an empty
// message returns the empty string, matching Encrypt for absent memos.
// The public keys in the envelope are parsed with the given address prefix.
func Decrypt(keys KeyStore, env *Envelope, prefix string) (string, error) {
	if env == nil || env.Message == "" {
		return "", nil
	}

	to, err := ParsePublicKey(env.To, prefix)
	if err != nil {
		return "", xerrors.Errorf("parsing receiver memo key: %w", err)
	}
	from, err := ParsePublicKey(env.From, prefix)
	if err != nil {
		return "", xerrors.Errorf("parsing sender memo key: %w", err)
	}

	priv, other, err := resolveKey(keys, to, from)
	if err != nil {
		return "", err
	}

	msg, err := DecodeMemo(priv, other, env.Nonce, env.Message)
	if err != nil {
		return "", err
	}
	return string(msg), nil
}

// resolveKey finds a usable private key for decrypting an envelope sent
// between the holders of to and from: the receiver role is preferred, the
// sender role is the fallback. It returns the private key and the
// counterparty public key to derive the shared secret with.
func resolveKey(keys KeyStore, to, from *PublicKey) (*PrivateKey, *PublicKey, error) {
	priv, err := keys.LookupPrivate(to)
	if err == nil {
		return priv, from, nil
	}
	if !xerrors.Is(err, ErrKeyNotFound) {
		return nil, nil, xerrors.Errorf("looking up receiver private key: %w", err)
	}

	priv, err = keys.LookupPrivate(from)
	if err == nil {
		return priv, to, nil
	}
	if !xerrors.Is(err, ErrKeyNotFound) {
		return nil, nil, xerrors.Errorf("looking up sender private key: %w", err)
	}
	return nil, nil, &wrapErr{prefixError(ErrMissingKey, "no private key for receiver memo key %s or sender memo key %s", to, from), err}
}

// newNonce returns a fresh uniform 64-bit nonce as a decimal string.
func newNonce() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", xerrors.Errorf("reading random nonce: %w", err)
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(buf[:]), 10), nil
}
