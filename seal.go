package memox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/xerrors"
)

// sealMagic starts a sealed keyring, distinguishing it from the plain text
// format.
var sealMagic = []byte("memoxseal")

const sealVersion = 1

// Sealed keyring layout: magic, version byte, argon2 time (uint32),
// memory in KiB (uint32), threads byte, 16-byte salt, 12-byte GCM nonce,
// then AES-256-GCM ciphertext of the keyring text with the whole header as
// additional authenticated data.
const sealHeaderSize = len("memoxseal") + 1 + 4 + 4 + 1 + 16 + 12

// SealParams hold the argon2id key derivation cost for sealing a keyring.
// They are stored in the sealed keyring, so existing files keep opening
// after the defaults change.
type SealParams struct {
	Time    uint32
	MemoryK uint32 // In KiB.
	Threads uint8
}

// DefaultSealParams are used when SealKeyring gets nil params.
var DefaultSealParams = SealParams{Time: 3, MemoryK: 64 * 1024, Threads: 4}

// valid reports whether the parameters are usable: zero rounds or threads
// make argon2 panic, and memory is capped at 4 GiB.
func (p *SealParams) valid() bool {
	return p.Time > 0 && p.Threads > 0 && p.MemoryK <= 4*1024*1024
}

// SealKeyring seals the keyring's text form with a passphrase: AES-256-GCM
// with a key derived from the passphrase through argon2id. Nil params means
// DefaultSealParams.
func SealKeyring(ring *Keyring, passphrase []byte, params *SealParams) ([]byte, error) {
	if params == nil {
		p := DefaultSealParams
		params = &p
	}
	if !params.valid() {
		return nil, xerrors.Errorf("invalid key derivation parameters")
	}

	var text bytes.Buffer
	if _, err := ring.WriteTo(&text); err != nil {
		return nil, err
	}
	defer zero(text.Bytes())

	hdr := make([]byte, 0, sealHeaderSize)
	hdr = append(hdr, sealMagic...)
	hdr = append(hdr, sealVersion)
	hdr = binary.BigEndian.AppendUint32(hdr, params.Time)
	hdr = binary.BigEndian.AppendUint32(hdr, params.MemoryK)
	hdr = append(hdr, params.Threads)

	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, xerrors.Errorf("reading random salt: %w", err)
	}
	hdr = append(hdr, salt[:]...)

	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, xerrors.Errorf("reading random nonce: %w", err)
	}
	hdr = append(hdr, nonce[:]...)

	gcm, err := sealCipher(passphrase, salt[:], params)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(hdr, nonce[:], text.Bytes(), hdr), nil
}

// OpenKeyring opens a sealed keyring with a passphrase, returning the
// keyring text. Data not starting with the sealed keyring magic gives
// ErrNotSealed. A wrong passphrase and a corrupted sealed keyring are
// indistinguishable, both give ErrPassphrase.
func OpenKeyring(box, passphrase []byte) ([]byte, error) {
	if !IsSealed(box) {
		return nil, ErrNotSealed
	}
	if len(box) < sealHeaderSize {
		return nil, prefixError(ErrPassphrase, "truncated sealed keyring")
	}
	hdr, sealed := box[:sealHeaderSize], box[sealHeaderSize:]
	if hdr[9] != sealVersion {
		return nil, prefixError(ErrNotSealed, "unknown sealed keyring version %d", hdr[9])
	}
	params := SealParams{
		Time:    binary.BigEndian.Uint32(hdr[10:14]),
		MemoryK: binary.BigEndian.Uint32(hdr[14:18]),
		Threads: hdr[18],
	}
	if !params.valid() {
		return nil, prefixError(ErrPassphrase, "unreasonable key derivation parameters")
	}
	salt := hdr[19:35]
	nonce := hdr[35:47]

	gcm, err := sealCipher(passphrase, salt, &params)
	if err != nil {
		return nil, err
	}
	text, err := gcm.Open(nil, nonce, sealed, hdr)
	if err != nil {
		return nil, ErrPassphrase
	}
	return text, nil
}

// IsSealed reports whether buf looks like a sealed keyring.
func IsSealed(buf []byte) bool {
	return bytes.HasPrefix(buf, sealMagic)
}

// ReadSealedKeyring reads the sealed keyring file at filename, opens it with
// the passphrase and parses the keys. A plain text keyring file gives
// ErrNotSealed, read those with ReadKeyring.
func ReadSealedKeyring(filename string, passphrase []byte, prefix string) (*Keyring, error) {
	box, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, prefixError(ErrNoKeyring, "%s", err)
		}
		return nil, err
	}
	text, err := OpenKeyring(box, passphrase)
	if err != nil {
		return nil, err
	}
	defer zero(text)
	return ParseKeyring(bytes.NewReader(text), prefix, filename)
}

func sealCipher(passphrase, salt []byte, params *SealParams) (cipher.AEAD, error) {
	key := argon2.IDKey(passphrase, salt, params.Time, params.MemoryK, params.Threads, 32)
	defer zero(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
