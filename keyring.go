package memox

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
)

// Memox0 is the version word starting each keyring line. Lines with other
// version words are skipped when reading, leaving room for future formats.
const Memox0 = "memox0"

// Keyring is an in-memory set of memo key pairs indexed by public key,
// implementing KeyStore. It is safe for concurrent lookups once loaded,
// mutating it concurrently with use is not.
type Keyring struct {
	pairs map[string]keyPair
}

type keyPair struct {
	pub  *PublicKey
	priv *PrivateKey
}

// keyID is the lookup identity of a public key: the compressed curve point,
// independent of address prefix.
func keyID(pub *PublicKey) string {
	return string(pub.k.SerializeCompressed())
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{pairs: map[string]keyPair{}}
}

// Add adds a private key to the keyring, replacing any previous entry for
// the same public key. The public key is serialized with prefix.
func (r *Keyring) Add(priv *PrivateKey, prefix string) {
	pub := priv.Public(prefix)
	r.pairs[keyID(pub)] = keyPair{pub, priv}
}

// LookupPrivate returns the private key for pub, or ErrKeyNotFound. Keys
// match by curve point, the address prefix of pub does not matter.
func (r *Keyring) LookupPrivate(pub *PublicKey) (*PrivateKey, error) {
	p, ok := r.pairs[keyID(pub)]
	if !ok {
		return nil, prefixError(ErrKeyNotFound, "%s", pub)
	}
	return p.priv, nil
}

// Keys returns the public keys in the keyring, sorted by serialized form.
func (r *Keyring) Keys() []*PublicKey {
	l := make([]*PublicKey, 0, len(r.pairs))
	for _, p := range r.pairs {
		l = append(l, p.pub)
	}
	sort.Slice(l, func(i, j int) bool {
		return l[i].String() < l[j].String()
	})
	return l
}

// WriteTo writes the keyring in the text format read by ParseKeyring, one
// line per key pair, sorted by public key.
func (r *Keyring) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, pub := range r.Keys() {
		p := r.pairs[keyID(pub)]
		nn, err := fmt.Fprintf(w, "%s %s %s\n", Memox0, p.pub, p.priv)
		n += int64(nn)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ParseKeyring parses keyring lines: the version word "memox0", a public
// memo key and the matching private key in wallet import format, separated
// by single spaces. Lines with unknown version words are skipped. The public
// key column must match the key derived from the private key, catching
// editing mishaps before they decrypt nothing. Public keys are parsed with
// prefix, name is used in error messages.
func ParseKeyring(r io.Reader, prefix, name string) (*Keyring, error) {
	// NOTE: error messages must not include the private key column.

	ring := NewKeyring()

	b := bufio.NewReader(r)
	linenumber := 0
	for {
		line, err := b.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if line == "" && err == io.EOF {
			break
		}
		linenumber++
		line = strings.TrimSuffix(line, "\n")
		t := strings.Split(line, " ")
		if len(t) != 3 {
			return nil, prefixError(errBadKeyring, "%s:%d: malformed line, expect three space-separated words", name, linenumber)
		}
		version, pubStr, wif := t[0], t[1], t[2]
		if version != Memox0 {
			continue
		}

		pub, err := ParsePublicKey(pubStr, prefix)
		if err != nil {
			return nil, prefixError(errBadKeyring, "%s:%d: malformed public key %q: %s", name, linenumber, pubStr, err)
		}
		priv, err := ParsePrivateKey(wif)
		if err != nil {
			return nil, prefixError(errBadKeyring, "%s:%d: malformed private key: %s", name, linenumber, err)
		}
		if !priv.Public(prefix).Equal(pub) {
			return nil, prefixError(errBadKeyring, "%s:%d: public key %s does not match private key", name, linenumber, pubStr)
		}
		ring.pairs[keyID(pub)] = keyPair{pub, priv}
	}
	return ring, nil
}

// ReadKeyring reads the keyring file at filename. A world-accessible file is
// refused, it holds private keys. A sealed keyring file results in
// ErrKeyringSealed.
func ReadKeyring(filename, prefix string) (*Keyring, error) {
	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, prefixError(ErrNoKeyring, "%s", err)
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	perm := info.Mode() & os.ModePerm
	if perm&07 != 0 {
		return nil, prefixError(errBadKeyring, "refusing to read world-accessible %s", f.Name())
	}

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	defer zero(buf)
	if IsSealed(buf) {
		return nil, prefixError(ErrKeyringSealed, "%s", filename)
	}
	return ParseKeyring(bytes.NewReader(buf), prefix, filename)
}

// FindKeyring locates and reads the "keyring" file in the nearest ".memox"
// directory, see NearestMemoxDir.
func FindKeyring(prefix string) (*Keyring, error) {
	dir, err := NearestMemoxDir()
	if err != nil {
		return nil, err
	}
	return ReadKeyring(dir+"/keyring", prefix)
}

// AppendKeyring appends a key pair line for priv to the keyring file at
// filename, creating the file if needed. A sealed keyring file is refused
// with ErrKeyringSealed, an appended plain text line would corrupt it.
func AppendKeyring(filename string, priv *PrivateKey, prefix string) error {
	buf, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	defer zero(buf)
	if IsSealed(buf) {
		return prefixError(ErrKeyringSealed, "%s", filename)
	}

	os.MkdirAll(path.Dir(filename), 0700)
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s %s %s\n", Memox0, priv.Public(prefix), priv)
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
