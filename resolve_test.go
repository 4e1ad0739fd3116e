package memox

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"golang.org/x/xerrors"
)

// failStore is a KeyStore with a broken backend.
type failStore struct {
	err error
}

func (s failStore) LookupPrivate(pub *PublicKey) (*PrivateKey, error) {
	return nil, s.err
}

// missFailStore misses on one key and fails on any other lookup.
type missFailStore struct {
	miss *PublicKey
	err  error
}

func (s missFailStore) LookupPrivate(pub *PublicKey) (*PrivateKey, error) {
	if pub.Equal(s.miss) {
		return nil, prefixError(ErrKeyNotFound, "%s", pub)
	}
	return nil, s.err
}

// traceStore records which keys are looked up, in order.
type traceStore struct {
	ring    *Keyring
	lookups []string
}

func (s *traceStore) LookupPrivate(pub *PublicKey) (*PrivateKey, error) {
	s.lookups = append(s.lookups, pub.String())
	return s.ring.LookupPrivate(pub)
}

func TestEncryptDecrypt(t *testing.T) {
	tcheck := func(got, exp error, action string) {
		t.Helper()
		check(t, got, exp, action)
	}

	alice := testKey(t, aliceWIF)
	bob := testKey(t, bobWIF)

	both := NewKeyring()
	both.Add(alice, "STM")
	both.Add(bob, "STM")

	env, err := Encrypt(both, testPub(t, alicePub), testPub(t, bobPub), "hello")
	tcheck(err, nil, "encrypting")
	if env.From != alicePub || env.To != bobPub {
		t.Fatalf("envelope keys: got %s and %s", env.From, env.To)
	}
	if env.Nonce == "" || env.Message == "" {
		t.Fatalf("envelope with empty nonce or message")
	}
	msg, err := Decrypt(both, env, "STM")
	tcheck(err, nil, "decrypting")
	if msg != "hello" {
		t.Fatalf("decrypting: got %q, expected %q", msg, "hello")
	}

	env2, err := Encrypt(both, testPub(t, alicePub), testPub(t, bobPub), "hello")
	tcheck(err, nil, "encrypting again")
	if env2.Nonce == env.Nonce || env2.Message == env.Message {
		t.Fatalf("second envelope repeats the nonce or message")
	}

	// Absent memos pass through as absent, in both directions.
	env, err = Encrypt(both, testPub(t, alicePub), testPub(t, bobPub), "")
	tcheck(err, nil, "encrypting empty memo")
	if env != nil {
		t.Fatalf("envelope for empty memo: got %v", env)
	}
	msg, err = Decrypt(both, nil, "STM")
	tcheck(err, nil, "decrypting nil envelope")
	if msg != "" {
		t.Fatalf("decrypting nil envelope: got %q", msg)
	}
	msg, err = Decrypt(both, &Envelope{}, "STM")
	tcheck(err, nil, "decrypting envelope without message")
	if msg != "" {
		t.Fatalf("decrypting envelope without message: got %q", msg)
	}

	// An envelope as it comes out of a ledger dump.
	var golden Envelope
	blob := `{"from":"` + alicePub + `","to":"` + bobPub + `","nonce":"17329630356955254641","message":"a608cd70684291bc605107fc370752d2"}`
	err = json.Unmarshal([]byte(blob), &golden)
	tcheck(err, nil, "unmarshalling envelope")

	bobOnly := NewKeyring()
	bobOnly.Add(bob, "STM")
	msg, err = Decrypt(bobOnly, &golden, "STM")
	tcheck(err, nil, "decrypting as receiver")
	if msg != "foobar" {
		t.Fatalf("decrypting as receiver: got %q, expected %q", msg, "foobar")
	}

	// The receiver key is tried first.
	trace := &traceStore{ring: bobOnly}
	_, err = Decrypt(trace, &golden, "STM")
	tcheck(err, nil, "decrypting with receiver key only")
	if len(trace.lookups) != 1 || trace.lookups[0] != bobPub {
		t.Fatalf("lookups with receiver key: %v", trace.lookups)
	}

	// The sender key is the fallback, so outgoing memos decrypt too.
	aliceOnly := NewKeyring()
	aliceOnly.Add(alice, "STM")
	trace = &traceStore{ring: aliceOnly}
	msg, err = Decrypt(trace, &golden, "STM")
	tcheck(err, nil, "decrypting with sender key only")
	if msg != "foobar" {
		t.Fatalf("decrypting with sender key only: got %q, expected %q", msg, "foobar")
	}
	if len(trace.lookups) != 2 || trace.lookups[0] != bobPub || trace.lookups[1] != alicePub {
		t.Fatalf("lookups with sender key: %v", trace.lookups)
	}

	// A checksum failure after a key was found is final, the envelope is not
	// retried under the sender role.
	tampered := golden
	tampered.Message = "b" + golden.Message[1:]
	trace = &traceStore{ring: both}
	_, err = Decrypt(trace, &tampered, "STM")
	tcheck(err, ErrChecksum, "decrypting tampered envelope")
	if len(trace.lookups) != 1 || trace.lookups[0] != bobPub {
		t.Fatalf("lookups for tampered envelope: %v", trace.lookups)
	}

	carolOnly := NewKeyring()
	carolOnly.Add(testKey(t, carolWIF), "STM")
	_, err = Decrypt(carolOnly, &golden, "STM")
	tcheck(err, ErrMissingKey, "decrypting without a key for either role")
	tcheck(err, ErrKeyNotFound, "lookup error preserved under the missing key error")
	if !strings.Contains(err.Error(), bobPub) || !strings.Contains(err.Error(), alicePub) {
		t.Fatalf("missing key error does not name both keys: %s", err)
	}

	_, err = Encrypt(carolOnly, testPub(t, alicePub), testPub(t, bobPub), "hello")
	tcheck(err, ErrMissingKey, "encrypting without the sender key")
	if !strings.Contains(err.Error(), alicePub) {
		t.Fatalf("missing key error does not name the sender key: %s", err)
	}

	// Key store failures other than a missing key abort instead of falling
	// through to the next role.
	broken := errors.New("backend failure")
	_, err = Encrypt(failStore{broken}, testPub(t, alicePub), testPub(t, bobPub), "hello")
	tcheck(err, broken, "encrypting with failing key store")
	_, err = Decrypt(failStore{broken}, &golden, "STM")
	tcheck(err, broken, "decrypting with failing key store")

	// Also on the fallback lookup: a backend failure after a missing
	// receiver key is not a missing-key condition.
	_, err = Decrypt(missFailStore{testPub(t, bobPub), broken}, &golden, "STM")
	tcheck(err, broken, "decrypting with key store failing on the sender lookup")
	if xerrors.Is(err, ErrMissingKey) {
		t.Fatalf("backend failure reported as missing key: %v", err)
	}

	_, err = Decrypt(both, &Envelope{From: alicePub, To: "junk", Nonce: "1", Message: "00"}, "STM")
	tcheck(err, ErrBadKey, "decrypting with malformed receiver key")
	_, err = Decrypt(both, &Envelope{From: "junk", To: bobPub, Nonce: "1", Message: "00"}, "STM")
	tcheck(err, ErrBadKey, "decrypting with malformed sender key")
	_, err = Decrypt(both, &golden, "GPH")
	tcheck(err, ErrBadKey, "decrypting with wrong address prefix")
}
