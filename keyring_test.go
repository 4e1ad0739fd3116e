package memox

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestKeyring(t *testing.T) {
	tcheck := func(got, exp error, action string) {
		t.Helper()
		check(t, got, exp, action)
	}

	dir, err := os.Getwd()
	tcheck(err, nil, "getwd")

	err = os.Chdir(t.TempDir())
	tcheck(err, nil, "chdir to scratch dir")
	defer func() {
		err := os.Chdir(dir)
		if err != nil {
			log.Printf("restoring workdir after test: %s", err)
		}
	}()

	_, err = FindKeyring("STM")
	tcheck(err, ErrNoMemoxDir, "finding keyring without a .memox directory")

	err = os.Mkdir(".memox", 0700)
	tcheck(err, nil, "mkdir .memox")

	_, err = FindKeyring("STM")
	tcheck(err, ErrNoKeyring, "finding keyring without a keyring file")

	err = AppendKeyring(".memox/keyring", testKey(t, aliceWIF), "STM")
	tcheck(err, nil, "appending first key")
	err = AppendKeyring(".memox/keyring", testKey(t, carolWIF), "STM")
	tcheck(err, nil, "appending second key")

	ring, err := FindKeyring("STM")
	tcheck(err, nil, "finding keyring")

	priv, err := ring.LookupPrivate(testPub(t, alicePub))
	tcheck(err, nil, "looking up private key")
	if priv.String() != aliceWIF {
		t.Fatalf("lookup returned another key")
	}

	// Lookup is by curve point, the address prefix of the key asked for does
	// not matter.
	gph, err := ParsePublicKey("GPH"+strings.TrimPrefix(carolPub, "STM"), "GPH")
	tcheck(err, nil, "parsing public key with other prefix")
	_, err = ring.LookupPrivate(gph)
	tcheck(err, nil, "looking up key parsed with other prefix")

	_, err = ring.LookupPrivate(testPub(t, bobPub))
	tcheck(err, ErrKeyNotFound, "looking up absent key")

	ring.Add(testKey(t, bobWIF), "STM")
	keys := ring.Keys()
	want := []string{alicePub, carolPub, bobPub}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, expected %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i].String() != want[i] {
			t.Fatalf("keys[%d]: got %s, expected %s", i, keys[i], want[i])
		}
	}

	var buf bytes.Buffer
	_, err = ring.WriteTo(&buf)
	tcheck(err, nil, "writing keyring")
	again, err := ParseKeyring(strings.NewReader(buf.String()), "STM", "keyring")
	tcheck(err, nil, "parsing written keyring")
	_, err = again.LookupPrivate(testPub(t, bobPub))
	tcheck(err, nil, "looking up key in reparsed keyring")

	// Unknown version words are skipped, a future format must not break
	// reading what we do understand.
	again, err = ParseKeyring(strings.NewReader("memox1 later format\n"+buf.String()), "STM", "keyring")
	tcheck(err, nil, "parsing keyring with unknown version line")
	_, err = again.LookupPrivate(testPub(t, alicePub))
	tcheck(err, nil, "looking up key after skipped line")

	_, err = ParseKeyring(strings.NewReader("memox0 junk\n"), "STM", "keyring")
	tcheck(err, errBadKeyring, "parsing keyring with malformed line")

	_, err = ParseKeyring(strings.NewReader("memox0 "+bobPub+" "+aliceWIF+"\n"), "STM", "keyring")
	tcheck(err, errBadKeyring, "parsing keyring with mismatching key pair")

	_, err = ParseKeyring(strings.NewReader("memox0 "+alicePub+" junk\n"), "STM", "keyring")
	tcheck(err, errBadKeyring, "parsing keyring with malformed private key")

	// The keyring holds private keys, world-accessible files are refused.
	err = os.Chmod(".memox/keyring", 0644)
	tcheck(err, nil, "chmod keyring")
	_, err = FindKeyring("STM")
	tcheck(err, errBadKeyring, "reading world-readable keyring")
	err = os.Chmod(".memox/keyring", 0600)
	tcheck(err, nil, "chmod keyring back")
	_, err = FindKeyring("STM")
	tcheck(err, nil, "reading keyring after restoring permissions")

	err = os.WriteFile("sealedring", append([]byte("memoxseal"), 1, 2, 3), 0600)
	tcheck(err, nil, "writing sealed keyring file")
	_, err = ReadKeyring("sealedring", "STM")
	tcheck(err, ErrKeyringSealed, "reading sealed keyring as plain keyring")

	// Appending a plain text line to a sealed keyring would corrupt it.
	err = AppendKeyring("sealedring", testKey(t, bobWIF), "STM")
	tcheck(err, ErrKeyringSealed, "appending to sealed keyring")
	raw, err := os.ReadFile("sealedring")
	tcheck(err, nil, "reading sealed keyring file back")
	if !bytes.Equal(raw, append([]byte("memoxseal"), 1, 2, 3)) {
		t.Fatalf("refused append modified the sealed keyring file")
	}
}
