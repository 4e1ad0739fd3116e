/*
Memox is a tool for confidential ledger memos: managing memo keys and
encrypting and decrypting memos.

	$ memox
	usage: memox { init | privkey | pubkey | addkey | keys | encrypt | decrypt | seal | unseal }

In the example below, we create a ".memox" directory with "memox init", add
a key, and encrypt and decrypt a memo.

Init

Run "memox init" in the directory you want to keep keys under. Commands
that need keys find the nearest ".memox" directory upwards from the working
directory:

	$ memox init
	init: created .memox/keyring

Privkey, pubkey, addkey, keys

Command privkey prints a new private memo key in wallet import format:

	$ memox privkey >key
	$ cat key
	5HwNR8MkW8JZ1dvE6UM9jnmSYMWS99ptXRjVFBAcgdt1qyoaUDe

Command pubkey reads a private key from stdin and prints the public memo
key. Private keys are read from stdin, not taken as arguments, command
lines are public on most systems:

	$ memox pubkey <key
	STM5hbVzhdhDZMZGD2XKXy41zoCkuu6fExd5YPjFjwiQY9DrkJU6N

Command addkey reads a private key from stdin and adds the key pair to the
keyring. Command keys lists the public keys in the keyring:

	$ memox addkey <key
	addkey: added STM5hbVzhdhDZMZGD2XKXy41zoCkuu6fExd5YPjFjwiQY9DrkJU6N

	$ memox keys
	STM5hbVzhdhDZMZGD2XKXy41zoCkuu6fExd5YPjFjwiQY9DrkJU6N

Encrypt, decrypt

Command encrypt encrypts a memo from the first public memo key to the
second and prints the envelope that goes on the ledger. The keyring must
hold the private key for the sender's key. A fresh random nonce is used,
with -nonce an envelope reproduces byte for byte:

	$ memox encrypt -nonce 17329630356955254641 STM5hbVzhdhDZMZGD2XKXy41zoCkuu6fExd5YPjFjwiQY9DrkJU6N STM7QVm4HyvPQnjQnTQSPuXyY2Cwfr8VkGrqJAJfkvWSJoYPFn5mD foobar
	{"from":"STM5hbVzhdhDZMZGD2XKXy41zoCkuu6fExd5YPjFjwiQY9DrkJU6N","to":"STM7QVm4HyvPQnjQnTQSPuXyY2Cwfr8VkGrqJAJfkvWSJoYPFn5mD","nonce":"17329630356955254641","message":"a608cd70684291bc605107fc370752d2"}

Command decrypt reads an envelope from stdin and prints the memo. The
keyring may hold the private key for either the receiver or the sender key,
both sides of a transfer can read the memo:

	$ memox decrypt <envelope.json
	foobar

Seal, unseal

Command seal encrypts the keyring file with a passphrase. Commands that
need keys refuse a sealed keyring, unseal it first:

	$ memox seal
	Passphrase:
	Repeat passphrase:
	seal: keyring sealed

	$ memox keys
	keys: reading keyring: keyring is sealed: /home/alice/ledger/.memox/keyring

	$ memox unseal
	Passphrase:
	unseal: keyring unsealed
*/
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mjl-/memox"
	"golang.org/x/term"
	"golang.org/x/xerrors"
)

func check(err error, action string) {
	if err != nil {
		log.Fatalf("%s: %s\n", action, err)
	}
}

func main() {
	log.SetFlags(0)

	usage := func() {
		log.Printf("usage: memox { init | privkey | pubkey | addkey | keys | encrypt | decrypt | seal | unseal }\n")
		os.Exit(2)
	}
	if len(os.Args) < 2 {
		usage()
	}

	args := os.Args[1:]
	switch os.Args[1] {
	case "init":
		init0(args)
	case "privkey":
		privkey(args)
	case "pubkey":
		pubkey(args)
	case "addkey":
		addkey(args)
	case "keys":
		keys(args)
	case "encrypt":
		encrypt(args)
	case "decrypt":
		decrypt(args)
	case "seal":
		seal(args)
	case "unseal":
		unseal(args)
	default:
		usage()
	}
}

func init0(args []string) {
	log.SetPrefix("init: ")

	if len(args) != 1 {
		log.Fatalln("usage: memox init")
	}

	os.MkdirAll(".memox", 0700)

	f, err := os.OpenFile(".memox/keyring", os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	check(err, "creating keyring file")
	err = f.Close()
	check(err, "closing keyring file")
	log.Println("created .memox/keyring")
}

func privkey(args []string) {
	log.SetPrefix("privkey: ")

	if len(args) != 1 {
		log.Fatalln("usage: memox privkey >key")
	}

	priv, err := memox.GenerateKey()
	check(err, "generating private key")
	_, err = fmt.Printf("%s\n", priv)
	check(err, "write")
}

func pubkey(args []string) {
	log.SetPrefix("pubkey: ")

	flagset := flag.NewFlagSet(args[0], flag.ExitOnError)
	prefix := flagset.String("prefix", "STM", "address prefix for public memo keys")
	flagset.Usage = func() {
		log.Println("usage: memox pubkey < key")
		flagset.PrintDefaults()
	}
	flagset.Parse(args[1:])
	if len(flagset.Args()) != 0 {
		flagset.Usage()
		os.Exit(2)
	}

	priv := readPrivateKey()
	_, err := fmt.Printf("%s\n", priv.Public(*prefix))
	check(err, "write")
}

func addkey(args []string) {
	log.SetPrefix("addkey: ")

	flagset := flag.NewFlagSet(args[0], flag.ExitOnError)
	prefix := flagset.String("prefix", "STM", "address prefix for public memo keys")
	flagset.Usage = func() {
		log.Println("usage: memox addkey < key")
		flagset.PrintDefaults()
	}
	flagset.Parse(args[1:])
	if len(flagset.Args()) != 0 {
		flagset.Usage()
		os.Exit(2)
	}

	priv := readPrivateKey()
	pub := priv.Public(*prefix)

	dir, err := memox.NearestMemoxDir()
	check(err, "finding .memox directory")
	filename := dir + "/keyring"

	// Reading first catches a sealed keyring before we would append plain
	// text to it, and duplicate keys.
	ring, err := memox.ReadKeyring(filename, *prefix)
	if err != nil && !xerrors.Is(err, memox.ErrNoKeyring) {
		check(err, "reading keyring")
	}
	if ring != nil {
		if _, err := ring.LookupPrivate(pub); err == nil {
			log.Fatalf("key %s already in keyring\n", pub)
		}
	}

	err = memox.AppendKeyring(filename, priv, *prefix)
	check(err, "appending to keyring")
	log.Printf("added %s\n", pub)
}

func keys(args []string) {
	log.SetPrefix("keys: ")

	flagset := flag.NewFlagSet(args[0], flag.ExitOnError)
	prefix := flagset.String("prefix", "STM", "address prefix for public memo keys")
	flagset.Usage = func() {
		log.Println("usage: memox keys")
		flagset.PrintDefaults()
	}
	flagset.Parse(args[1:])
	if len(flagset.Args()) != 0 {
		flagset.Usage()
		os.Exit(2)
	}

	ring, err := memox.FindKeyring(*prefix)
	check(err, "reading keyring")
	for _, pub := range ring.Keys() {
		fmt.Println(pub)
	}
}

func encrypt(args []string) {
	log.SetPrefix("encrypt: ")

	flagset := flag.NewFlagSet(args[0], flag.ExitOnError)
	prefix := flagset.String("prefix", "STM", "address prefix for public memo keys")
	nonce := flagset.String("nonce", "", "encrypt with this nonce instead of a fresh random one, reproducing an envelope byte for byte")
	flagset.Usage = func() {
		log.Println("usage: memox encrypt [flags] from-key to-key [memo]")
		flagset.PrintDefaults()
	}
	flagset.Parse(args[1:])
	args = flagset.Args()
	if len(args) != 2 && len(args) != 3 {
		flagset.Usage()
		os.Exit(2)
	}

	from, err := memox.ParsePublicKey(args[0], *prefix)
	check(err, "parsing sender memo key")
	to, err := memox.ParsePublicKey(args[1], *prefix)
	check(err, "parsing receiver memo key")

	var memo string
	if len(args) == 3 {
		memo = args[2]
	} else {
		buf, err := io.ReadAll(os.Stdin)
		check(err, "reading memo from stdin")
		memo = strings.TrimSuffix(string(buf), "\n")
	}
	if memo == "" {
		log.Fatalln("empty memo")
	}

	ring, err := memox.FindKeyring(*prefix)
	check(err, "reading keyring")

	var env *memox.Envelope
	if *nonce != "" {
		priv, err := ring.LookupPrivate(from)
		check(err, "looking up sender private key")
		enc, err := memox.EncodeMemo(priv, to, *nonce, []byte(memo))
		check(err, "encrypting memo")
		env = &memox.Envelope{From: from.String(), To: to.String(), Nonce: *nonce, Message: enc}
	} else {
		env, err = memox.Encrypt(ring, from, to, memo)
		check(err, "encrypting memo")
	}
	buf, err := json.Marshal(env)
	check(err, "marshalling envelope")
	_, err = fmt.Printf("%s\n", buf)
	check(err, "write")
}

func decrypt(args []string) {
	log.SetPrefix("decrypt: ")

	flagset := flag.NewFlagSet(args[0], flag.ExitOnError)
	prefix := flagset.String("prefix", "STM", "address prefix for public memo keys")
	flagset.Usage = func() {
		log.Println("usage: memox decrypt < envelope.json")
		flagset.PrintDefaults()
	}
	flagset.Parse(args[1:])
	if len(flagset.Args()) != 0 {
		flagset.Usage()
		os.Exit(2)
	}

	var env memox.Envelope
	err := json.NewDecoder(os.Stdin).Decode(&env)
	check(err, "parsing envelope")

	ring, err := memox.FindKeyring(*prefix)
	check(err, "reading keyring")

	msg, err := memox.Decrypt(ring, &env, *prefix)
	check(err, "decrypting memo")
	_, err = fmt.Println(msg)
	check(err, "write")
}

func seal(args []string) {
	log.SetPrefix("seal: ")

	flagset := flag.NewFlagSet(args[0], flag.ExitOnError)
	prefix := flagset.String("prefix", "STM", "address prefix for public memo keys")
	kdfTime := flagset.Uint("time", uint(memox.DefaultSealParams.Time), "argon2id time cost")
	kdfMemory := flagset.Uint("memory", uint(memox.DefaultSealParams.MemoryK), "argon2id memory in KiB")
	kdfThreads := flagset.Uint("threads", uint(memox.DefaultSealParams.Threads), "argon2id threads")
	flagset.Usage = func() {
		log.Println("usage: memox seal [flags]")
		flagset.PrintDefaults()
	}
	flagset.Parse(args[1:])
	if len(flagset.Args()) != 0 {
		flagset.Usage()
		os.Exit(2)
	}

	dir, err := memox.NearestMemoxDir()
	check(err, "finding .memox directory")
	filename := dir + "/keyring"

	ring, err := memox.ReadKeyring(filename, *prefix)
	check(err, "reading keyring")

	pass := readPassphrase(true)
	params := &memox.SealParams{Time: uint32(*kdfTime), MemoryK: uint32(*kdfMemory), Threads: uint8(*kdfThreads)}
	box, err := memox.SealKeyring(ring, pass, params)
	check(err, "sealing keyring")

	err = replaceFile(filename, box)
	check(err, "writing sealed keyring")
	log.Println("keyring sealed")
}

func unseal(args []string) {
	log.SetPrefix("unseal: ")

	flagset := flag.NewFlagSet(args[0], flag.ExitOnError)
	prefix := flagset.String("prefix", "STM", "address prefix for public memo keys")
	flagset.Usage = func() {
		log.Println("usage: memox unseal")
		flagset.PrintDefaults()
	}
	flagset.Parse(args[1:])
	if len(flagset.Args()) != 0 {
		flagset.Usage()
		os.Exit(2)
	}

	dir, err := memox.NearestMemoxDir()
	check(err, "finding .memox directory")
	filename := dir + "/keyring"

	pass := readPassphrase(false)
	ring, err := memox.ReadSealedKeyring(filename, pass, *prefix)
	check(err, "opening sealed keyring")

	var text bytes.Buffer
	_, err = ring.WriteTo(&text)
	check(err, "serializing keyring")

	err = replaceFile(filename, text.Bytes())
	check(err, "writing keyring")
	log.Println("keyring unsealed")
}

func readPrivateKey() *memox.PrivateKey {
	buf, err := io.ReadAll(os.Stdin)
	check(err, "reading private key from stdin")
	priv, err := memox.ParsePrivateKey(strings.TrimSpace(string(buf)))
	check(err, "parsing private key")
	return priv
}

// readPassphrase prompts on the terminal, twice when confirm is set. With
// stdin not a terminal a single line is read instead, for scripted use.
func readPassphrase(confirm bool) []byte {
	stdin := int(os.Stdin.Fd())
	if !term.IsTerminal(stdin) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			check(err, "reading passphrase")
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			log.Fatalln("empty passphrase")
		}
		return []byte(line)
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(stdin)
	fmt.Fprintln(os.Stderr)
	check(err, "reading passphrase")
	if len(pass) == 0 {
		log.Fatalln("empty passphrase")
	}
	if confirm {
		fmt.Fprint(os.Stderr, "Repeat passphrase: ")
		again, err := term.ReadPassword(stdin)
		fmt.Fprintln(os.Stderr)
		check(err, "reading passphrase")
		if !bytes.Equal(pass, again) {
			log.Fatalln("passphrases do not match")
		}
	}
	return pass
}

// replaceFile replaces the contents of filename through a temporary file and
// rename, a failed seal or unseal must not leave a half-written keyring.
func replaceFile(filename string, buf []byte) error {
	tmp := filename + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filename)
}
