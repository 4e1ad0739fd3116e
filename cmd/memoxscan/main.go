// Memoxscan decrypts confidential memos in bulk from a ledger dump.
//
// It reads one envelope per line from stdin as JSON, the format written by
// "memox encrypt". Memos the keyring holds a private key for, as receiver or
// as sender, are printed with their line number. The rest is reported, or
// skipped with -quiet.
//
// Usage:
//
//	memoxscan <transfers.json
//	memoxscan -quiet -prefix GPH <transfers.json
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mjl-/memox"
)

func check(err error, action string) {
	if err != nil {
		log.Fatalf("%s: %s\n", action, err)
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("memoxscan: ")

	prefix := flag.String("prefix", "STM", "address prefix for public memo keys")
	quiet := flag.Bool("quiet", false, "do not report lines that cannot be parsed or decrypted")
	flag.Usage = func() {
		log.Println("usage: memoxscan < envelopes.json")
		flag.PrintDefaults()
	}
	flag.Parse()
	if len(flag.Args()) != 0 {
		flag.Usage()
		os.Exit(2)
	}

	ring, err := memox.FindKeyring(*prefix)
	check(err, "reading keyring")

	envelopes, decrypted, err := scan(ring, *prefix, *quiet, os.Stdin, os.Stdout)
	check(err, "reading stdin")

	log.Printf("decrypted %d of %d envelopes\n", decrypted, envelopes)
}

// scan reads one envelope per line from in, decrypting what ring can and
// printing the results to out with their line number. Lines that do not
// parse as an envelope or do not decrypt are reported on the log, or skipped
// with quiet. Returned are the number of lines holding an envelope and how
// many of those decrypted, lines with other content are no envelopes.
func scan(ring *memox.Keyring, prefix string, quiet bool, in io.Reader, out io.Writer) (envelopes, decrypted int, rerr error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	linenumber := 0
	for scanner.Scan() {
		linenumber++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		lcheck, handle := errorHandler(func(err error) {
			if !quiet {
				log.Printf("%d: %s\n", linenumber, err)
			}
		})
		func() {
			defer handle()

			var env memox.Envelope
			err := json.Unmarshal(line, &env)
			lcheck(err, "parsing envelope")
			envelopes++

			msg, err := memox.Decrypt(ring, &env, prefix)
			lcheck(err, "decrypting")

			fmt.Fprintf(out, "%d: %s\n", linenumber, msg)
			decrypted++
		}()
	}
	return envelopes, decrypted, scanner.Err()
}
