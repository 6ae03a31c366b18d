package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
	"github.com/sara-star-quant/sevenlayer/pkg/engine"
	"github.com/sara-star-quant/sevenlayer/pkg/keyagree"
)

func keygenCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("keygen", "Generate a random master key, or derive one from -password or -participants.\n"+
		"The key is written as hex; its fingerprint goes to stderr.", stderr)
	password := fs.String("password", "", "Derive the key from a password")
	participants := fs.String("participants", "", "Derive the key from two participant ids, e.g. alice,bob")
	out := fs.String("out", "-", "Output file (- for stdout)")

	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *password != "" && *participants != "" {
		return fmt.Errorf("-password and -participants are mutually exclusive")
	}

	var key []byte
	var err error
	switch {
	case *password != "":
		key, err = keyagree.FromPassword([]byte(*password))
	case *participants != "":
		key, err = (&keyFlags{participants: *participants}).resolve()
	default:
		key, err = engine.GenerateMasterKey()
	}
	if err != nil {
		return err
	}
	defer crypto.Zeroize(key)

	fmt.Fprintf(stderr, "fingerprint: %s\n", keyagree.Fingerprint(key))
	return writeOutput(*out, stdout, []byte(hex.EncodeToString(key)+"\n"))
}
