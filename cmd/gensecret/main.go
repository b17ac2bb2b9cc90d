// Command gensecret prints a random token signing key,
// or a bcrypt hash of the universal password when one is given.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/courseadvisor/internal/service/auth"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "gensecret: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	password := fs.StringP("password", "p", "", "Print bcrypt hash of the password (UNIVERSAL_PASSWORD_HASH)")
	size := fs.IntP("bytes", "n", SecretKeyBytesLen, "Length of the signing key in bytes (JWT_SECRET)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *password != "" {
		hash, err := auth.DefaultHasher.Hash(*password)
		if err != nil {
			return fmt.Errorf("error while hashing password: %w", err)
		}
		_, err = fmt.Fprintln(out, hash)
		return err
	}

	if *size <= 0 {
		return fmt.Errorf("key length must be positive, got %d", *size)
	}

	key, err := generateKey(*size)
	if err != nil {
		return fmt.Errorf("error while generating secret key: %w", err)
	}
	_, err = fmt.Fprintln(out, key)
	return err
}

func generateKey(size int) (string, error) {
	b := make([]byte, size)

	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
