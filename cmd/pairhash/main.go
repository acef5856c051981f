// Command pairhash prints the PAIRING_CODE_HASH value for a pairing code.
//
// The code is taken from the first argument, the PAIRING_CODE environment
// variable, or the first line of stdin, in that order.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/utils"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(os.Args[1:], os.Getenv, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Failed to hash pairing code")
	}
}

func run(args []string, getenv func(string) string, stdin io.Reader, stdout io.Writer) error {
	code, err := pairingCode(args, getenv, stdin)
	if err != nil {
		return err
	}
	hash, err := utils.HashSecret(code)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "PAIRING_CODE_HASH=%s\n", hash)
	return err
}

func pairingCode(args []string, getenv func(string) string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if code := getenv("PAIRING_CODE"); code != "" {
		return code, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read pairing code: %w", err)
	}
	return line, nil
}
