package wallet

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"

	"intentLedger/internal/model"
)

// ParseHexKey decodes a hex private key, with or without 0x.
func ParseHexKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// LoadKeystore decrypts a V3 keystore file.
func LoadKeystore(path string, passphrase *Passphrase) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", path, err)
	}
	secret, err := passphrase.Get()
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(raw, secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", path, err)
	}
	return key.PrivateKey, nil
}

// Passphrase lazily resolves a keystore passphrase from an environment
// variable or by prompting on the terminal. The value is cached.
type Passphrase struct {
	envVar string

	once  sync.Once
	value string
	err   error
}

func NewPassphrase(envVar string) *Passphrase {
	return &Passphrase{envVar: strings.TrimSpace(envVar)}
}

func (p *Passphrase) Get() (string, error) {
	p.once.Do(func() {
		if p.envVar != "" {
			if value, ok := os.LookupEnv(p.envVar); ok {
				if strings.TrimSpace(value) == "" {
					p.err = fmt.Errorf("%s is set but empty", p.envVar)
					return
				}
				p.value = value
				return
			}
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			p.err = fmt.Errorf("keystore passphrase required; set %s or run interactively", p.envVar)
			return
		}

		fmt.Fprint(os.Stderr, "Enter keystore passphrase: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			p.err = fmt.Errorf("read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(string(raw)) == "" {
			p.err = errors.New("keystore passphrase cannot be empty")
			return
		}
		p.value = string(raw)
	})
	return p.value, p.err
}

// TerminalConfirm prompts on out and reads a y/N answer from in. When in is
// not an interactive terminal every request is declined, so unattended runs
// must pass an explicit auto-approve.
func TerminalConfirm(in *os.File, out io.Writer) Confirm {
	var mu sync.Mutex
	reader := bufio.NewReader(in)
	return func(ctx context.Context, prompt string) error {
		mu.Lock()
		defer mu.Unlock()

		if !term.IsTerminal(int(in.Fd())) {
			return fmt.Errorf("%w: no terminal to confirm %q", model.ErrWalletRejected, prompt)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s? [y/N] ", prompt)
		answer, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read confirmation: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return nil
		default:
			return model.ErrWalletRejected
		}
	}
}
