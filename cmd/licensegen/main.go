// Command licensegen is the vendor side of offline activation. It creates
// the signing key pair and answers activation request codes.
//
//	licensegen -keygen
//	licensegen -request CODE -private-key vendor.key [-plan pro] [-validity 8760h]
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"vidloader/internal/config"
	"vidloader/internal/files"
	"vidloader/internal/infrastructure"
	"vidloader/internal/license"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("licensegen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keygen := fs.Bool("keygen", false, "generate a new Ed25519 key pair")
	keyOut := fs.String("out", "", "with -keygen, also write the private key to `file`")
	request := fs.String("request", "", "activation request `code` from the customer")
	privateKeyFile := fs.String("private-key", "", "base64 private key `file`")
	plan := fs.String("plan", config.DefaultPlanTier, "plan tier to grant")
	validity := fs.Duration("validity", 0, "license lifetime, 0 for no expiry")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := infrastructure.NewLogger(stderr, "warn")

	switch {
	case *keygen && *request == "":
		if err := generate(stdout, *keyOut); err != nil {
			logger.Error("key generation failed", "error", err)
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	case *request != "" && !*keygen:
		if *privateKeyFile == "" {
			fmt.Fprintln(stderr, "-request requires -private-key")
			return 2
		}
		if *validity < 0 {
			fmt.Fprintln(stderr, "-validity must not be negative")
			return 2
		}
		if !config.IsProPlan(*plan) {
			fmt.Fprintf(stderr, "-plan must be one of: %s\n", strings.Join(config.ProPlanTiers, ", "))
			return 2
		}
		blob, err := respond(ctx, *request, *privateKeyFile, *plan, *validity)
		if err != nil {
			logger.Error("activation response failed", "error", err)
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, blob)
		return 0
	default:
		fs.Usage()
		return 2
	}
}

// generate prints both keys. The public key goes into the application build
// with -ldflags "-X main.publicKey=...".
func generate(w io.Writer, keyOut string) error {
	pub, priv, err := license.GenerateKeyPair()
	if err != nil {
		return err
	}

	encodedPriv := base64.StdEncoding.EncodeToString(priv)
	if keyOut != "" {
		if err := files.WriteAtomic(keyOut, []byte(encodedPriv+"\n"), 0600); err != nil {
			return fmt.Errorf("write private key: %w", err)
		}
	}

	fmt.Fprintf(w, "public_key=%s\n", base64.StdEncoding.EncodeToString(pub))
	if keyOut == "" {
		fmt.Fprintf(w, "private_key=%s\n", encodedPriv)
	}
	return nil
}

func respond(ctx context.Context, code, privateKeyFile, plan string, validity time.Duration) (string, error) {
	req, err := license.DecodeRequest(code)
	if err != nil {
		return "", err
	}

	raw, err := files.ReadLimited(privateKeyFile, 4096)
	if err != nil {
		return "", fmt.Errorf("read private key: %w", err)
	}
	priv, err := license.ParsePrivateKey(string(raw))
	if err != nil {
		return "", err
	}

	opts := []license.KeyIssuerOption{license.WithPlan(plan)}
	if validity > 0 {
		opts = append(opts, license.WithValidity(validity))
	}
	grant, err := license.NewKeyIssuer(priv, opts...).Issue(ctx, req)
	if err != nil {
		return "", err
	}
	return license.EncodeGrant(grant)
}
