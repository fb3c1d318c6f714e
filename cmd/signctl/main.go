package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/moddyapp/signproxy/canonical"
	"github.com/moddyapp/signproxy/internal/config"
	"github.com/moddyapp/signproxy/requestid"
	"github.com/moddyapp/signproxy/signing"
)

const defaultSecretEnv = "SIGNPROXY_BACKEND_SECRET"

var stdin io.Reader = os.Stdin

func main() {
	_ = config.LoadDotEnv()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "canon":
		return cmdCanon(args[1:], out, errOut)
	case "sign":
		return cmdSign(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "vectors":
		return cmdVectors(args[1:], out, errOut)
	case "send":
		return cmdSend(args[1:], out, errOut)
	case "id":
		_, _ = fmt.Fprintln(out, requestid.New())
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "signctl: request signing toolkit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  signctl canon [--ascii] [--request-id <id>] [<file>|-]")
	fmt.Fprintln(w, "  signctl sign [--ascii] [--request-id <id>] [--secret-env <VAR>] [<file>|-]")
	fmt.Fprintln(w, "  signctl verify --request-id <id> --signature <hex> [--ascii] [--secret-env <VAR>] [<file>|-]")
	fmt.Fprintln(w, "  signctl vectors <vectors.yaml> [...]")
	fmt.Fprintln(w, "  signctl send [--ascii] [--secret-env <VAR>] [--timeout <d>] <url> [<file>|-]")
	fmt.Fprintln(w, "  signctl id")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - bodies are JSON; an empty or missing body means {}")
	fmt.Fprintln(w, "  - the secret is read from $"+defaultSecretEnv+" (or API_KEY), never from flags")
	fmt.Fprintln(w, "  - canon with --request-id prints the exact signed payload")
}

type bodyFlags struct {
	ascii     bool
	requestID string
	secretEnv string
}

func (b *bodyFlags) register(fs *flag.FlagSet, withSecret bool) {
	fs.BoolVar(&b.ascii, "ascii", false, "escape non-ASCII characters as \\uXXXX")
	fs.StringVar(&b.requestID, "request-id", "", "request id (generated when empty)")
	if withSecret {
		fs.StringVar(&b.secretEnv, "secret-env", defaultSecretEnv, "environment variable holding the secret")
	}
}

func (b *bodyFlags) opts() canonical.Options {
	return canonical.Options{ASCII: b.ascii}
}

func (b *bodyFlags) secret() ([]byte, error) {
	if v := os.Getenv(b.secretEnv); v != "" {
		return []byte(v), nil
	}

	if b.secretEnv == defaultSecretEnv {
		if v := os.Getenv("API_KEY"); v != "" {
			return []byte(v), nil
		}
	}

	return nil, fmt.Errorf("secret not set: export %s", b.secretEnv)
}

// readBody reads a JSON document from the single path in paths, or
// stdin for "-".
func readBody(paths []string) ([]byte, any, error) {
	var (
		raw []byte
		err error
	)

	switch len(paths) {
	case 0:
		return []byte("{}"), map[string]any{}, nil
	case 1:
		if paths[0] == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(paths[0])
		}
	default:
		return nil, nil, errors.New("expected at most one body file")
	}

	if err != nil {
		return nil, nil, err
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), map[string]any{}, nil
	}

	v, err := canonical.Decode(raw)
	if err != nil {
		return nil, nil, err
	}

	return raw, v, nil
}

func cmdCanon(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("canon", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var bf bodyFlags
	bf.register(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	_, body, err := readBody(fs.Args())
	if err != nil {
		fmt.Fprintf(errOut, "read body: %v\n", err)
		return 1
	}

	var b []byte
	if bf.requestID != "" {
		b, err = canonical.Payload{RequestID: bf.requestID, Body: body}.BytesWith(bf.opts())
	} else {
		b, err = canonical.CanonicalizeWith(body, bf.opts())
	}
	if err != nil {
		fmt.Fprintf(errOut, "canonicalize: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintln(out, string(b))
	return 0
}

func cmdSign(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var bf bodyFlags
	bf.register(fs, true)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	_, body, err := readBody(fs.Args())
	if err != nil {
		fmt.Fprintf(errOut, "read body: %v\n", err)
		return 1
	}

	secret, err := bf.secret()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	signer, err := signing.NewSigner(secret, bf.opts())
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}

	id := bf.requestID
	if id == "" {
		id = requestid.New()
	}

	sig, err := signer.Sign(id, body)
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "%s: %s\n", signing.HeaderRequestID, id)
	fmt.Fprintf(out, "%s: %s\n", signing.HeaderSignature, sig)
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var bf bodyFlags
	bf.register(fs, true)
	signature := fs.String("signature", "", "hex signature to check")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if bf.requestID == "" || *signature == "" {
		fmt.Fprintln(errOut, "usage: signctl verify --request-id <id> --signature <hex> [<file>|-]")
		return 2
	}

	_, body, err := readBody(fs.Args())
	if err != nil {
		fmt.Fprintf(errOut, "read body: %v\n", err)
		return 1
	}

	secret, err := bf.secret()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	verifier, err := signing.NewVerifier(secret, bf.opts())
	if err != nil {
		fmt.Fprintf(errOut, "verifier: %v\n", err)
		return 1
	}

	if err := verifier.Verify(bf.requestID, body, *signature); err != nil {
		fmt.Fprintf(errOut, "verify: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintln(out, "ok")
	return 0
}

func cmdVectors(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: signctl vectors <vectors.yaml> [...]")
		return 2
	}

	failed := 0
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(errOut, "open %s: %v\n", path, err)
			return 1
		}

		vectors, err := signing.LoadVectors(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", path, err)
			return 1
		}

		for _, v := range vectors {
			if err := v.Check(); err != nil {
				failed++
				fmt.Fprintf(out, "FAIL %s: %v\n", v.Name, err)
				continue
			}
			fmt.Fprintf(out, "ok   %s\n", v.Name)
		}
	}

	if failed > 0 {
		fmt.Fprintf(errOut, "%d vector(s) failed\n", failed)
		return 1
	}

	return 0
}

func cmdSend(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var bf bodyFlags
	bf.register(fs, true)
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(errOut, "usage: signctl send [--ascii] [--timeout <d>] <url> [<file>|-]")
		return 2
	}

	target := fs.Arg(0)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		fmt.Fprintf(errOut, "url must be absolute http(s): %s\n", target)
		return 2
	}

	raw, _, err := readBody(fs.Args()[1:])
	if err != nil {
		fmt.Fprintf(errOut, "read body: %v\n", err)
		return 1
	}

	secret, err := bf.secret()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	signer, err := signing.NewSigner(secret, bf.opts())
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}

	var ids requestid.Generator
	if bf.requestID != "" {
		id := bf.requestID
		ids = requestid.Func(func() string { return id })
	}

	client := &http.Client{
		Timeout:   *timeout,
		Transport: signing.NewTransport(nil, signing.TransportConfig{Signer: signer, IDs: ids}),
	}

	resp, err := client.Post(target, signing.ContentTypeJSON, bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintf(errOut, "send: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(errOut, "read response: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "%s\n%s\n", resp.Status, bytes.TrimSpace(respBody))

	if resp.StatusCode >= 400 {
		return 1
	}

	return 0
}
