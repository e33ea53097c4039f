package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ruteri/enclave-signer/api/clients"
	"github.com/ruteri/enclave-signer/backends"
	"github.com/ruteri/enclave-signer/cmd/flags"
	"github.com/ruteri/enclave-signer/cryptoutils"
	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/protocol"
	"github.com/ruteri/enclave-signer/sgx"
	"github.com/ruteri/enclave-signer/storage"
	"github.com/urfave/cli/v2"
)

var urlFlag = &cli.StringFlag{
	Name:    "url",
	Value:   "http://127.0.0.1:8080",
	Usage:   "signer daemon base URL",
	EnvVars: []string{"SIGNER_URL"},
}

var messageFlags = []cli.Flag{
	&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "message as a string"},
	&cli.StringFlag{Name: "message-hex", Usage: "message as hex"},
	&cli.StringFlag{Name: "message-file", Usage: "read the message from a file, '-' for stdin"},
}

func main() {
	app := &cli.App{
		Name:  "signerctl",
		Usage: "Operate an enclave signer",
		Flags: flags.LogFlags,
		Commands: []*cli.Command{
			{
				Name:   "public-key",
				Usage:  "Print the daemon's public key",
				Flags:  []cli.Flag{urlFlag},
				Action: publicKey,
			},
			{
				Name:   "sign",
				Usage:  "Sign a message with the daemon's key and print the hex signature",
				Flags:  append([]cli.Flag{urlFlag}, messageFlags...),
				Action: sign,
			},
			{
				Name:  "verify",
				Usage: "Verify a signature offline",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "algorithm", Value: interfaces.AlgorithmEd25519, Usage: "ed25519, ecdsa-p256, ecdsa-p384 or secp256k1"},
					&cli.StringFlag{Name: "public-key", Required: true, Usage: "hex public key"},
					&cli.StringFlag{Name: "signature", Required: true, Usage: "hex signature"},
				}, messageFlags...),
				Action: verify,
			},
			{
				Name:  "attestation",
				Usage: "Fetch the daemon's attestation and check that it covers its public key",
				Flags: []cli.Flag{
					urlFlag,
					&cli.BoolFlag{Name: "verify-quote", Usage: "also verify the quote itself (qemu-tdx and sgx-sim)"},
				},
				Action: attestation,
			},
			{
				Name:  "inspect-sealed",
				Usage: "Describe a sealed key record from a file or a storage backend",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "sealed record file"},
					flags.StorageFlag,
					flags.SealedKeyIDFlag,
				},
				Action: inspectSealed,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func readMessage(cCtx *cli.Context) ([]byte, error) {
	switch {
	case cCtx.IsSet("message"):
		return []byte(cCtx.String("message")), nil
	case cCtx.IsSet("message-hex"):
		return hex.DecodeString(strings.TrimPrefix(cCtx.String("message-hex"), "0x"))
	case cCtx.String("message-file") == "-":
		return io.ReadAll(os.Stdin)
	case cCtx.IsSet("message-file"):
		return os.ReadFile(cCtx.String("message-file"))
	default:
		return nil, errors.New("one of --message, --message-hex or --message-file is required")
	}
}

func publicKey(cCtx *cli.Context) error {
	resp, err := clients.NewSignerClient(cCtx.String(urlFlag.Name)).GetPublicKey()
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", resp.Algorithm, resp.PublicKey)
	return nil
}

func sign(cCtx *cli.Context) error {
	msg, err := readMessage(cCtx)
	if err != nil {
		return err
	}
	resp, err := clients.NewSignerClient(cCtx.String(urlFlag.Name)).Sign(msg)
	if err != nil {
		return err
	}
	fmt.Println(resp.Signature)
	return nil
}

func verify(cCtx *cli.Context) error {
	msg, err := readMessage(cCtx)
	if err != nil {
		return err
	}
	pub, err := hex.DecodeString(cCtx.String("public-key"))
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	sig, err := hex.DecodeString(cCtx.String("signature"))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	verifier, err := backends.NewVerifier(cCtx.String("algorithm"), pub)
	if err != nil {
		return err
	}
	if err := verifier.Verify(msg, sig); err != nil {
		return err
	}
	fmt.Println("signature OK")
	return nil
}

func attestation(cCtx *cli.Context) error {
	resp, err := clients.NewSignerClient(cCtx.String(urlFlag.Name)).GetAttestation()
	if err != nil {
		return err
	}

	pub, err := hex.DecodeString(resp.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key in response: %w", err)
	}
	expected := cryptoutils.ReportDataForPublicKey(pub)
	if resp.ReportData != hex.EncodeToString(expected[:]) {
		return fmt.Errorf("%w: attestation is not bound to public key %s", cryptoutils.ErrReportDataMismatch, resp.PublicKey)
	}

	out := map[string]any{
		"type":       resp.Type,
		"public_key": resp.PublicKey,
	}

	if cCtx.Bool("verify-quote") {
		typ, err := cryptoutils.AttestationTypeFromString(resp.Type)
		if err != nil {
			return err
		}
		quote, err := hex.DecodeString(resp.Quote)
		if err != nil {
			return fmt.Errorf("invalid quote encoding: %w", err)
		}
		measurements, err := cryptoutils.VerifyAttestation(typ, expected, quote)
		if err != nil {
			return err
		}
		out["measurements"] = measurements
	}

	return printJSON(out)
}

func inspectSealed(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	var record []byte
	var err error
	switch {
	case cCtx.IsSet("file"):
		record, err = os.ReadFile(cCtx.String("file"))
	case cCtx.IsSet(flags.SealedKeyIDFlag.Name):
		var id interfaces.ContentID
		id, err = interfaces.NewContentIDFromHex(cCtx.String(flags.SealedKeyIDFlag.Name))
		if err != nil {
			return err
		}
		locations, err := flags.StorageLocations(cCtx)
		if err != nil {
			return err
		}
		backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
		if err != nil {
			return err
		}
		record, err = backend.Fetch(cCtx.Context, id, interfaces.SealedKeyType)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --file or --%s with --%s is required", flags.SealedKeyIDFlag.Name, flags.StorageFlag.Name)
	}
	if err != nil {
		return err
	}

	var sealed protocol.SealedKeyData
	if err := sealed.UnmarshalBinary(record); err != nil {
		return err
	}

	req := sealed.SealKeyRequest
	pub := sealed.PublicKey()
	return printJSON(map[string]any{
		"content_id":  interfaces.ComputeID(record).String(),
		"public_key":  hex.EncodeToString(pub[:]),
		"key_name":    sgx.KeyName(req.KeyName).String(),
		"key_policy":  fmt.Sprintf("%#04x", req.KeyPolicy),
		"isv_svn":     req.ISVSVN,
		"cpu_svn":     hex.EncodeToString(req.CPUSVN[:]),
		"attr_mask":   []string{fmt.Sprintf("%#016x", req.AttributeMask[0]), fmt.Sprintf("%#016x", req.AttributeMask[1])},
		"misc_mask":   fmt.Sprintf("%#08x", req.MiscMask),
		"nonce":       hex.EncodeToString(sealed.Nonce[:]),
		"sealed_size": len(sealed.SealedSecret),
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
