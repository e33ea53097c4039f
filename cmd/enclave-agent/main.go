package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/enclave-signer/agent"
	"github.com/ruteri/enclave-signer/cmd/flags"
	"github.com/ruteri/enclave-signer/enclave"
	"github.com/ruteri/enclave-signer/sgx"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "enclave-agent",
		Usage: "Enclave side of the signer, started by signerd with --runtime process",
		Flags: flags.LogFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			manifest := os.Getenv(enclave.EnvManifest)
			platformPath := os.Getenv(enclave.EnvPlatform)
			if manifest == "" || platformPath == "" {
				return errors.New("must be started by signerd: " + enclave.EnvManifest + " and " + enclave.EnvPlatform + " are required")
			}

			img, err := enclave.LoadImage(manifest)
			if err != nil {
				return err
			}
			platform, err := sgx.LoadOrCreatePlatform(platformPath)
			if err != nil {
				return fmt.Errorf("loading platform: %w", err)
			}
			streams, err := enclave.StreamsFromEnv()
			if err != nil {
				return err
			}

			logger = logger.With("enclave", img.Manifest.Name)
			logger.Info("Enclave agent starting")
			return agent.Run(streams, platform.Enclave(img.Identity), logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
