package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/enclave-signer/cmd/flags"
	"github.com/ruteri/enclave-signer/cryptoutils"
	"github.com/ruteri/enclave-signer/enclave"
	"github.com/ruteri/enclave-signer/httpserver"
	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/sgx"
	"github.com/ruteri/enclave-signer/signer"
	"github.com/ruteri/enclave-signer/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "signerd",
		Usage: "Hold an Ed25519 key inside an enclave and serve signatures over HTTP",
		Flags: append(append([]cli.Flag{
			flags.ImageFlag,
			flags.PlatformFlag,
			flags.RuntimeFlag,
			flags.StorageFlag,
			flags.SealedKeyIDFlag,
			flags.AttestationTypeFlag,
			flags.AttestationRemoteFlag,
		}, flags.ServerFlags...), flags.LogFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := cCtx.Context

	imagePath := cCtx.String(flags.ImageFlag.Name)
	platformPath := cCtx.String(flags.PlatformFlag.Name)

	platform, err := sgx.LoadOrCreatePlatform(platformPath)
	if err != nil {
		logger.Error("Failed to load platform", "path", platformPath, "err", err)
		return err
	}

	img, err := enclave.LoadImage(imagePath)
	if err != nil {
		logger.Error("Failed to load enclave image", "err", err)
		return err
	}

	var loader interfaces.EnclaveLoader
	switch runtime := cCtx.String(flags.RuntimeFlag.Name); runtime {
	case "sim":
		loader = enclave.NewSimLoader(platform, logger)
	case "process":
		loader = &enclave.ProcessLoader{
			PlatformPath: platformPath,
			Stdout:       os.Stdout,
			Stderr:       os.Stderr,
			Log:          logger,
		}
	default:
		return fmt.Errorf("invalid runtime %q", runtime)
	}

	var backend interfaces.StorageBackend
	locations, err := flags.StorageLocations(cCtx)
	if err != nil {
		return err
	}
	if len(locations) > 0 {
		backend, err = storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
		if err != nil {
			logger.Error("Failed to set up storage", "err", err)
			return err
		}
	}

	controller, err := signer.Launch(imagePath, loader, logger)
	if err != nil {
		logger.Error("Failed to launch enclave", "err", err)
		return err
	}
	defer func() {
		if err := controller.Shutdown(); err != nil && !errors.Is(err, signer.ErrShutdown) {
			logger.Error("Enclave shutdown failed", "err", err)
		}
	}()

	if err := provisionKey(ctx, cCtx.String(flags.SealedKeyIDFlag.Name), controller, backend, logger); err != nil {
		return err
	}

	var attestation cryptoutils.AttestationProvider
	if typ := cCtx.String(flags.AttestationTypeFlag.Name); typ != "" {
		report := platform.Enclave(img.Identity).Report()
		attestation, err = cryptoutils.AttestationProviderFor(typ, cCtx.String(flags.AttestationRemoteFlag.Name), report)
		if err != nil {
			logger.Error("Invalid attestation type", "type", typ, "err", err)
			return err
		}
	}

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), httpserver.NewHandler(controller, attestation, logger))
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-exit:
		logger.Info("Shutdown signal received")
	case <-controller.Done():
		runErr = errors.New("enclave exited unexpectedly")
		logger.Error("Enclave exited, stopping server")
	}

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return runErr
}

// provisionKey imports the stored key sealedKeyID, or generates a key and
// stores it when no id is given. Without storage a generated key is lost on
// exit.
func provisionKey(ctx context.Context, sealedKeyID string, controller *signer.Controller, backend interfaces.StorageBackend, logger *slog.Logger) error {
	if sealedKeyID != "" {
		if backend == nil {
			return fmt.Errorf("--%s requires --%s", flags.SealedKeyIDFlag.Name, flags.StorageFlag.Name)
		}
		id, err := interfaces.NewContentIDFromHex(sealedKeyID)
		if err != nil {
			return fmt.Errorf("invalid sealed key id: %w", err)
		}
		pub, err := controller.ImportStored(ctx, backend, id)
		if err != nil {
			logger.Error("Failed to import sealed key", "contentID", id.String(), "err", err)
			return err
		}
		logger.Info("Signing key loaded", "publicKey", fmt.Sprintf("%x", pub))
		return nil
	}

	if backend == nil {
		sealed, err := controller.KeyGen()
		if err != nil {
			logger.Error("Key generation failed", "err", err)
			return err
		}
		logger.Warn("No storage configured, the generated key will not survive a restart",
			"publicKey", fmt.Sprintf("%x", sealed.PublicKey()))
		return nil
	}

	id, pub, err := controller.GenerateAndStore(ctx, backend)
	if err != nil {
		logger.Error("Failed to generate and store key", "err", err)
		return err
	}
	logger.Info("Signing key generated",
		"publicKey", fmt.Sprintf("%x", pub),
		"sealedKeyID", id.String())
	return nil
}
