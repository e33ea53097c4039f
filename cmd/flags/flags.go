package flags

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/enclave-signer/api"
	"github.com/ruteri/enclave-signer/common"
	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// StorageLocations parses the --storage flag values.
func StorageLocations(cCtx *cli.Context) ([]interfaces.StorageBackendLocation, error) {
	var locations []interfaces.StorageBackendLocation
	for _, raw := range cCtx.StringSlice(StorageFlag.Name) {
		location, err := interfaces.NewStorageBackendLocation(raw)
		if err != nil {
			return nil, fmt.Errorf("--%s %s: %w", StorageFlag.Name, raw, err)
		}
		locations = append(locations, location)
	}
	return locations, nil
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for the signer API",
	EnvVars: []string{"SIGNER_LISTEN_ADDR"},
}

var ImageFlag = &cli.StringFlag{
	Name:     "image",
	Required: true,
	Usage:    "enclave manifest (YAML) to launch",
	EnvVars:  []string{"SIGNER_IMAGE"},
}

var PlatformFlag = &cli.StringFlag{
	Name:    "platform",
	Value:   "data/platform.bin",
	Usage:   "simulated platform secret, created on first use",
	EnvVars: []string{"SIGNER_PLATFORM"},
}

var RuntimeFlag = &cli.StringFlag{
	Name:    "runtime",
	Value:   "sim",
	Usage:   "enclave runtime: 'sim' runs the agent in-process, 'process' runs the manifest binary",
	EnvVars: []string{"SIGNER_RUNTIME"},
}

var StorageFlag = &cli.StringSliceFlag{
	Name:    "storage",
	Usage:   "storage backend URI for sealed keys, repeatable (file://, s3://, ipfs://, vault://, keyring://)",
	EnvVars: []string{"SIGNER_STORAGE"},
}

var SealedKeyIDFlag = &cli.StringFlag{
	Name:    "sealed-key-id",
	Usage:   "content ID of a stored sealed key to import; a new key is generated when empty",
	EnvVars: []string{"SIGNER_SEALED_KEY_ID"},
}

var AttestationTypeFlag = &cli.StringFlag{
	Name:    "attestation-type",
	Usage:   "attestation provider for the attestation endpoint: 'qemu-tdx', 'sgx-sim' or 'dummy'; disabled when empty",
	EnvVars: []string{"SIGNER_ATTESTATION_TYPE"},
}

var AttestationRemoteFlag = &cli.StringFlag{
	Name:    "attestation-remote",
	Usage:   "remote quote service address used with qemu-tdx",
	EnvVars: []string{"SIGNER_ATTESTATION_REMOTE"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to stay not-ready before shutting down",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics, disabled when empty",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
