package enclave

import (
	"log/slog"

	"github.com/ruteri/enclave-signer/agent"
	"github.com/ruteri/enclave-signer/interfaces"
	"github.com/ruteri/enclave-signer/sgx"
)

// SimLoader runs images in-process against a simulated platform.
type SimLoader struct {
	Platform *sgx.Platform
	Log      *slog.Logger
}

func NewSimLoader(platform *sgx.Platform, log *slog.Logger) *SimLoader {
	return &SimLoader{Platform: platform, Log: log}
}

func (l *SimLoader) Load(path string, provider interfaces.StreamProvider) (interfaces.Enclave, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return &simEnclave{
		hw:       l.Platform.Enclave(img.Identity),
		provider: provider,
		log:      l.Log.With("enclave", img.Manifest.Name, "mrenclave", shortHex(img.Identity.MREnclave[:])),
	}, nil
}

type simEnclave struct {
	hw       *sgx.Enclave
	provider interfaces.StreamProvider
	log      *slog.Logger
}

func (e *simEnclave) Run() error {
	e.log.Info("Starting simulated enclave")
	err := agent.Run(e.provider, e.hw, e.log)
	e.log.Info("Simulated enclave exited", "err", err)
	return err
}
