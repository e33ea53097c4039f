package common

const PackageName = "enclave-signer"

// Version is overridden at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"
