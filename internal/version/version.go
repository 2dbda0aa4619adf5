package version

import "runtime"

// Version is set at build time with -ldflags "-X github.com/sentinelhive/svh/internal/version.Version=...".
var Version = "dev"

// Go returns the toolchain the binary was built with.
func Go() string { return runtime.Version() }
