package version

import "runtime"

// Build holds the build identifier, injected via -ldflags "-X vpn-sentinel/pkg/version.Build=...". Default "dev".
var Build = "dev"

// String returns the build with the toolchain and platform.
func String() string {
	return Build + " (" + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
