package config

// Linker-injected build metadata:
//
//	go build -ldflags "-X heliogate/internal/config.version=1.2.3 \
//	    -X heliogate/internal/config.commit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the build as "version (commit)".
func (b BuildInfo) String() string {
	return b.Version + " (" + b.Commit + ")"
}
