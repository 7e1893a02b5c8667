// Package version holds build information injected with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/devicechat/internal/version.Version=1.2.0 \
//	                   -X github.com/rickgao/devicechat/internal/version.Commit=$(git rev-parse --short HEAD)" \
//	    ./cmd/relay
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build information reported by the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String formats the build information for logs.
func (i Info) String() string {
	return i.Version + " (" + i.Commit + ")"
}
