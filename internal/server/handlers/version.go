package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/contextlens/contextlens/internal/core"
)

type buildInfo struct {
	version   string
	commit    string
	buildDate string
	identity  *appidentity.Identity
}

var (
	buildMu sync.RWMutex
	build   = buildInfo{version: "dev", commit: "unknown", buildDate: "unknown"}
)

// SetVersionInfo records build metadata injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	build.version = version
	build.commit = commit
	build.buildDate = buildDate
}

// SetAppIdentity sets the identity reported as the service name.
func SetAppIdentity(identity *appidentity.Identity) {
	buildMu.Lock()
	defer buildMu.Unlock()
	build.identity = identity
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Models       []string    `json:"models"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

func serviceName(identity *appidentity.Identity) string {
	if identity != nil && identity.BinaryName != "" {
		return identity.BinaryName
	}
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "contextlens"
}

func currentVersion() VersionResponse {
	buildMu.RLock()
	info := build
	buildMu.RUnlock()

	deps := crucible.GetVersion()
	return VersionResponse{
		App: AppInfo{
			Name:      serviceName(info.identity),
			Version:   info.version,
			Commit:    info.commit,
			BuildDate: info.buildDate,
			GoVersion: runtime.Version(),
		},
		Models: core.SupportedModelIDs(),
		Dependencies: DepInfo{
			Gofulmen: deps.Gofulmen,
			Crucible: deps.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}
}

// VersionHandler reports build metadata and the accepted model ids.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentVersion())
}
