package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/pathfinder"
)

const fallbackAppName = "contextlens"

var rootMarkers = []string{"go.mod", ".git"}

// ciBoundaryVars point at the CI workspace. They bound the repository
// search when the checkout sits outside $HOME.
var ciBoundaryVars = []string{"FULMEN_WORKSPACE_ROOT", "GITHUB_WORKSPACE", "CI_PROJECT_DIR", "WORKSPACE"}

// findProjectRoot locates the directory holding config/ and schemas/ by
// walking up from the working directory to a go.mod or .git marker.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	if runningInCI() {
		for _, boundary := range ciBoundaries(cwd) {
			root, err := pathfinder.FindRepositoryRoot(cwd, rootMarkers,
				pathfinder.WithBoundary(boundary),
				pathfinder.WithMaxDepth(20),
			)
			if err == nil {
				return root, nil
			}
		}
	}

	root, err := pathfinder.FindRepositoryRoot(cwd, rootMarkers, pathfinder.WithMaxDepth(10))
	if err != nil {
		return "", fmt.Errorf("project root not found: %w", err)
	}
	return root, nil
}

func runningInCI() bool {
	for _, key := range []string{"GITHUB_ACTIONS", "CI"} {
		if strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true") {
			return true
		}
	}
	return false
}

// ciBoundaries returns the absolute, existing CI workspace dirs that
// contain cwd.
func ciBoundaries(cwd string) []string {
	var out []string
	for _, key := range ciBoundaryVars {
		boundary := strings.TrimSpace(os.Getenv(key))
		if boundary == "" || !filepath.IsAbs(boundary) {
			continue
		}
		boundary = filepath.Clean(boundary)
		if st, err := os.Stat(boundary); err != nil || !st.IsDir() {
			continue
		}
		if rel, err := filepath.Rel(boundary, cwd); err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		out = append(out, boundary)
	}
	return out
}

// appNames returns the config and binary names from the identity, each
// falling back to "contextlens".
func appNames() (configName, binaryName string) {
	configName, binaryName = fallbackAppName, fallbackAppName
	if appIdentity == nil {
		return configName, binaryName
	}
	if name := strings.TrimSpace(appIdentity.ConfigName); name != "" {
		configName = name
	}
	if name := strings.TrimSpace(appIdentity.BinaryName); name != "" {
		binaryName = name
	}
	return configName, binaryName
}

// getUserConfigPaths lists the XDG config files to merge, including the
// binary name when it differs from the config name.
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return nil
	}
	configName, binaryName := appNames()
	var legacy []string
	if binaryName != configName {
		legacy = append(legacy, binaryName)
	}
	return gfconfig.GetAppConfigPaths(configName, legacy...)
}

// DefaultConfigPath returns the user config file path, or "" when no config
// directory can be determined.
func DefaultConfigPath() string {
	configName, _ := appNames()
	dir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultDataDir returns the XDG data directory.
func DefaultDataDir() string {
	configName, _ := appNames()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultCacheDir returns the XDG cache directory.
func DefaultCacheDir() string {
	configName, _ := appNames()
	return gfconfig.GetAppCacheDir(configName)
}

// DefaultStorePath returns the task and cache database path, next to the
// working directory when no data directory is available.
func DefaultStorePath() string {
	configName, binaryName := appNames()
	dir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dir, binaryName+".db")
}
