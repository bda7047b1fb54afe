package store

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "doitnow"

// DefaultDataDir returns the OS-appropriate default data directory for doitnow.
//
//   - macOS:   ~/Library/Application Support/doitnow
//   - Linux:   $XDG_DATA_HOME/doitnow (fallback ~/.local/share/doitnow)
//   - Windows: %LOCALAPPDATA%\doitnow (fallback %APPDATA%\doitnow)
func DefaultDataDir() string {
	return defaultDataDirForOS(runtime.GOOS)
}

func defaultDataDirForOS(goos string) string {
	home, _ := os.UserHomeDir()

	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDirName)
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appDirName)
		}
		if dir := os.Getenv("APPDATA"); dir != "" {
			return filepath.Join(dir, appDirName)
		}
		return filepath.Join(home, "."+appDirName)
	default: // linux, freebsd, etc.
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return filepath.Join(dir, appDirName)
		}
		return filepath.Join(home, ".local", "share", appDirName)
	}
}
