package infra

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// Paths holds every on-disk location bidbot writes to.
type Paths struct {
	DataDir       string // encrypted store and its key
	LogFile       string
	ResultLog     string
	ScreenshotDir string
}

// DefaultDataDir is ~/.bidbot for the invoking user.
func DefaultDataDir() string {
	return filepath.Join(GetRealUserHome(), ".bidbot")
}

// PathsFor lays out the standard files under dataDir. An empty dataDir uses DefaultDataDir.
func PathsFor(dataDir string) Paths {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	return Paths{
		DataDir:       dataDir,
		LogFile:       filepath.Join(dataDir, "logs", "bidbot.log"),
		ResultLog:     filepath.Join(dataDir, DefaultResultLogName),
		ScreenshotDir: filepath.Join(dataDir, "screenshots"),
	}
}

// DBPath returns the encrypted store location.
func (p Paths) DBPath() string {
	return filepath.Join(p.DataDir, storeDBName)
}

// Ensure creates the data, log and screenshot directories.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.DataDir, filepath.Dir(p.LogFile), filepath.Dir(p.ResultLog), p.ScreenshotDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so SUDO_USER is consulted first.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
