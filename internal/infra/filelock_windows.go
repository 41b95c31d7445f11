//go:build windows

package infra

import "os"

// Appends are serialised in-process only on Windows.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) {}
