//go:build windows

package history

import "os"

// Advisory locking is not implemented on Windows; a session file is assumed
// to have a single writer.
func lockFile(_ *os.File) error { return nil }

func unlockFile(_ *os.File) error { return nil }
