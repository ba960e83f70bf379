//go:build !unix

package pathlock

import "os"

// Without flock only the in-process mutex applies.
func lockFile(name string) (*os.File, error) { return nil, nil }

func unlockFile(f *os.File) {}
