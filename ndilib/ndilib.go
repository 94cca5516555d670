// Package ndilib binds the vendor's NDI runtime library.
//
// The vendor ships the library as a redistributable shared object and
// nothing links against it at build time: Load resolves it at runtime from
// NDILIB_REDIST_FOLDER or the platform's default search path, registers the
// documented entry points, and initializes the runtime once per process.
// All network transport, discovery announcements, and wire formats live
// inside the library; this package only marshals calls across the boundary.
package ndilib

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"
)

// RedistFolderEnv names the environment variable the vendor's installers
// set to the directory holding the runtime library.
const RedistFolderEnv = "NDILIB_REDIST_FOLDER"

// Timecodes and timestamps cross the boundary in units of 100 nanoseconds.
const (
	// SendTimecodeSynthesize asks the library to synthesize a timecode
	// for an outgoing frame.
	SendTimecodeSynthesize int64 = 1<<63 - 1
	// RecvTimestampUndefined marks a received frame without a
	// library-assigned timestamp.
	RecvTimestampUndefined int64 = 1<<63 - 1
)

var (
	loadOnce sync.Once
	loadErr  error
)

// Load resolves and initializes the runtime library. It is safe to call
// from multiple goroutines; only the first call does work. The library
// stays loaded for the life of the process.
func Load() error {
	loadOnce.Do(func() { loadErr = load() })
	return loadErr
}

func load() error {
	handle, path, err := openLibrary(libraryCandidates())
	if err != nil {
		return err
	}
	registerSymbols(handle)

	// Only fails on CPUs the runtime does not support.
	if !lib.initialize() {
		return fmt.Errorf("initializing NDI runtime %s: unsupported CPU", path)
	}
	return nil
}

// Version returns the runtime's version string. Load must have succeeded.
func Version() string {
	return goString(lib.version())
}

func libraryCandidates() []string {
	var names []string
	switch runtime.GOOS {
	case "windows":
		names = []string{"Processing.NDI.Lib.x64.dll"}
	case "darwin":
		names = []string{"libndi.dylib", "libndi.4.dylib"}
	default:
		names = []string{"libndi.so.6", "libndi.so.5", "libndi.so"}
	}

	var candidates []string
	if dir := os.Getenv(RedistFolderEnv); dir != "" {
		for _, name := range names {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}
	candidates = append(candidates, names...)
	return candidates
}

func cString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

// cStringOrNil returns nil for the empty string so optional C parameters
// fall back to the library's defaults.
func cStringOrNil(s string) *byte {
	if s == "" {
		return nil
	}
	return cString(s)
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
