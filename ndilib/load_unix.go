//go:build !windows

package ndilib

import (
	"fmt"

	"github.com/ebitengine/purego"
)

func openLibrary(candidates []string) (uintptr, string, error) {
	var lastErr error
	for _, path := range candidates {
		handle, err := purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, path, nil
		}
		lastErr = err
	}
	return 0, "", fmt.Errorf("NDI runtime library not found (tried %v, set %s): %w",
		candidates, RedistFolderEnv, lastErr)
}
