//go:build windows

package ndilib

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func openLibrary(candidates []string) (uintptr, string, error) {
	var lastErr error
	for _, path := range candidates {
		handle, err := windows.LoadLibrary(path)
		if err == nil {
			return uintptr(handle), path, nil
		}
		lastErr = err
	}
	return 0, "", fmt.Errorf("NDI runtime library not found (tried %v, set %s): %w",
		candidates, RedistFolderEnv, lastErr)
}
