package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandPath resolves environment variables and a leading "~" in configured paths.
func ExpandPath(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", nil
	}

	p = os.ExpandEnv(p)
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return filepath.Clean(p), nil
	}

	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/")), nil
}

func homeDir() (string, error) {
	candidates := []func() string{
		func() string {
			h, _ := os.UserHomeDir()
			return h
		},
		func() string {
			if u, err := user.Current(); err == nil {
				return u.HomeDir
			}
			return ""
		},
	}
	for _, candidate := range candidates {
		h := strings.TrimSpace(candidate())
		if h != "" && !strings.HasPrefix(h, "~") {
			return h, nil
		}
	}
	return "", fmt.Errorf("home directory is not resolvable")
}
