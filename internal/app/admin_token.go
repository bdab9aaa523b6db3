package app

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const adminTokenFile = "admin.token"

// loadOrInitAdminToken reads the admin token kept in dataDir, writing a new
// random one when the file is missing or blank. created reports the latter.
func loadOrInitAdminToken(dataDir string) (token string, created bool, err error) {
	path := filepath.Join(dataDir, adminTokenFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if token = strings.TrimSpace(string(data)); token != "" {
			return token, false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", false, fmt.Errorf("read admin token %s: %w", path, err)
	}

	token, err = generateAdminToken()
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", false, fmt.Errorf("write admin token %s: %w", path, err)
	}
	return token, true, nil
}

func generateAdminToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate admin token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
