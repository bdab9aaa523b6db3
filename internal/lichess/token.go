package lichess

import (
	"bufio"
	"errors"
	"os"
	"strings"
)

// LoadToken reads an API token from the first line of path. A missing file
// yields an empty token; anonymous access works for public data.
func LoadToken(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", sc.Err()
}
