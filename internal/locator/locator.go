package locator

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtension is appended when the raw argument does not name an existing file.
const DefaultExtension = ".js"

// NotFoundError reports that neither the argument nor its extension fallback exists.
type NotFoundError struct {
	Arg string
}

func (e *NotFoundError) Error() string { return "Not found: " + e.Arg }

// Locate resolves arg against workDir and returns an absolute path to an existing file.
// When the resolved path does not exist, ext (DefaultExtension when empty) is appended
// and the lookup is retried once.
func Locate(arg, workDir, ext string) (string, error) {
	if strings.TrimSpace(arg) == "" {
		return "", &NotFoundError{Arg: arg}
	}
	if ext == "" {
		ext = DefaultExtension
	}
	base, err := filepath.Abs(workDir)
	if err != nil {
		return "", err
	}
	name := arg
	if !filepath.IsAbs(name) {
		name = filepath.Join(base, name)
	}
	name = filepath.Clean(name)

	if exists(name) {
		return name, nil
	}
	if withExt := name + ext; exists(withExt) {
		return withExt, nil
	}
	return "", &NotFoundError{Arg: arg}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
