package scanner

import (
	"os"
	"path/filepath"
)

const cacheDirTagSignature = "Signature: 8a477f597d28d172789f06886806bc55"

// hasCacheDirTag reports whether dir contains a CACHEDIR.TAG file whose
// first bytes match the standard signature (spec §4.2).
func hasCacheDirTag(dir string) bool {
	f, err := os.Open(filepath.Join(dir, "CACHEDIR.TAG"))
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, len(cacheDirTagSignature))
	n, err := f.Read(buf)
	if err != nil || n < len(cacheDirTagSignature) {
		return false
	}
	return string(buf) == cacheDirTagSignature
}
