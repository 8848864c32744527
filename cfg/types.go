package cfg

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolvedPath is a filesystem path that has been made absolute relative
// to the working directory at decode time, the way the teacher's Octal
// type decodes a base-8 string at decode time rather than at first use.
type ResolvedPath string

// UnmarshalText resolves "~"-prefixed and relative paths against the
// user's home directory / the working directory respectively.
func (p *ResolvedPath) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*p = ""
		return nil
	}
	if strings.HasPrefix(s, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		s = filepath.Join(home, strings.TrimPrefix(s, "~"))
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return err
	}
	*p = ResolvedPath(abs)
	return nil
}

func (p ResolvedPath) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

func (p ResolvedPath) String() string {
	return string(p)
}
