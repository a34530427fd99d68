package client

import (
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// ValidateFile checks that raw names a readable regular file and returns
// the cleaned path. what names the argument in errors for an empty raw.
func ValidateFile(what, raw string) (string, error) {
	if raw == "" {
		return "", &ValidationError{Arg: "<" + what + ">", Cause: "no file provided"}
	}

	p := filepath.Clean(raw)
	info, err := os.Stat(p)
	if err != nil {
		return "", &ValidationError{Arg: raw, Cause: "not found or not accessible"}
	}
	if info.IsDir() {
		return "", &ValidationError{Arg: raw, Cause: "is a directory"}
	}
	if !info.Mode().IsRegular() {
		return "", &ValidationError{Arg: raw, Cause: "not a regular file"}
	}

	return p, nil
}
