package domain

import "strings"

const maxPathBytes = 4096

const windowsInvalidChars = `<>:"|?*`

// NormalisePath implements the C1 path normaliser & validator from spec §4.1.
//
// It rejects structurally invalid paths and canonicalises the rest: a
// leading slash is enforced, repeated slashes collapse to one, and a
// trailing slash is stripped unless doing so would leave an empty string.
// The result is idempotent: NormalisePath(NormalisePath(p)) == NormalisePath(p)
// for any p that NormalisePath accepts.
func NormalisePath(path string) (string, error) {
	if path == "" {
		return "", &PathError{Kind: PathNull, Path: path}
	}
	if len(path) > maxPathBytes {
		return "", &PathError{Kind: PathTooLong, Path: path}
	}
	for _, b := range []byte(path) {
		if b == 0x00 {
			return "", &PathError{Kind: PathNullByte, Path: path}
		}
		if b < 0x20 {
			return "", &PathError{Kind: PathControlChars, Path: path}
		}
	}
	if strings.ContainsAny(path, windowsInvalidChars) {
		return "", &PathError{Kind: PathWindowsInvalid, Path: path}
	}

	normalised := path
	if !strings.HasPrefix(normalised, "/") {
		normalised = "/" + normalised
	}
	normalised = collapseSlashes(normalised)
	if len(normalised) > 1 {
		normalised = strings.TrimRight(normalised, "/")
		if normalised == "" {
			normalised = "/"
		}
	}
	return normalised, nil
}

func collapseSlashes(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
