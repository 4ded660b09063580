package protocol

import (
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	// MaxNameLen is the largest encoded file name the device accepts.
	MaxNameLen = 12
	NameSuffix = ".bin"
)

// EncodeName encodes a file name the way the firmware stores it (GB18030).
func EncodeName(name string) ([]byte, error) {
	return simplifiedchinese.GB18030.NewEncoder().Bytes([]byte(name))
}

// DecodeName is the inverse of EncodeName.
func DecodeName(b []byte) (string, error) {
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// HasNameSuffix reports whether name carries the mandatory .bin suffix.
func HasNameSuffix(name string) bool {
	return strings.HasSuffix(name, NameSuffix)
}
