package device

import (
	"fmt"
	"path/filepath"

	"propctl/protocol"
)

// ValidateFilename checks the device's naming rules against the base name
// of path and returns that base name.
func ValidateFilename(path string) (string, error) {
	name := filepath.Base(path)
	if !protocol.HasNameSuffix(name) {
		return "", &InvalidFilenameError{Name: name, Reason: fmt.Sprintf("need a %q suffix", protocol.NameSuffix)}
	}
	encoded, err := protocol.EncodeName(name)
	if err != nil {
		return "", &InvalidFilenameError{Name: name, Reason: err.Error()}
	}
	if len(encoded) > protocol.MaxNameLen {
		return "", &InvalidFilenameError{
			Name:   name,
			Reason: fmt.Sprintf("%d bytes long, maximum %d", len(encoded), protocol.MaxNameLen),
		}
	}
	return name, nil
}
