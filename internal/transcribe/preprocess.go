package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"murmur/internal/services"
)

// supported audio container extensions, matching what the model tooling
// can decode.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".wma":  true,
	".mp4":  true,
}

// SupportedExtension reports whether the file extension is accepted.
func SupportedExtension(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ValidateInput rejects missing, empty, and unsupported files before any
// expensive work starts.
func ValidateInput(path string) error {
	if strings.TrimSpace(path) == "" {
		return services.Wrap(services.ErrValidation, "transcribe", "validate", "audio path required", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcribe", "validate", fmt.Sprintf("audio file not found: %s", path), err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "transcribe", "validate", fmt.Sprintf("not a file: %s", path), nil)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrValidation, "transcribe", "validate", fmt.Sprintf("audio file is empty: %s", path), nil)
	}
	if !SupportedExtension(path) {
		return services.Wrap(services.ErrValidation, "transcribe", "validate", fmt.Sprintf("unsupported audio format: %s", filepath.Ext(path)), nil)
	}
	return nil
}
