package mediaingest

import (
	"mime"
	"strings"
)

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// validateSegment rejects values that cannot be used as a single key segment
func validateSegment(field, value string) error {
	if err := requireField(field, value); err != nil {
		return err
	}
	if strings.ContainsAny(value, "/\\") || value == "." || value == ".." {
		return &ValidationError{Field: field, Reason: "must not contain path separators"}
	}
	return nil
}

func validateFilename(filename string) error {
	if err := validateSegment("filename", filename); err != nil {
		return err
	}
	if len(filename) > 255 {
		return &ValidationError{Field: "filename", Reason: "must be at most 255 bytes"}
	}
	return nil
}

// contentTypePrefix returns the major type of a media type followed by a slash,
// e.g. "image/" for "image/jpeg".
func contentTypePrefix(contentType string) (string, error) {
	if err := requireField("contentType", contentType); err != nil {
		return "", err
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", &ValidationError{Field: "contentType", Reason: "is not a media type"}
	}
	major, minor, ok := strings.Cut(mediaType, "/")
	if !ok || major == "" || minor == "" {
		return "", &ValidationError{Field: "contentType", Reason: "must be of the form type/subtype"}
	}
	return major + "/", nil
}
