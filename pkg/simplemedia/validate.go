package simplemedia

import "strings"

var allowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
}

// AllowedExtensions returns the accepted upload extensions.
func AllowedExtensions() []string {
	return []string{"jpg", "jpeg", "png", "gif"}
}

// ValidateUpload checks the upload before any store is touched.
func ValidateUpload(file *UploadFile) error {
	if file == nil || file.Reader == nil || file.Size <= 0 {
		return ErrMissingFile
	}

	ext, ok := Extension(file.FileName)
	if !ok {
		return ErrMissingExtension
	}

	if _, allowed := allowedExtensions[strings.ToLower(ext)]; !allowed {
		return ErrUnsupportedExtension
	}

	return nil
}

// Extension returns the suffix after the last dot of name, case preserved.
// A name without a dot or ending in a dot has no extension.
func Extension(name string) (string, bool) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "", false
	}
	return name[idx+1:], true
}
