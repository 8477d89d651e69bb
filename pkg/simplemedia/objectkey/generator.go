package objectkey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for storage key generation strategies
type Generator interface {
	// GenerateKey creates a fully qualified storage key from a type prefix
	// (e.g. "product/") and the original file extension
	GenerateKey(prefix, extension string) string
}

// GeneratorFunc adapts a function to the Generator interface
type GeneratorFunc func(prefix, extension string) string

func (f GeneratorFunc) GenerateKey(prefix, extension string) string {
	return f(prefix, extension)
}

// UUIDGenerator produces <prefix><random-uuid>.<ext>
type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) GenerateKey(prefix, extension string) string {
	return Join(prefix, uuid.NewString(), extension)
}

// Join builds a key from its parts. The prefix is normalized to end in a
// single slash; the extension is kept as given, without a leading dot.
func Join(prefix, token, extension string) string {
	prefix = normalizePrefix(prefix)
	extension = strings.TrimPrefix(extension, ".")
	if extension == "" {
		return prefix + token
	}
	return fmt.Sprintf("%s%s.%s", prefix, token, extension)
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
