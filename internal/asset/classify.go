package asset

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"storyforge/internal/services"
)

// Reference is a classified asset reference. The variant set is closed:
// InlineDataURI, RawBase64, and RemoteURL.
type Reference interface {
	isReference()
}

// InlineDataURI is a data: reference already decoded into bytes.
type InlineDataURI struct {
	MIMEType string
	Data     []byte
}

// RawBase64 is a bare base64 payload whose MIME type was inferred from the
// destination filename.
type RawBase64 struct {
	Data        []byte
	GuessedMIME string
}

// RemoteURL must be fetched over the network.
type RemoteURL struct {
	URL string
}

func (InlineDataURI) isReference() {}
func (RawBase64) isReference()     {}
func (RemoteURL) isReference()     {}

// ResolutionError reports a reference that could not be materialized. It is
// recoverable and isolated to the single asset.
type ResolutionError struct {
	Ref string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", abbreviate(e.Ref), e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{services.ErrAssetResolution, e.Err}
}

const dataScheme = "data:"

// Classify decides how ref should be materialized. filename is the archive
// destination and only informs the MIME guess for raw base64.
func Classify(ref, filename string) (Reference, error) {
	trimmed := strings.TrimSpace(ref)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, dataScheme):
		mimeType, data, err := parseDataURI(trimmed)
		if err != nil {
			return nil, &ResolutionError{Ref: ref, Err: err}
		}
		return InlineDataURI{MIMEType: mimeType, Data: data}, nil
	case isRemote(lower):
		return RemoteURL{URL: trimmed}, nil
	default:
		if trimmed == "" {
			return nil, &ResolutionError{Ref: ref, Err: services.Wrap(services.ErrMalformedInput, "asset", "classify", "empty reference", nil)}
		}
		data, err := decodeBase64(trimmed)
		if err != nil {
			return nil, &ResolutionError{Ref: ref, Err: services.Wrap(services.ErrMalformedInput, "asset", "classify", "invalid base64", err)}
		}
		return RawBase64{Data: data, GuessedMIME: GuessMIME(filename)}, nil
	}
}

func isRemote(lower string) bool {
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "blob:")
}

// parseDataURI handles data:[<mime>][;param...][;base64],<payload>. Payloads
// without the base64 flag are taken verbatim.
func parseDataURI(ref string) (string, []byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return "", nil, services.Wrap(services.ErrMalformedInput, "asset", "parse data uri", "missing payload separator", nil)
	}
	meta := ref[len(dataScheme):comma]
	payload := ref[comma+1:]

	params := strings.Split(meta, ";")
	mimeType := strings.TrimSpace(params[0])
	if mimeType == "" {
		mimeType = "text/plain"
	}
	encoded := false
	for _, param := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(param), "base64") {
			encoded = true
		}
	}
	if !encoded {
		return mimeType, []byte(payload), nil
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return "", nil, services.Wrap(services.ErrMalformedInput, "asset", "parse data uri", "invalid base64 payload", err)
	}
	return mimeType, data, nil
}

// decodeBase64 accepts padded and unpadded standard or URL-safe alphabets.
func decodeBase64(value string) ([]byte, error) {
	value = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, value)
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var firstErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(value)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

var fallbackMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".txt":  "text/plain",
}

// GuessMIME infers a MIME type from a filename extension.
func GuessMIME(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "application/octet-stream"
	}
	if known, ok := fallbackMIME[ext]; ok {
		return known
	}
	if guessed := mime.TypeByExtension(ext); guessed != "" {
		return guessed
	}
	return "application/octet-stream"
}

// EncodeDataURI builds an inline reference for data.
func EncodeDataURI(mimeType string, data []byte) string {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "application/octet-stream"
	}
	return dataScheme + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsResolutionError reports whether err came from reference resolution.
func IsResolutionError(err error) bool {
	var target *ResolutionError
	return errors.As(err, &target)
}

func abbreviate(ref string) string {
	const limit = 48
	ref = strings.TrimSpace(ref)
	if len(ref) <= limit {
		return fmt.Sprintf("%q", ref)
	}
	return fmt.Sprintf("%q (%d bytes)", ref[:limit]+"...", len(ref))
}
