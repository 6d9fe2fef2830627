// Package decode validates and decodes base64 job payloads.
package decode

import (
	"encoding/base64"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spherical/docparser/internal/domain"
)

// DefaultFileName is assumed when a job does not declare one.
const DefaultFileName = "document.pdf"

// MissingFileMessage is returned when a job carries no payload at all.
const MissingFileMessage = "No file provided. Send base64 encoded PDF/image in 'file' field."

// Decode turns a base64 payload into a DecodedDocument. The declared name only
// selects the content type; the decoded bytes are not inspected here. An
// absent, empty or blank name means DefaultFileName.
func Decode(payload, declaredName string) (domain.DecodedDocument, error) {
	if strings.TrimSpace(declaredName) == "" {
		declaredName = DefaultFileName
	}

	payload = stripDataURL(payload)
	payload = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return domain.DecodedDocument{}, domain.ValidationError(MissingFileMessage, nil)
	}

	// Padding is optional; RawStdEncoding rejects any '=' so strip it first.
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return domain.DecodedDocument{}, domain.DecodeError("invalid base64 encoding", err)
	}

	return domain.DecodedDocument{
		FileName:    declaredName,
		ContentType: domain.ContentTypeFor(declaredName),
		Data:        data,
	}, nil
}

// Suffix returns the lowercase extension of a file name, e.g. ".pdf".
func Suffix(fileName string) string {
	return strings.ToLower(filepath.Ext(fileName))
}

// stripDataURL removes a "data:<mime>;base64," prefix if present.
func stripDataURL(payload string) string {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "data:") {
		return payload
	}
	if i := strings.Index(trimmed, ";base64,"); i >= 0 {
		return trimmed[i+len(";base64,"):]
	}
	return payload
}
