package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/observability"
)

// Transcriber memoizes another transcriber by page content and variant.
// Cache failures are logged and never fail the page.
type Transcriber struct {
	next    domain.Transcriber
	cache   Client
	variant string
	ttl     time.Duration
	logger  *observability.Logger
}

// NewTranscriber wraps next with a cache. variant names everything besides the
// page bytes that shapes the output, usually built with Variant.
func NewTranscriber(next domain.Transcriber, c Client, variant string, ttl time.Duration, logger *observability.Logger) *Transcriber {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Transcriber{next: next, cache: c, variant: variant, ttl: ttl, logger: logger}
}

// Variant identifies a transcriber setup: the model plus a digest of the
// prompt and token limit. Changing any of them starts a fresh key space.
func Variant(model, prompt string, maxTokens int) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxTokens)))
	return model + "@" + hex.EncodeToString(h.Sum(nil))[:16]
}

// PageKey is the cache key for a page image under a variant.
func PageKey(variant string, data []byte) string {
	sum := sha256.Sum256(data)
	return Key("page", variant, hex.EncodeToString(sum[:]))
}

// Transcribe returns the cached Markdown for identical page bytes, otherwise
// delegates and stores the result.
func (t *Transcriber) Transcribe(ctx context.Context, page domain.PageImage) (string, error) {
	if len(page.Data) == 0 {
		return t.next.Transcribe(ctx, page)
	}
	key := PageKey(t.variant, page.Data)

	cached, err := t.cache.Get(ctx, key)
	switch {
	case err == nil:
		t.logger.Debug().Int("page", page.Index).Msg("Transcription cache hit")
		return string(cached), nil
	case !errors.Is(err, ErrCacheMiss):
		t.logger.Warn().Err(err).Int("page", page.Index).Msg("Transcription cache read failed")
	}

	md, err := t.next.Transcribe(ctx, page)
	if err != nil {
		return "", err
	}

	if err := t.cache.Set(ctx, key, []byte(md), t.ttl); err != nil {
		t.logger.Warn().Err(err).Int("page", page.Index).Msg("Transcription cache write failed")
	}
	return md, nil
}
