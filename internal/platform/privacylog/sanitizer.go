// Package privacylog wraps a slog handler so key material can never reach a
// log sink. Attribute keys that look like secrets are redacted outright;
// couple ids are replaced with a per-boot salted digest so log lines stay
// correlatable within one run without disclosing the id itself.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

var (
	bootNonce = randomNonce()

	digestedPlainIDs = map[string]struct{}{
		"couple_id": {},
	}
	sensitiveKeyParts = []string{
		"secret", "key_bytes", "couple_key", "mnemonic", "phrase",
		"passphrase", "password", "token", "plaintext",
	}
)

type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, SanitizeAttr(attr))
	}
	return &SanitizingHandler{next: h.next.WithAttrs(out)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	lowerKey := strings.ToLower(key)
	if isSensitiveKey(lowerKey) {
		return slog.String(key, redactedValue)
	}
	if _, ok := digestedPlainIDs[lowerKey]; ok {
		return slog.String(key+"_digest", DigestID(attr.Value.String()))
	}
	return attr
}

// DigestID produces a per-boot stable, non-reversible handle for an id.
func DigestID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "dg_" + hex.EncodeToString(sum[:8])
}

func isSensitiveKey(lowerKey string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lowerKey, part) {
			return true
		}
	}
	return false
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// Digests are a log-privacy aid, not key material; a fixed nonce
		// degrades cross-run unlinkability only.
		return "duet-boot-nonce"
	}
	return hex.EncodeToString(buf)
}
