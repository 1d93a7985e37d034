package domain

import (
	"context"
	"fmt"

	"golang.org/x/text/language"
)

type localeKey struct{}

// NormalizeLocale canonicalizes a BCP 47 tag such as "en_us" to "en-US".
// The empty string is returned unchanged.
func NormalizeLocale(locale string) (string, error) {
	if locale == "" {
		return "", nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return tag.String(), nil
}

// LocaleFallbacks lists the locale followed by its parents, most specific
// first, excluding the root. "fr-CA" yields ["fr-CA", "fr"].
func LocaleFallbacks(locale string) []string {
	tag, err := language.Parse(locale)
	if err != nil || tag == language.Und {
		return nil
	}
	var out []string
	for t := tag; t != language.Und; t = t.Parent() {
		out = append(out, t.String())
	}
	return out
}

// WithLocale scopes ctx to a locale for rendering.
func WithLocale(ctx context.Context, locale string) context.Context {
	if locale == "" {
		return ctx
	}
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFromContext returns the scoped locale, or "".
func LocaleFromContext(ctx context.Context) string {
	locale, _ := ctx.Value(localeKey{}).(string)
	return locale
}
