package resolver

import (
	"regexp"
	"strings"
)

// storeAliases maps raw import store slugs onto the catalog store slugs the
// per-store rules and eligibility filters are keyed by
var storeAliases = map[string]string{
	"xbox-store":        "xbox",
	"xbox360":           "xbox",
	"playstation-store": "playstation",
	"ps-store":          "playstation",
	"gog-store":         "gog",
}

// CanonicalStore resolves a raw store slug to its canonical form
func CanonicalStore(storeSlug string) string {
	if canonical, ok := storeAliases[storeSlug]; ok {
		return canonical
	}
	return storeSlug
}

// apostropheVariants are the unicode apostrophe look-alikes folded to a
// plain ASCII apostrophe before comparison
var apostropheReplacer = strings.NewReplacer(
	"’", "'", // right single quotation mark
	"‘", "'", // left single quotation mark
	"ʼ", "'", // modifier letter apostrophe
	"´", "'", // acute accent
	"`", "'",
)

var (
	trademarkReplacer = strings.NewReplacer("™", "", "®", "", "©", "")
	supTagPattern     = regexp.MustCompile(`(?i)<sup>.*?</sup>|</?sup>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// per-store suffixes stripped from the end of raw names. Stores decorate the
// same catalog title differently; the catalog name carries none of these.
var storeSuffixes = map[string][]string{
	"steam": {
		" demo",
		" dedicated server",
		" public test",
	},
	"xbox": {
		" for windows 10",
		" - windows 10",
		" (windows)",
		" (xbox one)",
		" (xbox series x|s)",
	},
	"playstation": {
		" (ps4)",
		" (ps5)",
		" ps4 & ps5",
		" full game",
		" trial",
	},
	"gog": {
		" (gog)",
	},
}

// editionSuffixes are stripped regardless of store
var editionSuffixes = []string{
	" standard edition",
	" launch edition",
	" digital edition",
}

// Normalize lowercases a raw store name and applies the apostrophe folding,
// glyph stripping and per-store suffix rules used by every name-based
// catalog lookup. Idempotent: normalizing an already-normalized name is a
// no-op.
func Normalize(storeSlug, rawName string) string {
	store := CanonicalStore(storeSlug)

	name := strings.ToLower(rawName)
	name = apostropheReplacer.Replace(name)
	name = trademarkReplacer.Replace(name)
	name = supTagPattern.ReplaceAllString(name, "")
	name = whitespacePattern.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range editionSuffixes {
			if trimmed := strings.TrimSuffix(name, suffix); trimmed != name {
				name, stripped = trimmed, true
			}
		}
		for _, suffix := range storeSuffixes[store] {
			if trimmed := strings.TrimSuffix(name, suffix); trimmed != name {
				name, stripped = trimmed, true
			}
		}
	}

	return strings.TrimSpace(name)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a normalized name into the catalog's slug form: lowercase,
// runs of non-alphanumerics collapsed into single hyphens
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
