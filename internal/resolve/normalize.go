// Package resolve decides whether two company names refer to the same company.
package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists legal entity suffixes stripped during normalization.
// Punctuation is already removed when these are checked.
var legalSuffixes = []string{
	" LLC", " INC", " INCORPORATED",
	" CORP", " CORPORATION",
	" LTD", " LIMITED",
	" LP", " LLP", " PLLC",
	" CO", " COMPANY",
	" PLC", " NL",
	" AG", " SA", " NV", " BV", " GMBH", " ASA", " AB", " OYJ",
	" PTY", " PTE",
}

var (
	multiSpaceRe    = regexp.MustCompile(`\s{2,}`)
	parentheticalRe = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	// trailing "NZX:ACM" or "- NASDAQ: ACME" style exchange tickers.
	tickerRe = regexp.MustCompile(`[\s,\-]*\b[A-Z]{2,8}\s*:\s*[A-Z0-9.]{1,10}\s*$`)
)

// NormalizeName standardizes a company name for matching by:
//  1. Removing diacritics and upper-casing
//  2. Dropping parenthesized or bracketed segments and exchange tickers
//  3. Stripping punctuation (ampersands become AND)
//  4. Collapsing whitespace
//  5. Removing trailing legal suffixes (LLC, Inc, Corp, Ltd, ...)
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = foldDiacritics(name)
	name = strings.ToUpper(name)

	name = parentheticalRe.ReplaceAllString(name, " ")
	name = tickerRe.ReplaceAllString(name, "")

	name = strings.NewReplacer(
		",", " ",
		".", "",
		"'", "",
		"’", "",
		"\"", "",
		"&", " AND ",
		"-", " ",
		"/", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	// "Acme Holdings Co Ltd" carries more than one suffix.
	for {
		stripped := false
		for _, suffix := range legalSuffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSpace(strings.TrimSuffix(name, suffix))
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	return name
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// firstToken returns the leading word of a normalized name.
func firstToken(normalized string) string {
	if i := strings.IndexByte(normalized, ' '); i >= 0 {
		return normalized[:i]
	}
	return normalized
}
