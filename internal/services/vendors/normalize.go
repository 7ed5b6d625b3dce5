// Package vendors provides vendor name normalization, fuzzy similarity,
// and composite risk scoring for the audit engines.
package vendors

import (
	"regexp"
	"strings"
)

// legalSuffixes are corporate suffixes stripped before comparison, so
// "Acme Inc." and "ACME INCORPORATED" normalize to the same name.
var legalSuffixes = []string{
	"ltd", "limited", "pvt", "private", "inc", "incorporated",
	"llc", "corp", "corporation", "co", "company", "gmbh", "ag",
	"sa", "srl", "bv", "nv", "plc", "lp", "llp", "pte",
}

var (
	punctRe      = regexp.MustCompile(`[.,;:!@#$%^&*()\[\]{}|\\/<>"']`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	suffixRes    = buildSuffixRes()
)

func buildSuffixRes() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(legalSuffixes))
	for i, s := range legalSuffixes {
		res[i] = regexp.MustCompile(`\b` + s + `\b\.?`)
	}
	return res
}

// Normalize lowercases a vendor name, strips punctuation and legal-entity
// suffixes, and collapses whitespace.
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	n := strings.ToLower(strings.TrimSpace(name))
	n = punctRe.ReplaceAllString(n, " ")
	n = whitespaceRe.ReplaceAllString(n, " ")
	n = strings.TrimSpace(n)
	for _, re := range suffixRes {
		n = re.ReplaceAllString(n, "")
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(n, " "))
}

// Similarity scores two vendor names on [0,1]. Equal normalized forms score
// 1.0; otherwise the higher of character-level similarity and token-set
// overlap wins, so word reordering and small typos both stay close.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0
	}
	char := matchRatio(na, nb)
	token := tokenJaccard(na, nb)
	if token > char {
		return token
	}
	return char
}

// Ratio is the raw character-level similarity of two strings, without
// vendor normalization. Used for line-item description matching.
func Ratio(a, b string) float64 {
	return matchRatio(a, b)
}

// matchRatio is 2*LCS/(len(a)+len(b)) over runes.
func matchRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 || lb == 0 {
		return 0
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[lb]
	return 2.0 * float64(lcs) / float64(la+lb)
}

func tokenJaccard(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	union := make(map[string]bool, len(ta)+len(tb))
	for _, t := range ta {
		union[t] = true
	}
	inter := 0
	for _, t := range tb {
		if set[t] {
			inter++
			delete(set, t)
		}
		union[t] = true
	}
	return float64(inter) / float64(len(union))
}

// currencySymbols maps ISO codes to display symbols.
var currencySymbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "INR": "₹", "JPY": "¥",
	"CAD": "C$", "AUD": "A$", "CNY": "¥", "KRW": "₩", "BRL": "R$",
	"MXN": "MX$", "SAR": "﷼", "AED": "AED",
}

// CurrencySymbol returns the display symbol for a currency code, falling
// back to the code itself.
func CurrencySymbol(currency string) string {
	if sym, ok := currencySymbols[currency]; ok {
		return sym
	}
	if currency == "" {
		return "$"
	}
	return currency
}
