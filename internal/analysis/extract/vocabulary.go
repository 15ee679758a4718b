package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Intent is a closed-vocabulary reading of a short reply.
type Intent string

const (
	IntentNone        Intent = ""
	IntentCompany     Intent = "company"
	IntentIndividual  Intent = "individual"
	IntentAffirmative Intent = "affirmative"
	IntentNegative    Intent = "negative"
)

// Phrases are matched on whole words after folding case and diacritics.
// Buckets are checked in the order of the slices passed to match, so the more
// specific bucket must come first.
var keywordBuckets = map[Intent][]string{
	IntentCompany: {
		"persoana juridica", "persoana fizica autorizata", "entitate juridica",
		"companie", "compania", "companiei", "firma", "firmei", "societate", "societatea",
		"srl", "pfa", "juridica", "juridic", "pj", "company", "business", "legal entity",
	},
	IntentIndividual: {
		"persoana fizica", "persoana", "fizica", "fizic", "pf", "individ", "individual",
		"natural person", "person", "private",
	},
	IntentNegative: {
		"nu", "no", "n", "nope", "gata", "atat", "asta e tot", "am terminat", "terminat",
		"termina", "finalizeaza", "finalizare", "finalizez", "genereaza", "emite",
		"finish", "done", "stop", "incorect", "gresit",
	},
	IntentAffirmative: {
		"da", "yes", "y", "ok", "okay", "sigur", "desigur", "corect", "exact", "confirm",
		"confirma", "confirmat", "bine", "inca", "mai adaug", "adauga", "altul", "alt produs",
		"yep", "sure",
	},
}

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds case and diacritics and reduces the text to space-separated
// words, so "Persoană  Fizică!" becomes "persoana fizica".
func Normalize(text string) string {
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(folded)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}

func match(text string, order ...Intent) Intent {
	normalized := Normalize(text)
	if normalized == "" {
		return IntentNone
	}
	for _, intent := range order {
		for _, phrase := range keywordBuckets[intent] {
			if containsPhrase(normalized, phrase) {
				return intent
			}
		}
	}
	return IntentNone
}

// ClientChoice reads a company-or-individual answer.
func ClientChoice(text string) Intent {
	return match(text, IntentCompany, IntentIndividual)
}

// YesNo reads a confirmation. Negative wins over affirmative, so
// "nu e corect" is a refusal.
func YesNo(text string) Intent {
	return match(text, IntentNegative, IntentAffirmative)
}
