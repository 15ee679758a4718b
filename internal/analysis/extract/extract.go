// Package extract pulls typed values out of free-text conversation turns.
// Every function is a pure function of its input.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

// MaxTextLen bounds names and address parts taken verbatim from a turn.
const MaxTextLen = 200

var (
	numberPattern     = regexp.MustCompile(`[\d,.]+`)
	// A run must be bounded by non-digits: 11+ digit runs such as a CNP
	// are not taken as an identifier prefix.
	identifierPattern = regexp.MustCompile(`(?:^|\D)(\d{6,10})(?:\D|$)`)
)

// Kind tells which field of Value is populated.
type Kind string

const (
	KindNone       Kind = ""
	KindClientType Kind = "client_type"
	KindIdentifier Kind = "identifier"
	KindAmount     Kind = "amount"
	KindQuantity   Kind = "quantity"
	KindText       Kind = "text"
	KindYesNo      Kind = "yes_no"
)

// Value is what a turn yielded for the step it was sent at.
type Value struct {
	Kind       Kind
	ClientType draft.ClientType
	Intent     Intent
	Text       string
	Number     float64
}

// Extract reads text according to what step expects. ok is false when the text
// holds nothing usable for that step.
func Extract(step draft.Step, text string) (Value, bool) {
	switch step {
	case draft.StepGreeting, draft.StepClientType:
		switch ClientChoice(text) {
		case IntentCompany:
			return Value{Kind: KindClientType, ClientType: draft.ClientCompany, Intent: IntentCompany}, true
		case IntentIndividual:
			return Value{Kind: KindClientType, ClientType: draft.ClientIndividual, Intent: IntentIndividual}, true
		}
		return Value{}, false
	case draft.StepClientIDLookupPending:
		id, ok := Identifier(text)
		if !ok {
			return Value{}, false
		}
		return Value{Kind: KindIdentifier, Text: id}, true
	case draft.StepConfirmCompany, draft.StepConfirmAddMore:
		intent := YesNo(text)
		if intent == IntentNone {
			return Value{}, false
		}
		return Value{Kind: KindYesNo, Intent: intent}, true
	case draft.StepManualCompanyName, draft.StepManualCompanyAddress,
		draft.StepManualCompanyCity, draft.StepManualCompanyCounty,
		draft.StepAddProductName:
		s, ok := FreeText(text)
		if !ok {
			return Value{}, false
		}
		return Value{Kind: KindText, Text: s}, true
	case draft.StepAddProductPrice:
		n, ok := Number(text)
		if !ok {
			return Value{}, false
		}
		return Value{Kind: KindAmount, Number: n}, true
	case draft.StepAddProductQuantity:
		n, ok := Number(text)
		if !ok {
			return Value{}, false
		}
		return Value{Kind: KindQuantity, Number: n}, true
	case draft.StepGenerateDocument, draft.StepDone:
		return Value{}, false
	default:
		return Value{}, false
	}
}

// Identifier returns the first isolated run of 6 to 10 digits, e.g. the fiscal
// code in "CUI: RO44820819".
func Identifier(text string) (string, bool) {
	m := identifierPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// Number parses the first numeric token. A comma is read as the decimal
// separator, so "100,50" and "100.50" are both 100.5. Values that are not
// strictly positive are rejected.
func Number(text string) (float64, bool) {
	for _, token := range numberPattern.FindAllString(text, -1) {
		if !strings.ContainsFunc(token, unicode.IsDigit) {
			continue
		}
		token = strings.Trim(token, ".,")
		if strings.Contains(token, ",") {
			token = strings.ReplaceAll(token, ",", ".")
		}
		value, err := strconv.ParseFloat(token, 64)
		if err != nil || value <= 0 {
			return 0, false
		}
		return value, true
	}
	return 0, false
}

// FreeText trims and collapses whitespace. It fails on empty or
// punctuation-only input and truncates overly long answers.
func FreeText(text string) (string, bool) {
	s := strings.Join(strings.Fields(text), " ")
	if !strings.ContainsFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return "", false
	}
	if utf8.RuneCountInString(s) > MaxTextLen {
		s = strings.TrimSpace(string([]rune(s)[:MaxTextLen]))
	}
	return s, true
}
