package responder

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

// PromptFor is the question asked when the conversation enters step.
func PromptFor(step draft.Step, session draft.Session) string {
	individual := session.ClientType == draft.ClientIndividual
	switch step {
	case draft.StepGreeting:
		return "Bună! Te ajut să emiți o factură. Este pentru o firmă sau pentru o persoană fizică?"
	case draft.StepClientType:
		return "Factura este pentru o firmă (persoană juridică) sau pentru o persoană fizică?"
	case draft.StepClientIDLookupPending:
		return "Care este CUI-ul firmei? Am nevoie de codul fiscal, între 6 și 10 cifre."
	case draft.StepConfirmCompany:
		return "Este firma corectă? Răspunde cu da sau nu."
	case draft.StepManualCompanyName:
		if individual {
			return "Care este numele complet al clientului?"
		}
		return "Care este denumirea firmei?"
	case draft.StepManualCompanyAddress:
		if individual {
			return "Care este adresa clientului (stradă și număr)?"
		}
		return "Care este adresa sediului (stradă și număr)?"
	case draft.StepManualCompanyCity:
		return "În ce localitate?"
	case draft.StepManualCompanyCounty:
		return "În ce județ?"
	case draft.StepAddProductName:
		return "Ce produs sau serviciu facturăm?"
	case draft.StepAddProductPrice:
		return "Care este prețul unitar, fără TVA?"
	case draft.StepAddProductQuantity:
		return "Ce cantitate?"
	case draft.StepConfirmAddMore:
		return "Mai adaugi un produs? Răspunde cu da sau nu."
	case draft.StepGenerateDocument:
		return "Generez factura, o clipă."
	case draft.StepDone:
		return DoneReply(session.ResultDocumentNumber)
	default:
		return PromptFor(draft.StepGreeting, session)
	}
}

// RepromptFor is the corrective message for input the step could not use.
func RepromptFor(step draft.Step, session draft.Session) string {
	switch step {
	case draft.StepGreeting, draft.StepClientType:
		return "Nu am înțeles. " + PromptFor(draft.StepClientType, session)
	case draft.StepClientIDLookupPending:
		return "Nu am găsit un CUI valid în mesaj. Trimite doar cifrele, de exemplu 44820819."
	case draft.StepConfirmCompany, draft.StepConfirmAddMore:
		return "Nu am înțeles. Răspunde cu da sau nu."
	case draft.StepManualCompanyName, draft.StepManualCompanyAddress,
		draft.StepManualCompanyCity, draft.StepManualCompanyCounty,
		draft.StepAddProductName:
		return "Mesajul pare gol. " + PromptFor(step, session)
	case draft.StepAddProductPrice:
		return "Nu am putut citi prețul. Scrie un număr pozitiv, de exemplu 100 sau 99,90."
	case draft.StepAddProductQuantity:
		return "Nu am putut citi cantitatea. Scrie un număr pozitiv, de exemplu 2."
	case draft.StepGenerateDocument, draft.StepDone:
		return PromptFor(step, session)
	default:
		return PromptFor(draft.StepGreeting, session)
	}
}

// LookupPendingReply is the provisional text of a turn that triggers a lookup.
func LookupPendingReply(identifier string) string {
	return fmt.Sprintf("Caut firma cu CUI %s.", identifier)
}

// LookupFoundReply presents the registry record for confirmation.
func LookupFoundReply(company draft.PendingCompany) string {
	parts := []string{company.Name}
	for _, part := range []string{company.Address, company.City} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	if strings.TrimSpace(company.County) != "" {
		parts = append(parts, "jud. "+company.County)
	}
	return fmt.Sprintf("Am găsit: %s. %s", strings.Join(parts, ", "), PromptFor(draft.StepConfirmCompany, draft.Session{}))
}

// LookupNotFoundReply moves the user to manual entry.
func LookupNotFoundReply(identifier string) string {
	return fmt.Sprintf("Nu am găsit nicio firmă cu CUI %s. Hai să completăm datele manual. %s",
		identifier, PromptFor(draft.StepManualCompanyName, draft.Session{ClientType: draft.ClientCompany}))
}

// ProductAddedReply confirms a committed line.
func ProductAddedReply(line draft.ProductLine) string {
	return fmt.Sprintf("Am adăugat %s: %s %s x %s lei. %s",
		line.Name, formatQuantity(line.Quantity), line.Unit, formatAmount(line.Price),
		PromptFor(draft.StepConfirmAddMore, draft.Session{}))
}

// FinalizedReply reports the issued document.
func FinalizedReply(number string, total decimal.Decimal) string {
	return fmt.Sprintf("Factura %s a fost generată. Total de plată: %s lei. Mulțumesc!", number, total.StringFixed(2))
}

// FinalizeFailedReply keeps the session resumable at confirm_add_more.
func FinalizeFailedReply() string {
	return "Ne pare rău, nu am putut genera factura acum. Răspunde nu pentru a încerca din nou sau da pentru a adăuga alt produs."
}

// FinalizePendingReply is sent when the document exists but the session could
// not be closed; any next message retries.
func FinalizePendingReply() string {
	return "Factura a fost generată, dar nu am putut salva confirmarea. Trimite orice mesaj pentru a reîncerca."
}

// DoneReply answers every turn after the document was issued.
func DoneReply(number string) string {
	if number == "" {
		return "Factura a fost deja generată. Pentru o factură nouă, începe o conversație nouă."
	}
	return fmt.Sprintf("Factura %s a fost deja generată. Pentru o factură nouă, începe o conversație nouă.", number)
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:maxLen]))
}
