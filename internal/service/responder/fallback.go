package responder

import (
	"context"

	"github.com/zhouzirui/z-invoice/backend/internal/analysis/extract"
	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/accumulate"
)

// Fallback is the rule-based responder. It never fails and never calls out.
type Fallback struct {
	vatPercent float64
}

// NewFallback builds the rule table; vatPercent is used to preview lines.
func NewFallback(vatPercent float64) *Fallback {
	if vatPercent < 0 {
		vatPercent = draft.DefaultVATPercent
	}
	return &Fallback{vatPercent: vatPercent}
}

// Respond applies the step table to the raw user text.
func (f *Fallback) Respond(_ context.Context, turn Turn) Result {
	session := turn.Session
	step := session.CurrentStep
	value, ok := extract.Extract(step, turn.Text)

	switch step {
	case draft.StepGreeting, draft.StepClientType:
		if !ok {
			if step == draft.StepGreeting {
				return f.move(draft.StepClientType, PromptFor(draft.StepClientType, session))
			}
			return f.stay(step, session)
		}
		session.ClientType = value.ClientType
		next := draft.StepClientIDLookupPending
		if value.ClientType == draft.ClientIndividual {
			next = draft.StepManualCompanyName
		}
		result := f.move(next, PromptFor(next, session))
		result.Updates.ClientType = value.ClientType
		return result

	case draft.StepClientIDLookupPending:
		if !ok {
			return f.stay(step, session)
		}
		result := f.move(draft.StepConfirmCompany, LookupPendingReply(value.Text))
		result.Updates.ClientIdentifier = value.Text
		result.Action = ActionLookup
		return result

	case draft.StepConfirmCompany:
		if ok && value.Intent == extract.IntentAffirmative {
			result := f.move(draft.StepAddProductName, "Am salvat clientul. "+PromptFor(draft.StepAddProductName, session))
			result.Action = ActionConfirmClient
			return result
		}
		return f.move(draft.StepClientIDLookupPending, "Bine, să încercăm din nou. "+PromptFor(draft.StepClientIDLookupPending, session))

	case draft.StepManualCompanyName:
		if !ok {
			return f.stay(step, session)
		}
		result := f.move(draft.StepManualCompanyAddress, PromptFor(draft.StepManualCompanyAddress, session))
		result.Updates.Company.Name = value.Text
		return result

	case draft.StepManualCompanyAddress:
		if !ok {
			return f.stay(step, session)
		}
		result := f.move(draft.StepManualCompanyCity, PromptFor(draft.StepManualCompanyCity, session))
		result.Updates.Company.Address = value.Text
		return result

	case draft.StepManualCompanyCity:
		if !ok {
			return f.stay(step, session)
		}
		result := f.move(draft.StepManualCompanyCounty, PromptFor(draft.StepManualCompanyCounty, session))
		result.Updates.Company.City = value.Text
		return result

	case draft.StepManualCompanyCounty:
		if !ok {
			return f.stay(step, session)
		}
		result := f.move(draft.StepAddProductName, "Am salvat clientul. "+PromptFor(draft.StepAddProductName, session))
		result.Updates.Company.County = value.Text
		result.Action = ActionCommitCompany
		return result

	case draft.StepAddProductName:
		if !ok {
			return f.stay(step, session)
		}
		result := f.move(draft.StepAddProductPrice, PromptFor(draft.StepAddProductPrice, session))
		result.Updates.Product.Name = value.Text
		return result

	case draft.StepAddProductPrice:
		if !ok {
			return f.stay(step, session)
		}
		result := f.move(draft.StepAddProductQuantity, PromptFor(draft.StepAddProductQuantity, session))
		result.Updates.Product.Price = value.Number
		return result

	case draft.StepAddProductQuantity:
		if !ok {
			return f.stay(step, session)
		}
		pending := accumulate.MergeProduct(turn.PendingProduct, draft.PendingProduct{Quantity: value.Number})
		result := f.move(draft.StepConfirmAddMore, ProductAddedReply(pending.Line(f.vatPercent)))
		result.Updates.Product.Quantity = value.Number
		result.Action = ActionCommitProduct
		return result

	case draft.StepConfirmAddMore:
		if !ok {
			return f.stay(step, session)
		}
		if value.Intent == extract.IntentAffirmative {
			return f.move(draft.StepAddProductName, PromptFor(draft.StepAddProductName, session))
		}
		result := f.move(draft.StepGenerateDocument, PromptFor(draft.StepGenerateDocument, session))
		result.Action = ActionFinalize
		return result

	case draft.StepGenerateDocument:
		// a turn that finds the session here retries the interrupted finalization
		result := f.move(draft.StepGenerateDocument, PromptFor(draft.StepGenerateDocument, session))
		result.Action = ActionFinalize
		return result

	case draft.StepDone:
		return f.move(draft.StepDone, DoneReply(session.ResultDocumentNumber))

	default:
		return f.move(draft.StepGreeting, PromptFor(draft.StepGreeting, session))
	}
}

func (f *Fallback) move(next draft.Step, reply string) Result {
	return Result{ReplyText: reply, NextStep: next, Source: SourceFallback}
}

func (f *Fallback) stay(step draft.Step, session draft.Session) Result {
	return f.move(step, RepromptFor(step, session))
}

var _ Responder = (*Fallback)(nil)
