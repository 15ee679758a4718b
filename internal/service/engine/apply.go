package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/accumulate"
	"github.com/zhouzirui/z-invoice/backend/internal/service/document"
	"github.com/zhouzirui/z-invoice/backend/internal/service/lookup"
	"github.com/zhouzirui/z-invoice/backend/internal/service/responder"
)

// outcome is the effect of a turn once its action has run.
type outcome struct {
	session draft.Session
	reply   string
	partial *draft.PartialUpdate
	// discard drops the accumulator cache after a commit or completion.
	discard bool
}

func (e *Engine) apply(ctx context.Context, turn responder.Turn, result responder.Result) (outcome, error) {
	session := turn.Session
	out := outcome{session: session, reply: result.ReplyText}
	update := draft.SessionUpdate{}
	if result.NextStep != session.CurrentStep {
		update.CurrentStep = draft.StepPtr(result.NextStep)
	}
	if result.Updates.ClientType != draft.ClientUnset {
		update.ClientType = draft.ClientTypePtr(result.Updates.ClientType)
	}

	var err error
	switch result.Action {
	case responder.ActionNone:
		out.partial, err = partialFor(session.CurrentStep, result.Updates)
		if err != nil {
			return outcome{}, err
		}

	case responder.ActionLookup:
		identifier := result.Updates.ClientIdentifier
		update.ClientIdentifier = draft.StringPtr(identifier)
		company := e.findCompany(ctx, session.ID, identifier)
		if company == nil {
			update.CurrentStep = draft.StepPtr(draft.StepManualCompanyName)
			out.reply = responder.LookupNotFoundReply(identifier)
			break
		}
		found := draft.PendingCompany{
			Name:               company.Name,
			Address:            company.Address,
			City:               company.City,
			County:             company.County,
			RegistrationNumber: company.RegistrationNumber,
		}
		update.CurrentStep = draft.StepPtr(draft.StepConfirmCompany)
		out.reply = responder.LookupFoundReply(found)
		if out.partial, err = companyPartial(found, true, false); err != nil {
			return outcome{}, err
		}

	case responder.ActionConfirmClient:
		found := turn.PendingCompany
		if found.Name == "" {
			update.CurrentStep = draft.StepPtr(draft.StepClientIDLookupPending)
			out.reply = "Nu mai am datele firmei. " + responder.PromptFor(draft.StepClientIDLookupPending, session)
			break
		}
		client := found.Client(session.ClientIdentifier)
		update.ClientSnapshot = &client
		if out.partial, err = companyPartial(found, false, true); err != nil {
			return outcome{}, err
		}
		out.discard = true

	case responder.ActionCommitCompany:
		merged := accumulate.MergeCompany(turn.PendingCompany, result.Updates.Company)
		if missing, ok := merged.MissingStep(); ok {
			update.CurrentStep = draft.StepPtr(missing)
			out.reply = "Îmi lipsește o informație. " + responder.PromptFor(missing, session)
			if out.partial, err = companyPartial(result.Updates.Company, false, false); err != nil {
				return outcome{}, err
			}
			break
		}
		identifier := ""
		if session.ClientType == draft.ClientCompany {
			identifier = session.ClientIdentifier
		}
		client := merged.Client(identifier)
		update.ClientSnapshot = &client
		if out.partial, err = companyPartial(merged, false, true); err != nil {
			return outcome{}, err
		}
		out.discard = true

	case responder.ActionCommitProduct:
		merged := accumulate.MergeProduct(turn.PendingProduct, result.Updates.Product)
		if missing, ok := merged.MissingStep(); ok {
			update.CurrentStep = draft.StepPtr(missing)
			out.reply = "Îmi lipsește o informație. " + responder.PromptFor(missing, session)
			if out.partial, err = productPartial(result.Updates.Product, false, false); err != nil {
				return outcome{}, err
			}
			break
		}
		products := append(append([]draft.ProductLine{}, session.Products...), merged.Line(e.vatPercent))
		update.Products = products
		if out.partial, err = productPartial(merged, false, true); err != nil {
			return outcome{}, err
		}
		out.discard = true

	case responder.ActionFinalize:
		return e.finalize(ctx, session, update)

	default:
		return outcome{}, fmt.Errorf("unknown responder action %q", result.Action)
	}

	if !update.Empty() {
		updated, err := e.store.UpdateSession(ctx, session.ID, update)
		if err != nil {
			return outcome{}, fmt.Errorf("update session: %w", err)
		}
		out.session = updated
	}
	return out, nil
}

// finalize issues the document. ClientType or step changes carried by the
// same turn are written first.
func (e *Engine) finalize(ctx context.Context, session draft.Session, update draft.SessionUpdate) (outcome, error) {
	if !update.Empty() {
		updated, err := e.store.UpdateSession(ctx, session.ID, update)
		if err != nil {
			return outcome{}, fmt.Errorf("update session: %w", err)
		}
		session = updated
	}

	updated, result, err := e.finalizer.Finalize(ctx, session)
	if err != nil {
		if !errors.Is(err, document.ErrFinalize) {
			return outcome{}, err
		}
		if updated.CurrentStep == draft.StepGenerateDocument {
			return outcome{session: updated, reply: responder.FinalizePendingReply()}, nil
		}
		return outcome{session: updated, reply: responder.FinalizeFailedReply()}, nil
	}
	return outcome{
		session: updated,
		reply:   responder.FinalizedReply(result.Number, result.Total),
		discard: true,
	}, nil
}

func (e *Engine) findCompany(ctx context.Context, sessionID, identifier string) *lookup.Company {
	if e.lookup == nil {
		return nil
	}
	company, err := e.lookup.Lookup(ctx, identifier)
	if err != nil {
		log.Printf("[engine] lookup failed for session=%s identifier=%s, treat as not found: %v", sessionID, identifier, err)
		return nil
	}
	return company
}

// partialFor records the fields extracted at step. The first field of an
// entity starts a fresh accumulation.
func partialFor(step draft.Step, updates responder.Updates) (*draft.PartialUpdate, error) {
	switch {
	case updates.Company != (draft.PendingCompany{}):
		return companyPartial(updates.Company, step == draft.StepManualCompanyName, false)
	case updates.Product != (draft.PendingProduct{}):
		return productPartial(updates.Product, step == draft.StepAddProductName, false)
	default:
		return nil, nil
	}
}

func companyPartial(c draft.PendingCompany, begin, committed bool) (*draft.PartialUpdate, error) {
	fields, err := accumulate.CompanyFields(c)
	if err != nil {
		return nil, err
	}
	return &draft.PartialUpdate{PendingCompanyFields: fields, Begin: begin, Committed: committed}, nil
}

func productPartial(p draft.PendingProduct, begin, committed bool) (*draft.PartialUpdate, error) {
	fields, err := accumulate.ProductFields(p)
	if err != nil {
		return nil, err
	}
	return &draft.PartialUpdate{PendingProductFields: fields, Begin: begin, Committed: committed}, nil
}
