package document

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

// SessionWriter is the part of the session store the finalizer writes to.
type SessionWriter interface {
	UpdateSession(ctx context.Context, id string, update draft.SessionUpdate) (draft.Session, error)
}

// Finalizer issues the document of a session and records the outcome on it.
type Finalizer struct {
	pipeline Pipeline
	sessions SessionWriter
}

// NewFinalizer wires a pipeline to the session store.
func NewFinalizer(pipeline Pipeline, sessions SessionWriter) *Finalizer {
	return &Finalizer{pipeline: pipeline, sessions: sessions}
}

// Finalize moves the session through generate_document. On success the
// session is done and completed with the document id in a single update.
// When no document was issued the session is put back at confirm_add_more.
// When the document was issued but the completion write failed, the session
// stays at generate_document so the next turn repeats the call, which the
// pipeline answers with the same document. Both failures return ErrFinalize.
func (f *Finalizer) Finalize(ctx context.Context, session draft.Session) (draft.Session, Result, error) {
	req, err := BuildRequest(session)
	if err != nil {
		return f.rollback(ctx, session, err)
	}

	if session.CurrentStep != draft.StepGenerateDocument {
		generating, err := f.sessions.UpdateSession(ctx, session.ID, draft.SessionUpdate{
			CurrentStep: draft.StepPtr(draft.StepGenerateDocument),
		})
		if err != nil {
			return session, Result{}, fmt.Errorf("%w: mark generating: %v", ErrFinalize, err)
		}
		session = generating
	}

	result, err := f.pipeline.CreateDocument(ctx, req)
	if err != nil {
		return f.rollback(ctx, session, err)
	}

	updated, err := f.sessions.UpdateSession(ctx, session.ID, draft.SessionUpdate{
		CurrentStep:          draft.StepPtr(draft.StepDone),
		Status:               draft.StatusPtr(draft.StatusCompleted),
		ResultDocumentID:     draft.StringPtr(result.ID),
		ResultDocumentNumber: draft.StringPtr(result.Number),
	})
	if err != nil {
		log.Printf("[document] document=%s issued but session=%s not updated: %v", result.ID, session.ID, err)
		return session, Result{}, fmt.Errorf("%w: record document %s: %v", ErrFinalize, result.Number, err)
	}

	log.Printf("[document] issued %s for session=%s, total=%s", result.Number, session.ID, result.Total.StringFixed(2))
	return updated, result, nil
}

func (f *Finalizer) rollback(ctx context.Context, session draft.Session, cause error) (draft.Session, Result, error) {
	log.Printf("[document] finalization failed for session=%s: %v", session.ID, cause)
	restored, err := f.sessions.UpdateSession(ctx, session.ID, draft.SessionUpdate{
		CurrentStep: draft.StepPtr(draft.StepConfirmAddMore),
	})
	if err != nil {
		log.Printf("[document] failed to restore session=%s: %v", session.ID, err)
		restored = session
	}
	return restored, Result{}, fmt.Errorf("%w: %v", ErrFinalize, cause)
}
