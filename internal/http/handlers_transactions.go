package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	applog "fintrack/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Transactions.List(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Body(newTransactionList(txs)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := ParseRequestBody(r)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	defer body.Close()

	t, err := transactionFromBody(body)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	if t.AttachmentRef, err = s.saveAttachment(r, body); err != nil {
		s.writeError(w, r, applog.OpUpload, err)
		return
	}

	created, err := s.deps.Transactions.Create(ctx, ownerFrom(ctx), t)
	if err != nil {
		s.discardAttachment(r, t.AttachmentRef)
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newTransactionResponse(created)).Write(w)
}

// handleUpdateTransaction applies the fields present in the body. A new file
// replaces the previous attachment, which is removed once the update is
// stored.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := ParseRequestBody(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	defer body.Close()

	patch, err := patchFromBody(body)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	ref, err := s.saveAttachment(r, body)
	if err != nil {
		s.writeError(w, r, applog.OpUpload, err)
		return
	}
	if ref != "" {
		patch.AttachmentRef = &ref
	}

	updated, previous, err := s.deps.Transactions.Update(ctx, ownerFrom(ctx), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.discardAttachment(r, ref)
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	if ref != "" && previous.AttachmentRef != "" && previous.AttachmentRef != ref {
		s.discardAttachment(r, previous.AttachmentRef)
	}
	NewJSONResponse().Body(newTransactionResponse(updated)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deleted, err := s.deps.Transactions.Delete(ctx, ownerFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	s.discardAttachment(r, deleted.AttachmentRef)
	NewJSONResponse().Message("Deleted").Write(w)
}

// saveAttachment stores the uploaded file, if any, and returns its
// reference.
func (s *Server) saveAttachment(r *http.Request, body *RequestBodyParser) (string, error) {
	file, name, ok := body.File()
	if !ok {
		return "", nil
	}
	ref, err := s.deps.Attachments.Save(r.Context(), name, file)
	if err != nil {
		return "", err
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Attachment stored", applog.FieldAttachment, ref)
	return ref, nil
}

// discardAttachment removes a stored file. Failures only leave an orphan on
// disk, so they are logged and ignored.
func (s *Server) discardAttachment(r *http.Request, ref string) {
	if ref == "" {
		return
	}
	if err := s.deps.Attachments.Delete(ref); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to remove attachment",
			applog.FieldAttachment, ref,
			applog.FieldError, err)
	}
}
