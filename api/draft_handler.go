package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/session"
)

// Draft is a quote being assembled over several requests before it is
// submitted.
type Draft struct {
	ID          string          `json:"id"`
	RequesterID string          `json:"requester_id"`
	SubjectID   string          `json:"subject_id"`
	Title       string          `json:"title,omitempty"`
	Region      string          `json:"region,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Items       []analysis.Item `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Request turns the draft into an analysis request. A zero total is
// taken as the sum of item amounts.
func (d *Draft) Request(total int64) *analysis.Request {
	if total == 0 {
		for _, it := range d.Items {
			total += it.Amount
		}
	}
	items := make([]analysis.Item, len(d.Items))
	copy(items, d.Items)
	return &analysis.Request{
		RequesterID: d.RequesterID,
		SubjectID:   d.SubjectID,
		Title:       d.Title,
		Region:      d.Region,
		Items:       items,
		TotalAmount: total,
		Notes:       d.Notes,
	}
}

// CreateDraftRequest is the body of POST /v1/drafts.
type CreateDraftRequest struct {
	RequesterID string          `json:"requester_id"`
	SubjectID   string          `json:"subject_id"`
	Title       string          `json:"title,omitempty"`
	Region      string          `json:"region,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Items       []analysis.Item `json:"items,omitempty"`
}

// AddItemsRequest is the body of POST /v1/drafts/{id}/items.
type AddItemsRequest struct {
	Items []analysis.Item `json:"items"`
}

// SubmitDraftRequest is the optional body of POST /v1/drafts/{id}/submit.
type SubmitDraftRequest struct {
	TotalAmount int64          `json:"total_amount,omitempty"`
	Options     *SubmitOptions `json:"options,omitempty"`
}

func (a *API) createDraft(w http.ResponseWriter, r *http.Request) {
	var req CreateDraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeErr(w, r, err)
		return
	}
	if req.RequesterID == "" || req.SubjectID == "" {
		a.writeErr(w, r, &analysis.ValidationError{Subject: "draft", Problems: []string{"requester_id and subject_id are required"}})
		return
	}
	if len(req.Items) > analysis.MaxItems {
		a.writeErr(w, r, tooManyItems(len(req.Items)))
		return
	}

	d := &Draft{
		ID:          id.NewSessionID().String(),
		RequesterID: req.RequesterID,
		SubjectID:   req.SubjectID,
		Title:       req.Title,
		Region:      req.Region,
		Notes:       req.Notes,
		Items:       req.Items,
		CreatedAt:   time.Now().UTC(),
	}
	a.drafts.Put(d.ID, d)
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) getDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := a.drafts.Get(chi.URLParam(r, "id"))
	if !ok {
		a.writeErr(w, r, session.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) addDraftItems(w http.ResponseWriter, r *http.Request) {
	var req AddItemsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeErr(w, r, err)
		return
	}
	if len(req.Items) == 0 {
		a.writeErr(w, r, badRequest("items must not be empty"))
		return
	}

	d, err := a.drafts.Update(chi.URLParam(r, "id"), func(d *Draft) (*Draft, error) {
		if n := len(d.Items) + len(req.Items); n > analysis.MaxItems {
			return nil, tooManyItems(n)
		}
		next := *d
		next.Items = append(append([]analysis.Item(nil), d.Items...), req.Items...)
		return &next, nil
	})
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) submitDraft(w http.ResponseWriter, r *http.Request) {
	var req SubmitDraftRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			a.writeErr(w, r, err)
			return
		}
	}

	draftID := chi.URLParam(r, "id")
	d, ok := a.drafts.Get(draftID)
	if !ok {
		a.writeErr(w, r, session.ErrNotFound)
		return
	}

	sub, err := a.orch.Submit(r.Context(), d.Request(req.TotalAmount), req.Options.Options()...)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	a.drafts.Delete(draftID)
	writeJSON(w, http.StatusOK, sub)
}

func tooManyItems(n int) error {
	return &analysis.ValidationError{
		Subject:  "draft",
		Problems: []string{fmt.Sprintf("%d items exceed the limit of %d", n, analysis.MaxItems)},
	}
}
