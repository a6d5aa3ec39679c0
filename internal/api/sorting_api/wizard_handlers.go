package sorting_api

import (
	"net/http"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/services/wizard"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type wizardSocketRequest struct {
	SocketID int64  `json:"socket" validate:"required,gt=0"`
	Source   string `json:"bag_source" validate:"omitempty,oneof=IN OUT"`
}

type wizardBagTypeRequest struct {
	BagTypeID int64  `json:"bag_type" validate:"required,gt=0"`
	Parameter string `json:"parameter" validate:"omitempty,oneof=Standard Extra"`
}

type wizardSubtypeRequest struct {
	SubtypeID int64 `json:"bag_subtype" validate:"required,gt=0"`
}

type wizardWeightRequest struct {
	WeightKg *decimal.Decimal `json:"weight_kg" validate:"required"`
	Notes    string           `json:"notes" validate:"max=1000"`
}

type wizardContinueRequest struct {
	Action string `json:"action" validate:"required,oneof=continue_same_socket continue_new_socket finish"`
}

// wizardCommitResponse carries the created bag and the choices offered next.
type wizardCommitResponse struct {
	Bag            bagResponse     `json:"bag"`
	SocketInfo     string          `json:"socket_info"`
	BagTypeDisplay string          `json:"bag_type_display"`
	Actions        []wizard.Action `json:"actions"`
}

func (a *SortingAPI) wizardStart(w http.ResponseWriter, r *http.Request) {
	st, err := a.wizard.Start(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/wizard/"+st.Draft.ID)
	writeJSON(w, http.StatusCreated, st)
}

func (a *SortingAPI) wizardGet(w http.ResponseWriter, r *http.Request) {
	st, err := a.wizard.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *SortingAPI) wizardDiscard(w http.ResponseWriter, r *http.Request) {
	if err := a.wizard.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *SortingAPI) wizardSocket(w http.ResponseWriter, r *http.Request) {
	var req wizardSocketRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.wizard.SelectSocket(r.Context(), chi.URLParam(r, "id"), req.SocketID, models.BagSource(req.Source))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *SortingAPI) wizardBagType(w http.ResponseWriter, r *http.Request) {
	var req wizardBagTypeRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.wizard.SelectBagType(r.Context(), chi.URLParam(r, "id"), req.BagTypeID, models.Parameter(req.Parameter))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *SortingAPI) wizardSubtype(w http.ResponseWriter, r *http.Request) {
	var req wizardSubtypeRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.wizard.SelectSubtype(r.Context(), chi.URLParam(r, "id"), req.SubtypeID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *SortingAPI) wizardWeight(w http.ResponseWriter, r *http.Request) {
	var req wizardWeightRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.wizard.SetWeight(r.Context(), chi.URLParam(r, "id"), *req.WeightKg, req.Notes)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *SortingAPI) wizardCommit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Display strings come from the draft before commit, the draft is kept until Continue.
	st, err := a.wizard.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	bag, err := a.wizard.Commit(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wizardCommitResponse{
		Bag:            newBagResponse(bag),
		SocketInfo:     st.SocketInfo,
		BagTypeDisplay: st.BagTypeDisplay,
		Actions: []wizard.Action{
			wizard.ActionContinueSameSocket,
			wizard.ActionContinueNewSocket,
			wizard.ActionFinish,
		},
	})
}

// wizardContinue answers 204 on finish since the draft is gone.
func (a *SortingAPI) wizardContinue(w http.ResponseWriter, r *http.Request) {
	var req wizardContinueRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.wizard.Continue(r.Context(), chi.URLParam(r, "id"), wizard.Action(req.Action))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if st == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
