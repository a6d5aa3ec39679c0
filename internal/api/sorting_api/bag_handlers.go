package sorting_api

import (
	"net/http"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type bagCreateRequest struct {
	BagID        string           `json:"bag_id" validate:"omitempty,max=50"`
	SocketID     int64            `json:"socket" validate:"required,gt=0"`
	PersonID     *int64           `json:"person" validate:"omitempty,gt=0"`
	BagTypeID    int64            `json:"bag_type" validate:"required,gt=0"`
	BagSubtypeID *int64           `json:"bag_subtype" validate:"omitempty,gt=0"`
	QualityGrade string           `json:"quality_grade" validate:"omitempty,oneof=A B C"`
	WeightKg     *decimal.Decimal `json:"weight_kg"`
	ItemCount    int              `json:"item_count" validate:"min=0"`
	Processed    bool             `json:"processed"`
	Extra        bool             `json:"extra"`
	Notes        string           `json:"notes"`
	Source       string           `json:"bag_source" validate:"omitempty,oneof=IN OUT"`
}

// bagUpdateRequest is a partial edit. ClearWeight drops a recorded weight.
type bagUpdateRequest struct {
	BagSubtypeID *int64           `json:"bag_subtype" validate:"omitempty,gt=0"`
	QualityGrade *string          `json:"quality_grade" validate:"omitempty,oneof=A B C"`
	WeightKg     *decimal.Decimal `json:"weight_kg"`
	ClearWeight  bool             `json:"clear_weight"`
	ItemCount    *int             `json:"item_count" validate:"omitempty,min=0"`
	Processed    *bool            `json:"processed"`
	Extra        *bool            `json:"extra"`
	Notes        *string          `json:"notes"`
	Source       *string          `json:"bag_source" validate:"omitempty,oneof=IN OUT"`
}

func (req *bagUpdateRequest) update() models.BagUpdate {
	upd := models.BagUpdate{
		BagSubtypeID: req.BagSubtypeID,
		ItemCount:    req.ItemCount,
		Processed:    req.Processed,
		Extra:        req.Extra,
		Notes:        req.Notes,
	}
	if req.QualityGrade != nil {
		g := models.QualityGrade(*req.QualityGrade)
		upd.QualityGrade = &g
	}
	switch {
	case req.ClearWeight:
		upd.WeightKg = &decimal.NullDecimal{}
	case req.WeightKg != nil:
		upd.WeightKg = &decimal.NullDecimal{Decimal: *req.WeightKg, Valid: true}
	}
	if req.Source != nil {
		src := models.BagSource(*req.Source)
		upd.Source = &src
	}
	return upd
}

type assignPersonRequest struct {
	PersonID *int64 `json:"person" validate:"omitempty,gt=0"`
}

type bulkExtraRequest struct {
	IDs   []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Extra *bool   `json:"extra" validate:"required"`
}

type bagResponse struct {
	*models.Bag
	ProcessingDuration string `json:"processing_duration,omitempty"`
}

func newBagResponse(b *models.Bag) bagResponse {
	return bagResponse{Bag: b, ProcessingDuration: b.ProcessingDuration()}
}

func newBagResponses(bags []*models.Bag) []bagResponse {
	out := make([]bagResponse, 0, len(bags))
	for _, b := range bags {
		out = append(out, newBagResponse(b))
	}
	return out
}

func (a *SortingAPI) listBags(w http.ResponseWriter, r *http.Request) {
	f, err := bagFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeBags(w, r, f)
}

func (a *SortingAPI) socketBags(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	f, err := bagFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	f.SocketID = id
	a.writeBags(w, r, f)
}

func (a *SortingAPI) writeBags(w http.ResponseWriter, r *http.Request, f models.BagFilter) {
	bags, err := a.bags.List(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBagResponses(bags))
}

func bagFilter(r *http.Request) (models.BagFilter, error) {
	var (
		f   = models.BagFilter{Status: models.BagStatusFilter(r.URL.Query().Get("status"))}
		err error
	)
	if f.SocketID, err = queryInt64(r, "socket"); err != nil {
		return f, err
	}
	if f.BagTypeID, err = queryInt64(r, "bag_type"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func (a *SortingAPI) getBag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.bags.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBagResponse(b))
}

func (a *SortingAPI) getBagByBagID(w http.ResponseWriter, r *http.Request) {
	b, err := a.bags.GetByBagID(r.Context(), chi.URLParam(r, "bagID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBagResponse(b))
}

func (a *SortingAPI) nextBagID(w http.ResponseWriter, r *http.Request) {
	id, err := a.bags.GenerateNextBagID(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bag_id": id})
}

func (a *SortingAPI) createBag(w http.ResponseWriter, r *http.Request) {
	var req bagCreateRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	in := models.BagCreateInput{
		BagID:        req.BagID,
		SocketID:     req.SocketID,
		PersonID:     req.PersonID,
		BagTypeID:    req.BagTypeID,
		BagSubtypeID: req.BagSubtypeID,
		QualityGrade: models.QualityGrade(req.QualityGrade),
		ItemCount:    req.ItemCount,
		Processed:    req.Processed,
		Extra:        req.Extra,
		Notes:        req.Notes,
		Source:       models.BagSource(req.Source),
	}
	if req.WeightKg != nil {
		in.WeightKg = decimal.NullDecimal{Decimal: *req.WeightKg, Valid: true}
	}
	b, err := a.bags.Create(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBagResponse(b))
}

func (a *SortingAPI) updateBag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req bagUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.bags.Update(r.Context(), id, req.update())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBagResponse(b))
}

func (a *SortingAPI) markProcessed(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.bags.MarkProcessed(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBagResponse(b))
}

// assignPerson sets the sorter of a bag, {"person": null} clears it.
func (a *SortingAPI) assignPerson(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req assignPersonRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.bags.AssignPerson(r.Context(), id, req.PersonID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBagResponse(b))
}

func (a *SortingAPI) bulkBagExtra(w http.ResponseWriter, r *http.Request) {
	var req bulkExtraRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.bags.BulkSetExtra(r.Context(), req.IDs, *req.Extra)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResult{Updated: n})
}

func (a *SortingAPI) bulkBagSource(w http.ResponseWriter, r *http.Request) {
	var req bulkSourceRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.bags.BulkSetSource(r.Context(), req.IDs, models.BagSource(req.Source))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResult{Updated: n})
}

func (a *SortingAPI) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.bags.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
