package sorting_api

import (
	"net/http"

	"github.com/BearBump/SortBox/internal/models"
)

type sortedBagRequest struct {
	BagID             int64  `json:"bag" validate:"required,gt=0"`
	Destination       string `json:"destination" validate:"required,oneof=retail outlet donation recycling disposal"`
	Status            string `json:"status" validate:"omitempty,oneof=pending shipped delivered returned"`
	FinalQualityCheck bool   `json:"final_quality_check"`
	PackagingNotes    string `json:"packaging_notes"`
	TrackingNumber    string `json:"tracking_number" validate:"max=100"`
}

type sortedBagUpdateRequest struct {
	Destination       *string `json:"destination" validate:"omitempty,oneof=retail outlet donation recycling disposal"`
	Status            *string `json:"status" validate:"omitempty,oneof=pending shipped delivered returned"`
	FinalQualityCheck *bool   `json:"final_quality_check"`
	PackagingNotes    *string `json:"packaging_notes"`
	TrackingNumber    *string `json:"tracking_number" validate:"omitempty,max=100"`
}

func (req *sortedBagUpdateRequest) update() models.SortedBagUpdate {
	upd := models.SortedBagUpdate{
		FinalQualityCheck: req.FinalQualityCheck,
		PackagingNotes:    req.PackagingNotes,
		TrackingNumber:    req.TrackingNumber,
	}
	if req.Destination != nil {
		d := models.Destination(*req.Destination)
		upd.Destination = &d
	}
	if req.Status != nil {
		st := models.ShipmentStatus(*req.Status)
		upd.Status = &st
	}
	return upd
}

func (a *SortingAPI) listSortedBags(w http.ResponseWriter, r *http.Request) {
	f := models.SortedBagFilter{
		Destination: models.Destination(r.URL.Query().Get("destination")),
		Status:      models.ShipmentStatus(r.URL.Query().Get("status")),
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		a.fail(w, r, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.sorted.List(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *SortingAPI) getSortedBag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sb, err := a.sorted.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

func (a *SortingAPI) getSortedBagByBag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sb, err := a.sorted.GetByBag(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

func (a *SortingAPI) createSortedBag(w http.ResponseWriter, r *http.Request) {
	var req sortedBagRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sb, err := a.sorted.Create(r.Context(), models.SortedBagInput{
		BagID:             req.BagID,
		Destination:       models.Destination(req.Destination),
		Status:            models.ShipmentStatus(req.Status),
		FinalQualityCheck: req.FinalQualityCheck,
		PackagingNotes:    req.PackagingNotes,
		TrackingNumber:    req.TrackingNumber,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sb)
}

func (a *SortingAPI) updateSortedBag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req sortedBagUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sb, err := a.sorted.Update(r.Context(), id, req.update())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}
