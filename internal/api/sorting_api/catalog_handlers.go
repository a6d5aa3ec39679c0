package sorting_api

import (
	"net/http"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/pkg/errors"
)

type socketRequest struct {
	SocketID       string   `json:"socket_id" validate:"required,max=50"`
	Name           string   `json:"socket_name" validate:"required,max=50"`
	Color          string   `json:"socket_color" validate:"omitempty,hexcolor"`
	Location       string   `json:"location" validate:"max=100"`
	IsActive       *bool    `json:"is_active"`
	Order          int      `json:"order" validate:"min=0,max=1000"`
	SupportsSource bool     `json:"supports_source"`
	Users          []string `json:"users" validate:"max=100,dive,required,max=150"`
}

func (req *socketRequest) model(id int64) *models.Socket {
	return &models.Socket{
		ID:             id,
		SocketID:       req.SocketID,
		Name:           req.Name,
		Color:          req.Color,
		Location:       req.Location,
		IsActive:       boolOr(req.IsActive, true),
		Order:          req.Order,
		SupportsSource: req.SupportsSource,
		Users:          req.Users,
	}
}

type categoryRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Color    string `json:"color" validate:"omitempty,hexcolor"`
	Icon     string `json:"icon" validate:"max=50"`
	Order    int    `json:"order" validate:"min=0,max=1000"`
	IsActive *bool  `json:"is_active"`
}

type bagTypeRequest struct {
	Name        string   `json:"name" validate:"required,max=50"`
	Code        string   `json:"code" validate:"required,max=20"`
	Description string   `json:"description"`
	Color       string   `json:"color" validate:"omitempty,hexcolor"`
	Parameters  []string `json:"parameters" validate:"dive,oneof=Standard Extra"`
	Order       int      `json:"order" validate:"required,min=1,max=1000"`
	Source      string   `json:"bag_source" validate:"required,oneof=IN OUT"`
	IsActive    *bool    `json:"is_active"`
	SocketID    int64    `json:"socket" validate:"required,gt=0"`
}

func (req *bagTypeRequest) model(id int64) (*models.BagType, error) {
	params, err := models.ParseParameterSet(req.Parameters)
	if err != nil {
		return nil, models.Invalid("parameters", err.Error())
	}
	return &models.BagType{
		ID:          id,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Color:       req.Color,
		Parameters:  params,
		Order:       req.Order,
		Source:      models.BagSource(req.Source),
		IsActive:    boolOr(req.IsActive, true),
		SocketID:    req.SocketID,
	}, nil
}

type subtypeRequest struct {
	BagTypeID   int64  `json:"bag_type" validate:"required,gt=0"`
	CategoryID  *int64 `json:"category" validate:"omitempty,gt=0"`
	Name        string `json:"name" validate:"required,max=100"`
	Code        string `json:"code" validate:"max=10"`
	Description string `json:"description"`
	Order       int    `json:"order" validate:"min=0,max=1000"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	IsActive    *bool  `json:"is_active"`
}

func (req *subtypeRequest) model(id int64) *models.BagSubtype {
	return &models.BagSubtype{
		ID:          id,
		BagTypeID:   req.BagTypeID,
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Order:       req.Order,
		Color:       req.Color,
		IsActive:    boolOr(req.IsActive, true),
	}
}

type personRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	PersonID string `json:"person_id" validate:"required,max=20"`
	Color    string `json:"person_color" validate:"omitempty,hexcolor"`
}

type reorderRequest struct {
	Type  string  `json:"type" validate:"required,oneof=socket bagtype bagsubtype"`
	Order []int64 `json:"order" validate:"required,min=1,max=1000,dive,gt=0"`
}

type bulkSourceRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Source string  `json:"bag_source" validate:"omitempty,oneof=IN OUT"`
}

type bulkIDsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

type bulkResult struct {
	Updated int64 `json:"updated"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Sockets

func (a *SortingAPI) listSockets(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sockets, err := a.catalog.ListSockets(r.Context(), active)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sockets)
}

func (a *SortingAPI) getSocket(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	so, err := a.catalog.GetSocket(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, so)
}

func (a *SortingAPI) createSocket(w http.ResponseWriter, r *http.Request) {
	var req socketRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	so := req.model(0)
	if err := a.catalog.CreateSocket(r.Context(), so); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, so)
}

func (a *SortingAPI) updateSocket(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req socketRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	so := req.model(id)
	if err := a.catalog.UpdateSocket(r.Context(), so); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, so)
}

func (a *SortingAPI) socketImpact(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	im, err := a.catalog.SocketImpact(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, im)
}

// deleteSocket needs ?confirm=true when the socket still owns rows. Without it
// the answer is 409 carrying the impact counts.
func (a *SortingAPI) deleteSocket(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	confirm, err := queryBool(r, "confirm")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	im, err := a.catalog.DeleteSocket(r.Context(), id, confirm)
	if err != nil {
		if errors.Is(err, catalog.ErrConfirmationRequired) {
			writeErr(w, http.StatusConflict, "confirmation_required",
				"socket has dependent rows, repeat with confirm=true", im)
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, im)
}

func (a *SortingAPI) socketBagTypes(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	source := models.BagSource(r.URL.Query().Get("source"))
	if source != "" && !source.IsValid() {
		a.fail(w, r, models.Invalid("source", "must be IN or OUT"))
		return
	}
	types, err := a.catalog.ActiveBagTypes(r.Context(), id, source)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// Categories

func (a *SortingAPI) listCategories(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	cats, err := a.catalog.ListCategories(r.Context(), active)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (a *SortingAPI) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c := &models.BagTypeCategory{
		Name:     req.Name,
		Color:    req.Color,
		Icon:     req.Icon,
		Order:    req.Order,
		IsActive: boolOr(req.IsActive, true),
	}
	if err := a.catalog.CreateCategory(r.Context(), c); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *SortingAPI) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c := &models.BagTypeCategory{
		ID:       id,
		Name:     req.Name,
		Color:    req.Color,
		Icon:     req.Icon,
		Order:    req.Order,
		IsActive: boolOr(req.IsActive, true),
	}
	if err := a.catalog.UpdateCategory(r.Context(), c); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *SortingAPI) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.catalog.DeleteCategory(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *SortingAPI) categorySubtypes(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	subs, err := a.catalog.SubtypesByCategory(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Bag types

func (a *SortingAPI) listBagTypes(w http.ResponseWriter, r *http.Request) {
	socket, err := queryInt64(r, "socket")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	f := models.BagTypeFilter{
		SocketID:   socket,
		Source:     models.BagSource(r.URL.Query().Get("source")),
		ActiveOnly: active,
	}
	types, err := a.catalog.ListBagTypes(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (a *SortingAPI) getBagType(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := a.catalog.GetBagType(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *SortingAPI) createBagType(w http.ResponseWriter, r *http.Request) {
	var req bagTypeRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := req.model(0)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.catalog.CreateBagType(r.Context(), t); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *SortingAPI) updateBagType(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req bagTypeRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	t, err := req.model(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.catalog.UpdateBagType(r.Context(), t); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *SortingAPI) deleteBagType(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.catalog.DeleteBagType(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *SortingAPI) bulkBagTypeSource(w http.ResponseWriter, r *http.Request) {
	var req bulkSourceRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.catalog.BulkSetSource(r.Context(), req.IDs, models.BagSource(req.Source))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResult{Updated: n})
}

func (a *SortingAPI) bagTypeSubtypes(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	subs, err := a.catalog.ActiveSubtypes(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (a *SortingAPI) bagTypeSubtypesGrouped(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	groups, err := a.catalog.GroupedSubtypes(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// Subtypes

func (a *SortingAPI) listSubtypes(w http.ResponseWriter, r *http.Request) {
	bagType, err := queryInt64(r, "bag_type")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	category, err := queryInt64(r, "category")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	subs, err := a.catalog.ListSubtypes(r.Context(), models.SubtypeFilter{
		BagTypeID:  bagType,
		CategoryID: category,
		ActiveOnly: active,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (a *SortingAPI) getSubtype(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.catalog.GetSubtype(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *SortingAPI) createSubtype(w http.ResponseWriter, r *http.Request) {
	var req subtypeRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	st := req.model(0)
	if err := a.catalog.CreateSubtype(r.Context(), st); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (a *SortingAPI) updateSubtype(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req subtypeRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	st := req.model(id)
	if err := a.catalog.UpdateSubtype(r.Context(), st); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *SortingAPI) deleteSubtype(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.catalog.DeleteSubtype(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *SortingAPI) bulkClearCategory(w http.ResponseWriter, r *http.Request) {
	var req bulkIDsRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.catalog.BulkClearCategory(r.Context(), req.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResult{Updated: n})
}

// Persons

func (a *SortingAPI) listPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := a.catalog.ListPersons(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, persons)
}

func (a *SortingAPI) createPerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p := &models.SortingPerson{Name: req.Name, PersonID: req.PersonID, Color: req.Color}
	if err := a.catalog.CreatePerson(r.Context(), p); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *SortingAPI) deletePerson(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.catalog.DeletePerson(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *SortingAPI) reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.catalog.Reorder(r.Context(), models.OrderKind(req.Type), req.Order); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
