package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/BearBump/SortBox/internal/cache"
	"github.com/BearBump/SortBox/internal/metrics"
	"github.com/BearBump/SortBox/internal/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const cachePrefix = "catalog:"

// ErrConfirmationRequired is returned by DeleteSocket when the delete would
// cascade to other rows and the caller did not confirm it.
var ErrConfirmationRequired = errors.New("socket delete requires confirmation")

type Repository interface {
	GetSocket(ctx context.Context, id int64) (*models.Socket, error)
	GetSocketByCode(ctx context.Context, code string) (*models.Socket, error)
	ListSockets(ctx context.Context, activeOnly bool) ([]*models.Socket, error)
	CreateSocket(ctx context.Context, so *models.Socket) error
	UpdateSocket(ctx context.Context, so *models.Socket) error
	SocketImpact(ctx context.Context, id int64) (models.SocketImpact, error)
	DeleteSocket(ctx context.Context, id int64) error

	CreateCategory(ctx context.Context, c *models.BagTypeCategory) error
	UpdateCategory(ctx context.Context, c *models.BagTypeCategory) error
	ListCategories(ctx context.Context, activeOnly bool) ([]*models.BagTypeCategory, error)
	DeleteCategory(ctx context.Context, id int64) error

	GetBagType(ctx context.Context, id int64) (*models.BagType, error)
	ListBagTypes(ctx context.Context, f models.BagTypeFilter) ([]*models.BagType, error)
	CreateBagType(ctx context.Context, t *models.BagType) error
	UpdateBagType(ctx context.Context, t *models.BagType) error
	DeleteBagType(ctx context.Context, id int64) error
	SetBagTypesSource(ctx context.Context, ids []int64, source models.BagSource) (int64, error)

	GetSubtype(ctx context.Context, id int64) (*models.BagSubtype, error)
	ListSubtypes(ctx context.Context, f models.SubtypeFilter) ([]*models.BagSubtype, error)
	CreateSubtype(ctx context.Context, st *models.BagSubtype) error
	UpdateSubtype(ctx context.Context, st *models.BagSubtype) error
	DeleteSubtype(ctx context.Context, id int64) error
	ClearSubtypeCategory(ctx context.Context, ids []int64) (int64, error)

	CreatePerson(ctx context.Context, p *models.SortingPerson) error
	ListPersons(ctx context.Context) ([]*models.SortingPerson, error)
	DeletePerson(ctx context.Context, id int64) error

	Reorder(ctx context.Context, kind models.OrderKind, ids []int64) error
}

type Service struct {
	repo    Repository
	cache   cache.BytesCache
	ttl     time.Duration
	metrics *metrics.Sorting
	log     zerolog.Logger
}

// New builds the catalog service. A nil cache or zero ttl disables caching
// of the active lookups used by the wizard.
func New(repo Repository, c cache.BytesCache, ttl time.Duration, m *metrics.Sorting, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   c,
		ttl:     ttl,
		metrics: m,
		log:     log.With().Str("component", "catalog").Logger(),
	}
}

// Sockets

func (s *Service) GetSocket(ctx context.Context, id int64) (*models.Socket, error) {
	return s.repo.GetSocket(ctx, id)
}

func (s *Service) GetSocketByCode(ctx context.Context, code string) (*models.Socket, error) {
	return s.repo.GetSocketByCode(ctx, code)
}

func (s *Service) ListSockets(ctx context.Context, activeOnly bool) ([]*models.Socket, error) {
	return s.repo.ListSockets(ctx, activeOnly)
}

func (s *Service) CreateSocket(ctx context.Context, so *models.Socket) error {
	so.Normalize()
	if err := so.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateSocket(ctx, so); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) UpdateSocket(ctx context.Context, so *models.Socket) error {
	so.Normalize()
	if err := so.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateSocket(ctx, so); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) SocketImpact(ctx context.Context, id int64) (models.SocketImpact, error) {
	if _, err := s.repo.GetSocket(ctx, id); err != nil {
		return models.SocketImpact{}, err
	}
	return s.repo.SocketImpact(ctx, id)
}

// DeleteSocket removes a socket with everything that hangs off it. When the
// socket still owns rows the caller has to pass confirm, otherwise the impact
// is returned together with ErrConfirmationRequired.
func (s *Service) DeleteSocket(ctx context.Context, id int64, confirm bool) (models.SocketImpact, error) {
	im, err := s.SocketImpact(ctx, id)
	if err != nil {
		return im, err
	}
	if !im.Empty() && !confirm {
		return im, ErrConfirmationRequired
	}
	if err := s.repo.DeleteSocket(ctx, id); err != nil {
		return im, err
	}
	s.invalidate(ctx)
	s.log.Warn().
		Int64("socket", id).
		Int("bag_types", im.BagTypes).
		Int("subtypes", im.Subtypes).
		Int("bags", im.Bags).
		Int("sorted_bags", im.SortedBags).
		Msg("socket deleted")
	return im, nil
}

// Categories

func (s *Service) ListCategories(ctx context.Context, activeOnly bool) ([]*models.BagTypeCategory, error) {
	return s.repo.ListCategories(ctx, activeOnly)
}

func (s *Service) CreateCategory(ctx context.Context, c *models.BagTypeCategory) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) UpdateCategory(ctx context.Context, c *models.BagTypeCategory) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Bag types

func (s *Service) GetBagType(ctx context.Context, id int64) (*models.BagType, error) {
	return s.repo.GetBagType(ctx, id)
}

func (s *Service) ListBagTypes(ctx context.Context, f models.BagTypeFilter) ([]*models.BagType, error) {
	return s.repo.ListBagTypes(ctx, f)
}

// ActiveBagTypes lists the active bag types of a socket, optionally narrowed
// to one source direction. Results are cached.
func (s *Service) ActiveBagTypes(ctx context.Context, socketID int64, source models.BagSource) ([]*models.BagType, error) {
	key := fmt.Sprintf("%sbagtypes:%d:%s", cachePrefix, socketID, source)
	var out []*models.BagType
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err := s.repo.ListBagTypes(ctx, models.BagTypeFilter{SocketID: socketID, Source: source, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *Service) CreateBagType(ctx context.Context, t *models.BagType) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateBagType(ctx, t); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) UpdateBagType(ctx context.Context, t *models.BagType) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateBagType(ctx, t); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DeleteBagType fails with ErrReferenced while any bag uses the type.
func (s *Service) DeleteBagType(ctx context.Context, id int64) error {
	if err := s.repo.DeleteBagType(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) BulkSetSource(ctx context.Context, ids []int64, source models.BagSource) (int64, error) {
	if len(ids) == 0 {
		return 0, models.Invalid("ids", "at least one id is required")
	}
	if !source.IsValid() {
		return 0, models.Invalid("bag_source", "must be IN or OUT")
	}
	n, err := s.repo.SetBagTypesSource(ctx, ids, source)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return n, nil
}

// Subtypes

func (s *Service) GetSubtype(ctx context.Context, id int64) (*models.BagSubtype, error) {
	return s.repo.GetSubtype(ctx, id)
}

func (s *Service) ListSubtypes(ctx context.Context, f models.SubtypeFilter) ([]*models.BagSubtype, error) {
	return s.repo.ListSubtypes(ctx, f)
}

// ActiveSubtypes lists the active subtypes of a bag type by order then name. Results are cached.
func (s *Service) ActiveSubtypes(ctx context.Context, bagTypeID int64) ([]*models.BagSubtype, error) {
	key := fmt.Sprintf("%ssubtypes:%d", cachePrefix, bagTypeID)
	var out []*models.BagSubtype
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err := s.repo.ListSubtypes(ctx, models.SubtypeFilter{BagTypeID: bagTypeID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *Service) SubtypesByCategory(ctx context.Context, categoryID int64) ([]*models.BagSubtype, error) {
	return s.repo.ListSubtypes(ctx, models.SubtypeFilter{CategoryID: categoryID, ActiveOnly: true})
}

// SubtypeGroup is one category with its subtypes. Category is nil for the
// group of uncategorised subtypes.
type SubtypeGroup struct {
	Category *models.BagTypeCategory `json:"category"`
	Color    string                  `json:"color"`
	Subtypes []*models.BagSubtype    `json:"subtypes"`
}

// GroupedSubtypes groups the active subtypes of a bag type by category.
func (s *Service) GroupedSubtypes(ctx context.Context, bagTypeID int64) ([]SubtypeGroup, error) {
	subtypes, err := s.ActiveSubtypes(ctx, bagTypeID)
	if err != nil {
		return nil, err
	}
	return GroupSubtypesByCategory(subtypes), nil
}

// GroupSubtypesByCategory orders groups by category order then name with the
// uncategorised group last. Subtypes inside a group are sorted by name.
func GroupSubtypesByCategory(subtypes []*models.BagSubtype) []SubtypeGroup {
	byCat := map[int64]*SubtypeGroup{}
	var none *SubtypeGroup
	for _, st := range subtypes {
		if st.Category == nil {
			if none == nil {
				none = &SubtypeGroup{Color: models.NeutralColor}
			}
			none.Subtypes = append(none.Subtypes, st)
			continue
		}
		g, ok := byCat[st.Category.ID]
		if !ok {
			g = &SubtypeGroup{Category: st.Category, Color: st.EffectiveColor()}
			byCat[st.Category.ID] = g
		}
		g.Subtypes = append(g.Subtypes, st)
	}

	out := make([]SubtypeGroup, 0, len(byCat)+1)
	for _, g := range byCat {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Category, out[j].Category
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Name < b.Name
	})
	if none != nil {
		out = append(out, *none)
	}
	for _, g := range out {
		sort.SliceStable(g.Subtypes, func(i, j int) bool { return g.Subtypes[i].Name < g.Subtypes[j].Name })
	}
	return out
}

func (s *Service) CreateSubtype(ctx context.Context, st *models.BagSubtype) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateSubtype(ctx, st); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) UpdateSubtype(ctx context.Context, st *models.BagSubtype) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateSubtype(ctx, st); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) DeleteSubtype(ctx context.Context, id int64) error {
	if err := s.repo.DeleteSubtype(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) BulkClearCategory(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, models.Invalid("ids", "at least one id is required")
	}
	n, err := s.repo.ClearSubtypeCategory(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx)
	return n, nil
}

// Persons

func (s *Service) CreatePerson(ctx context.Context, p *models.SortingPerson) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.CreatePerson(ctx, p)
}

func (s *Service) ListPersons(ctx context.Context) ([]*models.SortingPerson, error) {
	return s.repo.ListPersons(ctx)
}

func (s *Service) DeletePerson(ctx context.Context, id int64) error {
	return s.repo.DeletePerson(ctx, id)
}

// Reorder sets order = position+1 for the given ids.
func (s *Service) Reorder(ctx context.Context, kind models.OrderKind, ids []int64) error {
	if !kind.IsValid() {
		return models.Invalid("type", "must be socket, bagtype or bagsubtype")
	}
	if len(ids) == 0 {
		return models.Invalid("order", "at least one id is required")
	}
	if len(ids) > models.MaxOrder {
		return models.Invalid("order", "at most 1000 ids")
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return models.Invalid("order", fmt.Sprintf("duplicate id %d", id))
		}
		seen[id] = struct{}{}
	}
	if err := s.repo.Reorder(ctx, kind, ids); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil || s.ttl <= 0 {
		return false
	}
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("catalog cache get")
	}
	if err != nil || !ok {
		s.metrics.CatalogCache(false)
		return false
	}
	if json.Unmarshal(b, dst) != nil {
		s.metrics.CatalogCache(false)
		return false
	}
	s.metrics.CatalogCache(true)
	return true
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("catalog cache set")
	}
}

// invalidate drops every cached lookup. Catalog writes are rare so a coarse
// flush is enough.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		s.log.Warn().Err(err).Msg("catalog cache invalidate")
	}
}
