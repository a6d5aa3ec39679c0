// Package memsorting is an in-memory stand-in for pgsorting. It keeps the same
// conflict, not-found and locking behavior so services can be run without postgres.
package memsorting

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/storage"
	"github.com/pkg/errors"
)

type Store struct {
	mu sync.Mutex

	nextID     int64
	sockets    map[int64]*models.Socket
	bagTypes   map[int64]*models.BagType
	subtypes   map[int64]*models.BagSubtype
	categories map[int64]*models.BagTypeCategory
	persons    map[int64]*models.SortingPerson
	bags       map[int64]*models.Bag
	sortedBags map[int64]*models.SortedBag
}

func New() *Store {
	return &Store{
		sockets:    map[int64]*models.Socket{},
		bagTypes:   map[int64]*models.BagType{},
		subtypes:   map[int64]*models.BagSubtype{},
		categories: map[int64]*models.BagTypeCategory{},
		persons:    map[int64]*models.SortingPerson{},
		bags:       map[int64]*models.Bag{},
		sortedBags: map[int64]*models.SortedBag{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func notFound(what string) error {
	return errors.Wrap(models.ErrNotFound, what)
}

func (s *Store) CreateSocket(_ context.Context, so *models.Socket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.sockets {
		if ex.SocketID == so.SocketID {
			return errors.Wrapf(models.ErrConflict, "socket %s", so.SocketID)
		}
	}
	so.ID = s.id()
	so.CreatedAt = time.Now().UTC()
	c := *so
	s.sockets[so.ID] = &c
	return nil
}

func (s *Store) GetSocket(_ context.Context, id int64) (*models.Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socket(id)
}

func (s *Store) socket(id int64) (*models.Socket, error) {
	so, ok := s.sockets[id]
	if !ok {
		return nil, notFound("socket")
	}
	c := *so
	c.BagCount = 0
	for _, b := range s.bags {
		if b.SocketID == id {
			c.BagCount++
		}
	}
	return &c, nil
}

func (s *Store) GetSocketByCode(ctx context.Context, code string) (*models.Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, so := range s.sockets {
		if so.SocketID == code {
			return s.socket(id)
		}
	}
	return nil, notFound("socket")
}

func (s *Store) CreateBagType(_ context.Context, t *models.BagType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sockets[t.SocketID]; !ok {
		return models.Invalid("socket", "unknown socket")
	}
	for _, ex := range s.bagTypes {
		if ex.Name == t.Name || ex.Code == t.Code {
			return errors.Wrapf(models.ErrConflict, "bag type %s", t.Code)
		}
	}
	t.ID = s.id()
	t.CreatedAt = time.Now().UTC()
	c := *t
	s.bagTypes[t.ID] = &c
	return nil
}

func (s *Store) GetBagType(_ context.Context, id int64) (*models.BagType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.bagTypes[id]
	if !ok {
		return nil, notFound("bag type")
	}
	c := *t
	return &c, nil
}

func (s *Store) ListBagTypes(_ context.Context, f models.BagTypeFilter) ([]*models.BagType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BagType
	for _, t := range s.bagTypes {
		if f.SocketID > 0 && t.SocketID != f.SocketID {
			continue
		}
		if f.Source != "" && t.Source != f.Source {
			continue
		}
		if f.ActiveOnly && !t.IsActive {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DeleteBagType mirrors the postgres foreign keys: blocked while bags use the
// type, cascades to its subtypes otherwise.
func (s *Store) DeleteBagType(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bagTypes[id]; !ok {
		return notFound("bag type")
	}
	for _, b := range s.bags {
		if b.BagTypeID == id {
			return errors.Wrap(models.ErrReferenced, "bag type is used by bags")
		}
	}
	delete(s.bagTypes, id)
	for sid, st := range s.subtypes {
		if st.BagTypeID == id {
			s.dropSubtype(sid)
		}
	}
	return nil
}

func (s *Store) dropSubtype(id int64) {
	delete(s.subtypes, id)
	for _, b := range s.bags {
		if b.BagSubtypeID != nil && *b.BagSubtypeID == id {
			b.BagSubtypeID = nil
		}
	}
}

func (s *Store) CreateCategory(_ context.Context, c *models.BagTypeCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.categories {
		if ex.Name == c.Name {
			return errors.Wrapf(models.ErrConflict, "category %s", c.Name)
		}
	}
	c.ID = s.id()
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *Store) CreateSubtype(_ context.Context, st *models.BagSubtype) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bagTypes[st.BagTypeID]; !ok {
		return models.Invalid("bag_type", "unknown bag type")
	}
	if st.CategoryID != nil {
		if _, ok := s.categories[*st.CategoryID]; !ok {
			return models.Invalid("category", "unknown category")
		}
	}
	for _, ex := range s.subtypes {
		if ex.BagTypeID == st.BagTypeID && ex.Name == st.Name {
			return errors.Wrapf(models.ErrConflict, "subtype %s", st.Name)
		}
	}
	st.ID = s.id()
	st.CreatedAt = time.Now().UTC()
	c := *st
	c.Category = nil
	s.subtypes[st.ID] = &c
	return nil
}

func (s *Store) subtype(st *models.BagSubtype) *models.BagSubtype {
	c := *st
	if c.CategoryID != nil {
		if cat, ok := s.categories[*c.CategoryID]; ok {
			cc := *cat
			c.Category = &cc
		}
	}
	return &c
}

func (s *Store) GetSubtype(_ context.Context, id int64) (*models.BagSubtype, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subtypes[id]
	if !ok {
		return nil, notFound("subtype")
	}
	return s.subtype(st), nil
}

func (s *Store) ListSubtypes(_ context.Context, f models.SubtypeFilter) ([]*models.BagSubtype, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BagSubtype
	for _, st := range s.subtypes {
		if f.BagTypeID > 0 && st.BagTypeID != f.BagTypeID {
			continue
		}
		if f.CategoryID > 0 && (st.CategoryID == nil || *st.CategoryID != f.CategoryID) {
			continue
		}
		if f.ActiveOnly && !st.IsActive {
			continue
		}
		out = append(out, s.subtype(st))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) CreatePerson(_ context.Context, p *models.SortingPerson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.persons {
		if ex.PersonID == p.PersonID {
			return errors.Wrapf(models.ErrConflict, "person %s", p.PersonID)
		}
	}
	p.ID = s.id()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	c := *p
	s.persons[p.ID] = &c
	return nil
}

// InBagTx holds the store lock for the whole callback and rolls back the bag
// table when fn fails.
func (s *Store) InBagTx(ctx context.Context, fn func(tx storage.BagTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := make(map[int64]models.Bag, len(s.bags))
	for id, b := range s.bags {
		backup[id] = *b
	}
	nextID := s.nextID

	if err := fn(&bagTx{s: s}); err != nil {
		s.bags = make(map[int64]*models.Bag, len(backup))
		for id, b := range backup {
			b := b
			s.bags[id] = &b
		}
		s.nextID = nextID
		return err
	}
	return nil
}

type bagTx struct {
	s *Store
}

func (t *bagTx) ListSequentialBagIDs(context.Context) ([]string, error) {
	var out []string
	for _, b := range t.s.bags {
		if strings.HasPrefix(b.BagID, models.BagIDPrefix) {
			out = append(out, b.BagID)
		}
	}
	return out, nil
}

func (t *bagTx) BagIDExists(_ context.Context, bagID string) (bool, error) {
	for _, b := range t.s.bags {
		if b.BagID == bagID {
			return true, nil
		}
	}
	return false, nil
}

func (t *bagTx) GetSocket(_ context.Context, id int64) (*models.Socket, error) {
	return t.s.socket(id)
}

func (t *bagTx) GetBagType(_ context.Context, id int64) (*models.BagType, error) {
	bt, ok := t.s.bagTypes[id]
	if !ok {
		return nil, notFound("bag type")
	}
	c := *bt
	return &c, nil
}

func (t *bagTx) GetSubtype(_ context.Context, id int64) (*models.BagSubtype, error) {
	st, ok := t.s.subtypes[id]
	if !ok {
		return nil, notFound("subtype")
	}
	return t.s.subtype(st), nil
}

func (t *bagTx) InsertBag(_ context.Context, b *models.Bag) error {
	if _, ok := t.s.sockets[b.SocketID]; !ok {
		return models.Invalid("socket", "unknown socket")
	}
	if _, ok := t.s.bagTypes[b.BagTypeID]; !ok {
		return models.Invalid("bag_type", "unknown bag type")
	}
	if b.BagSubtypeID != nil {
		if _, ok := t.s.subtypes[*b.BagSubtypeID]; !ok {
			return models.Invalid("bag_subtype", "unknown subtype")
		}
	}
	for _, ex := range t.s.bags {
		if ex.BagID == b.BagID {
			return errors.Wrapf(models.ErrConflict, "bag_id %s", b.BagID)
		}
	}
	b.ID = t.s.id()
	c := *b
	t.s.bags[b.ID] = &c
	return nil
}

func (t *bagTx) LockLatestPending(_ context.Context, socketID int64, source models.BagSource, excludeID int64) (*models.Bag, error) {
	var latest *models.Bag
	for _, b := range t.s.bags {
		if b.SocketID != socketID || b.Source != source || b.Processed || b.ID == excludeID {
			continue
		}
		if latest == nil || b.ReceivedAt.After(latest.ReceivedAt) ||
			(b.ReceivedAt.Equal(latest.ReceivedAt) && b.ID > latest.ID) {
			latest = b
		}
	}
	if latest == nil {
		return nil, nil
	}
	return t.s.decorate(latest), nil
}

func (t *bagTx) UpdateBagProcessing(_ context.Context, b *models.Bag) error {
	cur, ok := t.s.bags[b.ID]
	if !ok {
		return notFound("bag")
	}
	cur.Processed = b.Processed
	cur.ProcessedAt = b.ProcessedAt
	cur.ProcessingTimeSeconds = b.ProcessingTimeSeconds
	cur.AutoProcessedByNextBag = b.AutoProcessedByNextBag
	cur.UpdatedAt = b.UpdatedAt
	return nil
}

// decorate returns a copy with the joined display fields filled in.
func (s *Store) decorate(b *models.Bag) *models.Bag {
	c := *b
	if so, ok := s.sockets[b.SocketID]; ok {
		c.SocketCode = so.SocketID
	}
	if t, ok := s.bagTypes[b.BagTypeID]; ok {
		c.BagTypeName = t.Name
	}
	if b.BagSubtypeID != nil {
		if st, ok := s.subtypes[*b.BagSubtypeID]; ok {
			c.BagSubtypeName = st.Name
		}
	}
	if b.PersonID != nil {
		if p, ok := s.persons[*b.PersonID]; ok {
			c.PersonName = p.Name
		}
	}
	return &c
}

func (s *Store) GetBag(_ context.Context, id int64) (*models.Bag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bags[id]
	if !ok {
		return nil, notFound("bag")
	}
	return s.decorate(b), nil
}

func (s *Store) GetBagByBagID(_ context.Context, bagID string) (*models.Bag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bags {
		if b.BagID == bagID {
			return s.decorate(b), nil
		}
	}
	return nil, notFound("bag")
}

func (s *Store) ListBags(_ context.Context, f models.BagFilter) ([]*models.Bag, error) {
	f.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Bag
	for _, b := range s.bags {
		switch f.Status {
		case models.BagStatusProcessed:
			if !b.Processed {
				continue
			}
		case models.BagStatusPending:
			if b.Processed {
				continue
			}
		}
		if f.SocketID > 0 && b.SocketID != f.SocketID {
			continue
		}
		if f.BagTypeID > 0 && b.BagTypeID != f.BagTypeID {
			continue
		}
		out = append(out, s.decorate(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset >= len(out) {
		return []*models.Bag{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ModifyBag(_ context.Context, id int64, fn func(b *models.Bag) error) (*models.Bag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bags[id]
	if !ok {
		return nil, notFound("bag")
	}
	work := s.decorate(cur)
	if err := fn(work); err != nil {
		return nil, err
	}
	stored := *work
	stored.SocketCode, stored.BagTypeName, stored.BagSubtypeName, stored.PersonName = "", "", "", ""
	s.bags[id] = &stored
	return s.decorate(&stored), nil
}

func (s *Store) SetBagsExtra(_ context.Context, ids []int64, extra bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if b, ok := s.bags[id]; ok {
			b.Extra = extra
			n++
		}
	}
	return n, nil
}

func (s *Store) SetBagsSource(_ context.Context, ids []int64, source models.BagSource) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if b, ok := s.bags[id]; ok {
			b.Source = source
			n++
		}
	}
	return n, nil
}

func (s *Store) DashboardStats(context.Context) (*models.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &models.DashboardStats{
		TotalBags:  len(s.bags),
		SortedBags: len(s.sortedBags),
		Personnel:  len(s.persons),
	}
	for _, so := range s.sockets {
		if so.IsActive {
			st.ActiveSockets++
		}
	}
	for _, b := range s.bags {
		if b.Processed {
			st.ProcessedBags++
		} else {
			st.PendingBags++
		}
	}
	return st, nil
}

func (s *Store) CreateSortedBag(_ context.Context, sb *models.SortedBag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bags[sb.BagID]; !ok {
		return models.Invalid("bag", "unknown bag")
	}
	for _, ex := range s.sortedBags {
		if ex.BagID == sb.BagID {
			return errors.Wrap(models.ErrConflict, "bag already has a sorted bag")
		}
	}
	sb.ID = s.id()
	c := *sb
	s.sortedBags[sb.ID] = &c
	return nil
}

func (s *Store) sortedBag(sb *models.SortedBag) *models.SortedBag {
	c := *sb
	if b, ok := s.bags[sb.BagID]; ok {
		c.BagCode = b.BagID
	}
	return &c
}

func (s *Store) GetSortedBag(_ context.Context, id int64) (*models.SortedBag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sb, ok := s.sortedBags[id]
	if !ok {
		return nil, notFound("sorted bag")
	}
	return s.sortedBag(sb), nil
}

func (s *Store) GetSortedBagByBag(_ context.Context, bagID int64) (*models.SortedBag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sb := range s.sortedBags {
		if sb.BagID == bagID {
			return s.sortedBag(sb), nil
		}
	}
	return nil, notFound("sorted bag")
}

func (s *Store) ListSortedBags(_ context.Context, f models.SortedBagFilter) ([]*models.SortedBag, error) {
	f.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SortedBag
	for _, sb := range s.sortedBags {
		if f.Destination != "" && sb.Destination != f.Destination {
			continue
		}
		if f.Status != "" && sb.Status != f.Status {
			continue
		}
		out = append(out, s.sortedBag(sb))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Offset >= len(out) {
		return []*models.SortedBag{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ModifySortedBag(_ context.Context, id int64, fn func(sb *models.SortedBag) error) (*models.SortedBag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sortedBags[id]
	if !ok {
		return nil, notFound("sorted bag")
	}
	return s.modifySortedBag(cur, fn)
}

func (s *Store) ModifySortedBagByTracking(_ context.Context, trackingNumber string, fn func(sb *models.SortedBag) error) (*models.SortedBag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur *models.SortedBag
	for _, sb := range s.sortedBags {
		if sb.TrackingNumber == trackingNumber && (cur == nil || sb.ID < cur.ID) {
			cur = sb
		}
	}
	if cur == nil {
		return nil, notFound("sorted bag")
	}
	return s.modifySortedBag(cur, fn)
}

func (s *Store) modifySortedBag(cur *models.SortedBag, fn func(sb *models.SortedBag) error) (*models.SortedBag, error) {
	work := s.sortedBag(cur)
	if err := fn(work); err != nil {
		return nil, err
	}
	stored := *work
	stored.BagCode = ""
	s.sortedBags[cur.ID] = &stored
	return s.sortedBag(&stored), nil
}
