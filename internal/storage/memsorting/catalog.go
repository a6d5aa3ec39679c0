package memsorting

import (
	"context"
	"sort"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/pkg/errors"
)

func (s *Store) ListSockets(_ context.Context, activeOnly bool) ([]*models.Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Socket
	for id, so := range s.sockets {
		if activeOnly && !so.IsActive {
			continue
		}
		c, _ := s.socket(id)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].SocketID < out[j].SocketID
	})
	return out, nil
}

func (s *Store) UpdateSocket(_ context.Context, so *models.Socket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sockets[so.ID]
	if !ok {
		return notFound("update socket")
	}
	for _, ex := range s.sockets {
		if ex.ID != so.ID && ex.SocketID == so.SocketID {
			return errors.Wrapf(models.ErrConflict, "socket %s", so.SocketID)
		}
	}
	c := *so
	c.CreatedAt = cur.CreatedAt
	s.sockets[so.ID] = &c
	return nil
}

func (s *Store) SocketImpact(_ context.Context, id int64) (models.SocketImpact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var im models.SocketImpact
	types := map[int64]bool{}
	for _, t := range s.bagTypes {
		if t.SocketID == id {
			types[t.ID] = true
			im.BagTypes++
		}
	}
	for _, st := range s.subtypes {
		if types[st.BagTypeID] {
			im.Subtypes++
		}
	}
	bags := map[int64]bool{}
	for _, b := range s.bags {
		if b.SocketID == id {
			bags[b.ID] = true
			im.Bags++
		}
	}
	for _, sb := range s.sortedBags {
		if bags[sb.BagID] {
			im.SortedBags++
		}
	}
	return im, nil
}

// DeleteSocket cascades to bag types, subtypes, bags and sorted bags. Bags of
// other sockets that use one of its bag types block the delete.
func (s *Store) DeleteSocket(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sockets[id]; !ok {
		return notFound("delete from sockets")
	}
	types := map[int64]bool{}
	for _, t := range s.bagTypes {
		if t.SocketID == id {
			types[t.ID] = true
		}
	}
	for _, b := range s.bags {
		if b.SocketID != id && types[b.BagTypeID] {
			return errors.Wrap(models.ErrReferenced, "bag type is used by bags of another socket")
		}
	}

	for bid, b := range s.bags {
		if b.SocketID == id {
			s.dropBag(bid)
		}
	}
	for tid := range types {
		delete(s.bagTypes, tid)
	}
	for sid, st := range s.subtypes {
		if types[st.BagTypeID] {
			s.dropSubtype(sid)
		}
	}
	delete(s.sockets, id)
	return nil
}

func (s *Store) dropBag(id int64) {
	delete(s.bags, id)
	for sid, sb := range s.sortedBags {
		if sb.BagID == id {
			delete(s.sortedBags, sid)
		}
	}
}

func (s *Store) UpdateCategory(_ context.Context, c *models.BagTypeCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; !ok {
		return notFound("update category")
	}
	for _, ex := range s.categories {
		if ex.ID != c.ID && ex.Name == c.Name {
			return errors.Wrapf(models.ErrConflict, "category %s", c.Name)
		}
	}
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *Store) ListCategories(_ context.Context, activeOnly bool) ([]*models.BagTypeCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BagTypeCategory
	for _, c := range s.categories {
		if activeOnly && !c.IsActive {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return notFound("delete from bag_type_categories")
	}
	delete(s.categories, id)
	for _, st := range s.subtypes {
		if st.CategoryID != nil && *st.CategoryID == id {
			st.CategoryID = nil
		}
	}
	return nil
}

func (s *Store) UpdateBagType(_ context.Context, t *models.BagType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bagTypes[t.ID]
	if !ok {
		return notFound("update bag type")
	}
	if _, ok := s.sockets[t.SocketID]; !ok {
		return models.Invalid("socket", "unknown socket")
	}
	for _, ex := range s.bagTypes {
		if ex.ID != t.ID && (ex.Name == t.Name || ex.Code == t.Code) {
			return errors.Wrapf(models.ErrConflict, "bag type %s", t.Code)
		}
	}
	c := *t
	c.CreatedAt = cur.CreatedAt
	s.bagTypes[t.ID] = &c
	return nil
}

func (s *Store) SetBagTypesSource(_ context.Context, ids []int64, source models.BagSource) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if t, ok := s.bagTypes[id]; ok {
			t.Source = source
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateSubtype(_ context.Context, st *models.BagSubtype) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subtypes[st.ID]
	if !ok {
		return notFound("update subtype")
	}
	if _, ok := s.bagTypes[st.BagTypeID]; !ok {
		return models.Invalid("bag_type", "unknown bag type")
	}
	if st.CategoryID != nil {
		if _, ok := s.categories[*st.CategoryID]; !ok {
			return models.Invalid("category", "unknown category")
		}
	}
	for _, ex := range s.subtypes {
		if ex.ID != st.ID && ex.BagTypeID == st.BagTypeID && ex.Name == st.Name {
			return errors.Wrapf(models.ErrConflict, "subtype %s", st.Name)
		}
	}
	c := *st
	c.Category = nil
	c.CreatedAt = cur.CreatedAt
	s.subtypes[st.ID] = &c
	return nil
}

func (s *Store) DeleteSubtype(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subtypes[id]; !ok {
		return notFound("delete from bag_subtypes")
	}
	s.dropSubtype(id)
	return nil
}

func (s *Store) ClearSubtypeCategory(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if st, ok := s.subtypes[id]; ok {
			st.CategoryID = nil
			n++
		}
	}
	return n, nil
}

func (s *Store) ListPersons(context.Context) ([]*models.SortingPerson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SortingPerson
	for _, p := range s.persons {
		c := *p
		c.BagsSorted = 0
		for _, b := range s.bags {
			if b.PersonID != nil && *b.PersonID == p.ID {
				c.BagsSorted++
			}
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeletePerson(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[id]; !ok {
		return notFound("delete from sorting_persons")
	}
	delete(s.persons, id)
	for _, b := range s.bags {
		if b.PersonID != nil && *b.PersonID == id {
			b.PersonID = nil
		}
	}
	return nil
}

func (s *Store) Reorder(_ context.Context, kind models.OrderKind, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		order := i + 1
		switch kind {
		case models.OrderKindSocket:
			if so, ok := s.sockets[id]; ok {
				so.Order = order
			}
		case models.OrderKindBagType:
			if t, ok := s.bagTypes[id]; ok {
				t.Order = order
			}
		case models.OrderKindBagSubtype:
			if st, ok := s.subtypes[id]; ok {
				st.Order = order
			}
		default:
			return models.Invalid("type", "unknown order kind")
		}
	}
	return nil
}
