package pgsorting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const socketColumns = `
  s.id, s.socket_id, s.socket_name, s.socket_color, s.location,
  s.is_active, s.display_order, s.supports_source, s.created_at,
  COALESCE((SELECT array_agg(u.username ORDER BY u.username) FROM socket_users u WHERE u.socket_id = s.id), '{}'),
  (SELECT count(*) FROM bags b WHERE b.socket_id = s.id)
`

func scanSocket(row pgx.Row) (*models.Socket, error) {
	var so models.Socket
	if err := row.Scan(
		&so.ID, &so.SocketID, &so.Name, &so.Color, &so.Location,
		&so.IsActive, &so.Order, &so.SupportsSource, &so.CreatedAt,
		&so.Users, &so.BagCount,
	); err != nil {
		return nil, err
	}
	return &so, nil
}

func getSocket(ctx context.Context, q querier, id int64) (*models.Socket, error) {
	so, err := scanSocket(q.QueryRow(ctx, `SELECT `+socketColumns+` FROM sockets s WHERE s.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "select socket")
	}
	return so, nil
}

func (s *Storage) GetSocket(ctx context.Context, id int64) (*models.Socket, error) {
	return getSocket(ctx, s.db, id)
}

func (s *Storage) GetSocketByCode(ctx context.Context, code string) (*models.Socket, error) {
	so, err := scanSocket(s.db.QueryRow(ctx, `SELECT `+socketColumns+` FROM sockets s WHERE s.socket_id = $1`, code))
	if err != nil {
		return nil, mapError(err, "select socket by code")
	}
	return so, nil
}

func (s *Storage) ListSockets(ctx context.Context, activeOnly bool) ([]*models.Socket, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+socketColumns+`
FROM sockets s
WHERE ($1 = FALSE OR s.is_active)
ORDER BY s.display_order, s.socket_id
`, activeOnly)
	if err != nil {
		return nil, errors.Wrap(err, "select sockets")
	}
	defer rows.Close()

	var out []*models.Socket
	for rows.Next() {
		so, err := scanSocket(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan socket")
		}
		out = append(out, so)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CreateSocket(ctx context.Context, so *models.Socket) error {
	so.CreatedAt = time.Now().UTC()
	return s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
INSERT INTO sockets (socket_id, socket_name, socket_color, location, is_active, display_order, supports_source, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`, so.SocketID, so.Name, so.Color, so.Location, so.IsActive, so.Order, so.SupportsSource, so.CreatedAt).Scan(&so.ID)
		if err != nil {
			return mapWriteError(err, "insert socket")
		}
		return replaceSocketUsers(ctx, tx, so.ID, so.Users)
	})
}

func (s *Storage) UpdateSocket(ctx context.Context, so *models.Socket) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE sockets
SET socket_id = $2, socket_name = $3, socket_color = $4, location = $5,
    is_active = $6, display_order = $7, supports_source = $8
WHERE id = $1
`, so.ID, so.SocketID, so.Name, so.Color, so.Location, so.IsActive, so.Order, so.SupportsSource)
		if err != nil {
			return mapWriteError(err, "update socket")
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrap(models.ErrNotFound, "update socket")
		}
		return replaceSocketUsers(ctx, tx, so.ID, so.Users)
	})
}

func replaceSocketUsers(ctx context.Context, tx pgx.Tx, socketID int64, users []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM socket_users WHERE socket_id = $1`, socketID); err != nil {
		return errors.Wrap(err, "clear socket users")
	}
	for _, u := range users {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		_, err := tx.Exec(ctx, `
INSERT INTO socket_users (socket_id, username) VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, socketID, u)
		if err != nil {
			return errors.Wrap(err, "insert socket user")
		}
	}
	return nil
}

// SocketImpact counts what deleting the socket would cascade to.
func (s *Storage) SocketImpact(ctx context.Context, id int64) (models.SocketImpact, error) {
	var im models.SocketImpact
	err := s.db.QueryRow(ctx, `
SELECT
  (SELECT count(*) FROM bag_types WHERE socket_id = $1),
  (SELECT count(*) FROM bag_subtypes st JOIN bag_types bt ON bt.id = st.bag_type_id WHERE bt.socket_id = $1),
  (SELECT count(*) FROM bags WHERE socket_id = $1),
  (SELECT count(*) FROM sorted_bags sb JOIN bags b ON b.id = sb.bag_id WHERE b.socket_id = $1)
`, id).Scan(&im.BagTypes, &im.Subtypes, &im.Bags, &im.SortedBags)
	if err != nil {
		return im, errors.Wrap(err, "count socket impact")
	}
	return im, nil
}

func (s *Storage) DeleteSocket(ctx context.Context, id int64) error {
	return deleteByID(ctx, s.db, "sockets", id)
}

func deleteByID(ctx context.Context, q querier, table string, id int64) error {
	tag, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return mapError(err, "delete from "+table)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "delete from "+table)
	}
	return nil
}

func (s *Storage) CreateCategory(ctx context.Context, c *models.BagTypeCategory) error {
	err := s.db.QueryRow(ctx, `
INSERT INTO bag_type_categories (name, color, icon, display_order, is_active)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, c.Name, c.Color, c.Icon, c.Order, c.IsActive).Scan(&c.ID)
	return mapWriteError(err, "insert category")
}

func (s *Storage) UpdateCategory(ctx context.Context, c *models.BagTypeCategory) error {
	tag, err := s.db.Exec(ctx, `
UPDATE bag_type_categories
SET name = $2, color = $3, icon = $4, display_order = $5, is_active = $6
WHERE id = $1
`, c.ID, c.Name, c.Color, c.Icon, c.Order, c.IsActive)
	if err != nil {
		return mapWriteError(err, "update category")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "update category")
	}
	return nil
}

func (s *Storage) ListCategories(ctx context.Context, activeOnly bool) ([]*models.BagTypeCategory, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, name, color, icon, display_order, is_active
FROM bag_type_categories
WHERE ($1 = FALSE OR is_active)
ORDER BY display_order, name
`, activeOnly)
	if err != nil {
		return nil, errors.Wrap(err, "select categories")
	}
	defer rows.Close()

	var out []*models.BagTypeCategory
	for rows.Next() {
		var c models.BagTypeCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Icon, &c.Order, &c.IsActive); err != nil {
			return nil, errors.Wrap(err, "scan category")
		}
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) DeleteCategory(ctx context.Context, id int64) error {
	return deleteByID(ctx, s.db, "bag_type_categories", id)
}

const bagTypeColumns = `
  id, name, code, description, color, parameters, display_order,
  bag_source, is_active, socket_id, created_at
`

func scanBagType(row pgx.Row) (*models.BagType, error) {
	var (
		t      models.BagType
		params []string
		source string
	)
	if err := row.Scan(
		&t.ID, &t.Name, &t.Code, &t.Description, &t.Color, &params, &t.Order,
		&source, &t.IsActive, &t.SocketID, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	ps, err := models.ParseParameterSet(params)
	if err != nil {
		return nil, err
	}
	t.Parameters = ps
	t.Source = models.BagSource(source)
	return &t, nil
}

func getBagType(ctx context.Context, q querier, id int64) (*models.BagType, error) {
	t, err := scanBagType(q.QueryRow(ctx, `SELECT `+bagTypeColumns+` FROM bag_types WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "select bag type")
	}
	return t, nil
}

func (s *Storage) GetBagType(ctx context.Context, id int64) (*models.BagType, error) {
	return getBagType(ctx, s.db, id)
}

func (s *Storage) ListBagTypes(ctx context.Context, f models.BagTypeFilter) ([]*models.BagType, error) {
	where := []string{"TRUE"}
	var args []any
	if f.SocketID > 0 {
		args = append(args, f.SocketID)
		where = append(where, fmt.Sprintf("socket_id = $%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, string(f.Source))
		where = append(where, fmt.Sprintf("bag_source = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}

	rows, err := s.db.Query(ctx, `
SELECT `+bagTypeColumns+`
FROM bag_types
WHERE `+strings.Join(where, " AND ")+`
ORDER BY display_order, name
`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select bag types")
	}
	defer rows.Close()

	var out []*models.BagType
	for rows.Next() {
		t, err := scanBagType(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan bag type")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CreateBagType(ctx context.Context, t *models.BagType) error {
	t.CreatedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO bag_types (name, code, description, color, parameters, display_order, bag_source, is_active, socket_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id
`, t.Name, t.Code, t.Description, t.Color, t.Parameters.Strings(), t.Order, string(t.Source), t.IsActive, t.SocketID, t.CreatedAt).Scan(&t.ID)
	return mapWriteError(err, "insert bag type")
}

func (s *Storage) UpdateBagType(ctx context.Context, t *models.BagType) error {
	tag, err := s.db.Exec(ctx, `
UPDATE bag_types
SET name = $2, code = $3, description = $4, color = $5, parameters = $6,
    display_order = $7, bag_source = $8, is_active = $9, socket_id = $10
WHERE id = $1
`, t.ID, t.Name, t.Code, t.Description, t.Color, t.Parameters.Strings(), t.Order, string(t.Source), t.IsActive, t.SocketID)
	if err != nil {
		return mapWriteError(err, "update bag type")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "update bag type")
	}
	return nil
}

// DeleteBagType fails with models.ErrReferenced while any bag uses the type.
func (s *Storage) DeleteBagType(ctx context.Context, id int64) error {
	return deleteByID(ctx, s.db, "bag_types", id)
}

func (s *Storage) SetBagTypesSource(ctx context.Context, ids []int64, source models.BagSource) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE bag_types SET bag_source = $2 WHERE id = ANY($1)`, ids, string(source))
	if err != nil {
		return 0, mapWriteError(err, "bulk set bag source")
	}
	return tag.RowsAffected(), nil
}

const subtypeColumns = `
  st.id, st.bag_type_id, st.category_id, st.name, st.code, st.description,
  st.display_order, st.color, st.is_active, st.created_at,
  c.name, c.color, c.icon, c.display_order, c.is_active
`

func scanSubtype(row pgx.Row) (*models.BagSubtype, error) {
	var (
		st        models.BagSubtype
		catName   *string
		catColor  *string
		catIcon   *string
		catOrder  *int
		catActive *bool
	)
	if err := row.Scan(
		&st.ID, &st.BagTypeID, &st.CategoryID, &st.Name, &st.Code, &st.Description,
		&st.Order, &st.Color, &st.IsActive, &st.CreatedAt,
		&catName, &catColor, &catIcon, &catOrder, &catActive,
	); err != nil {
		return nil, err
	}
	if st.CategoryID != nil && catName != nil {
		st.Category = &models.BagTypeCategory{
			ID:    *st.CategoryID,
			Name:  *catName,
			Color: derefString(catColor),
			Icon:  derefString(catIcon),
		}
		if catOrder != nil {
			st.Category.Order = *catOrder
		}
		if catActive != nil {
			st.Category.IsActive = *catActive
		}
	}
	return &st, nil
}

func (s *Storage) GetSubtype(ctx context.Context, id int64) (*models.BagSubtype, error) {
	return getSubtype(ctx, s.db, id)
}

func getSubtype(ctx context.Context, q querier, id int64) (*models.BagSubtype, error) {
	st, err := scanSubtype(q.QueryRow(ctx, `
SELECT `+subtypeColumns+`
FROM bag_subtypes st
LEFT JOIN bag_type_categories c ON c.id = st.category_id
WHERE st.id = $1
`, id))
	if err != nil {
		return nil, mapError(err, "select subtype")
	}
	return st, nil
}

func (s *Storage) ListSubtypes(ctx context.Context, f models.SubtypeFilter) ([]*models.BagSubtype, error) {
	where := []string{"TRUE"}
	var args []any
	if f.BagTypeID > 0 {
		args = append(args, f.BagTypeID)
		where = append(where, fmt.Sprintf("st.bag_type_id = $%d", len(args)))
	}
	if f.CategoryID > 0 {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("st.category_id = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "st.is_active")
	}

	rows, err := s.db.Query(ctx, `
SELECT `+subtypeColumns+`
FROM bag_subtypes st
LEFT JOIN bag_type_categories c ON c.id = st.category_id
WHERE `+strings.Join(where, " AND ")+`
ORDER BY st.display_order, st.name
`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select subtypes")
	}
	defer rows.Close()

	var out []*models.BagSubtype
	for rows.Next() {
		st, err := scanSubtype(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan subtype")
		}
		out = append(out, st)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CreateSubtype(ctx context.Context, st *models.BagSubtype) error {
	st.CreatedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO bag_subtypes (bag_type_id, category_id, name, code, description, display_order, color, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id
`, st.BagTypeID, st.CategoryID, st.Name, st.Code, st.Description, st.Order, st.Color, st.IsActive, st.CreatedAt).Scan(&st.ID)
	return mapWriteError(err, "insert subtype")
}

func (s *Storage) UpdateSubtype(ctx context.Context, st *models.BagSubtype) error {
	tag, err := s.db.Exec(ctx, `
UPDATE bag_subtypes
SET bag_type_id = $2, category_id = $3, name = $4, code = $5, description = $6,
    display_order = $7, color = $8, is_active = $9
WHERE id = $1
`, st.ID, st.BagTypeID, st.CategoryID, st.Name, st.Code, st.Description, st.Order, st.Color, st.IsActive)
	if err != nil {
		return mapWriteError(err, "update subtype")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "update subtype")
	}
	return nil
}

func (s *Storage) DeleteSubtype(ctx context.Context, id int64) error {
	return deleteByID(ctx, s.db, "bag_subtypes", id)
}

func (s *Storage) ClearSubtypeCategory(ctx context.Context, ids []int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE bag_subtypes SET category_id = NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "bulk clear subtype category")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) CreatePerson(ctx context.Context, p *models.SortingPerson) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	err := s.db.QueryRow(ctx, `
INSERT INTO sorting_persons (name, person_id, person_color, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
RETURNING id
`, p.Name, p.PersonID, p.Color, now).Scan(&p.ID)
	return mapWriteError(err, "insert person")
}

func (s *Storage) ListPersons(ctx context.Context) ([]*models.SortingPerson, error) {
	rows, err := s.db.Query(ctx, `
SELECT p.id, p.name, p.person_id, p.person_color, p.created_at, p.updated_at,
  (SELECT count(*) FROM bags b WHERE b.person_id = p.id)
FROM sorting_persons p
ORDER BY p.name
`)
	if err != nil {
		return nil, errors.Wrap(err, "select persons")
	}
	defer rows.Close()

	var out []*models.SortingPerson
	for rows.Next() {
		var p models.SortingPerson
		if err := rows.Scan(&p.ID, &p.Name, &p.PersonID, &p.Color, &p.CreatedAt, &p.UpdatedAt, &p.BagsSorted); err != nil {
			return nil, errors.Wrap(err, "scan person")
		}
		out = append(out, &p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) DeletePerson(ctx context.Context, id int64) error {
	return deleteByID(ctx, s.db, "sorting_persons", id)
}

var orderTables = map[models.OrderKind]string{
	models.OrderKindSocket:     "sockets",
	models.OrderKindBagType:    "bag_types",
	models.OrderKindBagSubtype: "bag_subtypes",
}

// Reorder sets display_order = position+1 for each id, in one transaction.
func (s *Storage) Reorder(ctx context.Context, kind models.OrderKind, ids []int64) error {
	table, ok := orderTables[kind]
	if !ok {
		return models.Invalid("type", "unknown order kind")
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for i, id := range ids {
			_, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET display_order = $1 WHERE id = $2`, table), i+1, id)
			if err != nil {
				return mapWriteError(err, "reorder "+table)
			}
		}
		return nil
	})
}
