package pgsorting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// bagCreateLockKey serializes bag creation through pg_advisory_xact_lock.
const bagCreateLockKey int64 = 0x534F5254

const bagColumns = `
  b.id, b.bag_id, b.socket_id, b.person_id, b.bag_type_id, b.bag_subtype_id,
  b.quality_grade, b.weight_kg, b.item_count, b.processed, b.extra, b.notes,
  b.bag_source, b.processing_time_seconds, b.auto_processed_by_next_bag,
  b.received_at, b.processed_at, b.updated_at,
  s.socket_id, bt.name, COALESCE(st.name, ''), COALESCE(p.name, '')
`

const bagFrom = `
FROM bags b
JOIN sockets s ON s.id = b.socket_id
JOIN bag_types bt ON bt.id = b.bag_type_id
LEFT JOIN bag_subtypes st ON st.id = b.bag_subtype_id
LEFT JOIN sorting_persons p ON p.id = b.person_id
`

func scanBag(row pgx.Row) (*models.Bag, error) {
	var (
		b      models.Bag
		grade  string
		source *string
	)
	if err := row.Scan(
		&b.ID, &b.BagID, &b.SocketID, &b.PersonID, &b.BagTypeID, &b.BagSubtypeID,
		&grade, &b.WeightKg, &b.ItemCount, &b.Processed, &b.Extra, &b.Notes,
		&source, &b.ProcessingTimeSeconds, &b.AutoProcessedByNextBag,
		&b.ReceivedAt, &b.ProcessedAt, &b.UpdatedAt,
		&b.SocketCode, &b.BagTypeName, &b.BagSubtypeName, &b.PersonName,
	); err != nil {
		return nil, err
	}
	b.QualityGrade = models.QualityGrade(grade)
	b.Source = models.BagSource(derefString(source))
	return &b, nil
}

// InBagTx runs fn in a transaction that holds the bag creation lock.
func (s *Storage) InBagTx(ctx context.Context, fn func(tx storage.BagTx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, bagCreateLockKey); err != nil {
			return errors.Wrap(err, "lock bag creation")
		}
		return fn(&bagTx{tx: tx})
	})
}

type bagTx struct {
	tx pgx.Tx
}

func (t *bagTx) ListSequentialBagIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT bag_id FROM bags WHERE bag_id ~ '^BAG_[0-9]+$'`)
	if err != nil {
		return nil, errors.Wrap(err, "select bag ids")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan bag id")
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (t *bagTx) BagIDExists(ctx context.Context, bagID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bags WHERE bag_id = $1)`, bagID).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check bag id")
	}
	return exists, nil
}

func (t *bagTx) GetSocket(ctx context.Context, id int64) (*models.Socket, error) {
	return getSocket(ctx, t.tx, id)
}

func (t *bagTx) GetBagType(ctx context.Context, id int64) (*models.BagType, error) {
	return getBagType(ctx, t.tx, id)
}

func (t *bagTx) GetSubtype(ctx context.Context, id int64) (*models.BagSubtype, error) {
	return getSubtype(ctx, t.tx, id)
}

func (t *bagTx) InsertBag(ctx context.Context, b *models.Bag) error {
	err := t.tx.QueryRow(ctx, `
INSERT INTO bags (
  bag_id, socket_id, person_id, bag_type_id, bag_subtype_id, quality_grade,
  weight_kg, item_count, processed, extra, notes, bag_source,
  processing_time_seconds, auto_processed_by_next_bag, received_at, processed_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
RETURNING id
`,
		b.BagID, b.SocketID, b.PersonID, b.BagTypeID, b.BagSubtypeID, string(b.QualityGrade),
		b.WeightKg, b.ItemCount, b.Processed, b.Extra, b.Notes, nullString(string(b.Source)),
		b.ProcessingTimeSeconds, b.AutoProcessedByNextBag, b.ReceivedAt, b.ProcessedAt, b.UpdatedAt,
	).Scan(&b.ID)
	return mapWriteError(err, "insert bag")
}

func (t *bagTx) LockLatestPending(ctx context.Context, socketID int64, source models.BagSource, excludeID int64) (*models.Bag, error) {
	b, err := scanBag(t.tx.QueryRow(ctx, `
SELECT `+bagColumns+bagFrom+`
WHERE b.socket_id = $1
  AND b.bag_source = $2
  AND NOT b.processed
  AND b.id <> $3
ORDER BY b.received_at DESC, b.id DESC
LIMIT 1
FOR UPDATE OF b
`, socketID, string(source), excludeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest pending bag")
	}
	return b, nil
}

func (t *bagTx) UpdateBagProcessing(ctx context.Context, b *models.Bag) error {
	_, err := t.tx.Exec(ctx, `
UPDATE bags
SET processed = $2,
    processed_at = $3,
    processing_time_seconds = $4,
    auto_processed_by_next_bag = $5,
    updated_at = $6
WHERE id = $1
`, b.ID, b.Processed, b.ProcessedAt, b.ProcessingTimeSeconds, b.AutoProcessedByNextBag, b.UpdatedAt)
	return errors.Wrap(err, "update bag processing")
}

func (s *Storage) GetBag(ctx context.Context, id int64) (*models.Bag, error) {
	b, err := scanBag(s.db.QueryRow(ctx, `SELECT `+bagColumns+bagFrom+` WHERE b.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "select bag")
	}
	return b, nil
}

func (s *Storage) GetBagByBagID(ctx context.Context, bagID string) (*models.Bag, error) {
	b, err := scanBag(s.db.QueryRow(ctx, `SELECT `+bagColumns+bagFrom+` WHERE b.bag_id = $1`, bagID))
	if err != nil {
		return nil, mapError(err, "select bag by bag_id")
	}
	return b, nil
}

// ListBags returns bags newest first.
func (s *Storage) ListBags(ctx context.Context, f models.BagFilter) ([]*models.Bag, error) {
	f.Normalize()
	where := []string{"TRUE"}
	var args []any
	switch f.Status {
	case models.BagStatusProcessed:
		where = append(where, "b.processed")
	case models.BagStatusPending:
		where = append(where, "NOT b.processed")
	}
	if f.SocketID > 0 {
		args = append(args, f.SocketID)
		where = append(where, fmt.Sprintf("b.socket_id = $%d", len(args)))
	}
	if f.BagTypeID > 0 {
		args = append(args, f.BagTypeID)
		where = append(where, fmt.Sprintf("b.bag_type_id = $%d", len(args)))
	}
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(ctx, `
SELECT `+bagColumns+bagFrom+`
WHERE `+strings.Join(where, " AND ")+`
ORDER BY b.received_at DESC, b.id DESC
`+fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, errors.Wrap(err, "select bags")
	}
	defer rows.Close()

	var out []*models.Bag
	for rows.Next() {
		b, err := scanBag(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan bag")
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ModifyBag locks the bag row, applies fn and writes back the editable fields.
func (s *Storage) ModifyBag(ctx context.Context, id int64, fn func(b *models.Bag) error) (*models.Bag, error) {
	var out *models.Bag
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		b, err := scanBag(tx.QueryRow(ctx, `SELECT `+bagColumns+bagFrom+` WHERE b.id = $1 FOR UPDATE OF b`, id))
		if err != nil {
			return mapError(err, "select bag for update")
		}
		if err := fn(b); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE bags
SET person_id = $2, bag_subtype_id = $3, quality_grade = $4, weight_kg = $5,
    item_count = $6, processed = $7, extra = $8, notes = $9, bag_source = $10,
    processed_at = $11, updated_at = $12
WHERE id = $1
`, b.ID, b.PersonID, b.BagSubtypeID, string(b.QualityGrade), b.WeightKg,
			b.ItemCount, b.Processed, b.Extra, b.Notes, nullString(string(b.Source)),
			b.ProcessedAt, b.UpdatedAt)
		if err != nil {
			return mapWriteError(err, "update bag")
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Storage) SetBagsExtra(ctx context.Context, ids []int64, extra bool) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE bags SET extra = $2, updated_at = $3 WHERE id = ANY($1)`, ids, extra, time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "bulk set extra")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) SetBagsSource(ctx context.Context, ids []int64, source models.BagSource) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE bags SET bag_source = $2, updated_at = $3 WHERE id = ANY($1)`, ids, nullString(string(source)), time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "bulk set bag source")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	var st models.DashboardStats
	err := s.db.QueryRow(ctx, `
SELECT
  (SELECT count(*) FROM sockets WHERE is_active),
  (SELECT count(*) FROM bags),
  (SELECT count(*) FROM bags WHERE processed),
  (SELECT count(*) FROM bags WHERE NOT processed),
  (SELECT count(*) FROM sorted_bags),
  (SELECT count(*) FROM sorting_persons)
`).Scan(&st.ActiveSockets, &st.TotalBags, &st.ProcessedBags, &st.PendingBags, &st.SortedBags, &st.Personnel)
	if err != nil {
		return nil, errors.Wrap(err, "select dashboard stats")
	}
	return &st, nil
}
