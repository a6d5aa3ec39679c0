package pgsorting

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const sortedBagColumns = `
  sb.id, sb.bag_id, sb.destination, sb.status, sb.final_quality_check,
  sb.packaging_notes, sb.tracking_number, sb.shipped_at, sb.delivered_at,
  sb.created_at, sb.updated_at, b.bag_id
`

const sortedBagFrom = `
FROM sorted_bags sb
JOIN bags b ON b.id = sb.bag_id
`

func scanSortedBag(row pgx.Row) (*models.SortedBag, error) {
	var (
		sb          models.SortedBag
		destination string
		status      string
	)
	if err := row.Scan(
		&sb.ID, &sb.BagID, &destination, &status, &sb.FinalQualityCheck,
		&sb.PackagingNotes, &sb.TrackingNumber, &sb.ShippedAt, &sb.DeliveredAt,
		&sb.CreatedAt, &sb.UpdatedAt, &sb.BagCode,
	); err != nil {
		return nil, err
	}
	sb.Destination = models.Destination(destination)
	sb.Status = models.ShipmentStatus(status)
	return &sb, nil
}

// CreateSortedBag fails with models.ErrConflict when the bag already has one.
func (s *Storage) CreateSortedBag(ctx context.Context, sb *models.SortedBag) error {
	err := s.db.QueryRow(ctx, `
INSERT INTO sorted_bags (
  bag_id, destination, status, final_quality_check, packaging_notes,
  tracking_number, shipped_at, delivered_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id
`, sb.BagID, string(sb.Destination), string(sb.Status), sb.FinalQualityCheck, sb.PackagingNotes,
		sb.TrackingNumber, sb.ShippedAt, sb.DeliveredAt, sb.CreatedAt, sb.UpdatedAt).Scan(&sb.ID)
	return mapWriteError(err, "insert sorted bag")
}

func (s *Storage) GetSortedBag(ctx context.Context, id int64) (*models.SortedBag, error) {
	sb, err := scanSortedBag(s.db.QueryRow(ctx, `SELECT `+sortedBagColumns+sortedBagFrom+` WHERE sb.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "select sorted bag")
	}
	return sb, nil
}

func (s *Storage) GetSortedBagByBag(ctx context.Context, bagID int64) (*models.SortedBag, error) {
	sb, err := scanSortedBag(s.db.QueryRow(ctx, `SELECT `+sortedBagColumns+sortedBagFrom+` WHERE sb.bag_id = $1`, bagID))
	if err != nil {
		return nil, mapError(err, "select sorted bag by bag")
	}
	return sb, nil
}

func (s *Storage) ListSortedBags(ctx context.Context, f models.SortedBagFilter) ([]*models.SortedBag, error) {
	f.Normalize()
	where := []string{"TRUE"}
	var args []any
	if f.Destination != "" {
		args = append(args, string(f.Destination))
		where = append(where, fmt.Sprintf("sb.destination = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("sb.status = $%d", len(args)))
	}
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(ctx, `
SELECT `+sortedBagColumns+sortedBagFrom+`
WHERE `+strings.Join(where, " AND ")+`
ORDER BY sb.created_at DESC, sb.id DESC
`+fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, errors.Wrap(err, "select sorted bags")
	}
	defer rows.Close()

	var out []*models.SortedBag
	for rows.Next() {
		sb, err := scanSortedBag(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan sorted bag")
		}
		out = append(out, sb)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ModifySortedBag locks the row, applies fn and persists the result.
func (s *Storage) ModifySortedBag(ctx context.Context, id int64, fn func(sb *models.SortedBag) error) (*models.SortedBag, error) {
	return s.modifySortedBag(ctx, `sb.id = $1`, id, fn)
}

// ModifySortedBagByTracking is ModifySortedBag keyed by tracking number.
func (s *Storage) ModifySortedBagByTracking(ctx context.Context, trackingNumber string, fn func(sb *models.SortedBag) error) (*models.SortedBag, error) {
	return s.modifySortedBag(ctx, `sb.tracking_number = $1`, trackingNumber, fn)
}

func (s *Storage) modifySortedBag(ctx context.Context, cond string, arg any, fn func(sb *models.SortedBag) error) (*models.SortedBag, error) {
	var out *models.SortedBag
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		sb, err := scanSortedBag(tx.QueryRow(ctx, `
SELECT `+sortedBagColumns+sortedBagFrom+`
WHERE `+cond+`
ORDER BY sb.id
LIMIT 1
FOR UPDATE OF sb
`, arg))
		if err != nil {
			return mapError(err, "select sorted bag for update")
		}
		if err := fn(sb); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE sorted_bags
SET destination = $2, status = $3, final_quality_check = $4, packaging_notes = $5,
    tracking_number = $6, shipped_at = $7, delivered_at = $8, updated_at = $9
WHERE id = $1
`, sb.ID, string(sb.Destination), string(sb.Status), sb.FinalQualityCheck, sb.PackagingNotes,
			sb.TrackingNumber, sb.ShippedAt, sb.DeliveredAt, sb.UpdatedAt)
		if err != nil {
			return mapWriteError(err, "update sorted bag")
		}
		out = sb
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
