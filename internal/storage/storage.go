package storage

import (
	"context"

	"github.com/BearBump/SortBox/internal/models"
)

// BagTx is the bag work done inside a single transaction: id generation,
// insert and the auto-processing of the previous pending bag.
type BagTx interface {
	// ListSequentialBagIDs returns ids shaped like BAG_<digits>.
	ListSequentialBagIDs(ctx context.Context) ([]string, error)
	BagIDExists(ctx context.Context, bagID string) (bool, error)
	GetSocket(ctx context.Context, id int64) (*models.Socket, error)
	GetBagType(ctx context.Context, id int64) (*models.BagType, error)
	GetSubtype(ctx context.Context, id int64) (*models.BagSubtype, error)
	InsertBag(ctx context.Context, b *models.Bag) error
	// LockLatestPending returns the most recently received unprocessed bag at the
	// socket with the given source, row-locked until commit. Nil when there is none.
	LockLatestPending(ctx context.Context, socketID int64, source models.BagSource, excludeID int64) (*models.Bag, error)
	UpdateBagProcessing(ctx context.Context, b *models.Bag) error
}
