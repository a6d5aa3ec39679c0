package sortedbags

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/SortBox/internal/broker/messages"
	"github.com/BearBump/SortBox/internal/metrics"
	"github.com/BearBump/SortBox/internal/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Repository interface {
	GetBag(ctx context.Context, id int64) (*models.Bag, error)
	CreateSortedBag(ctx context.Context, sb *models.SortedBag) error
	GetSortedBag(ctx context.Context, id int64) (*models.SortedBag, error)
	GetSortedBagByBag(ctx context.Context, bagID int64) (*models.SortedBag, error)
	ListSortedBags(ctx context.Context, f models.SortedBagFilter) ([]*models.SortedBag, error)
	ModifySortedBag(ctx context.Context, id int64, fn func(sb *models.SortedBag) error) (*models.SortedBag, error)
	ModifySortedBagByTracking(ctx context.Context, trackingNumber string, fn func(sb *models.SortedBag) error) (*models.SortedBag, error)
}

type Service struct {
	repo    Repository
	metrics *metrics.Sorting
	log     zerolog.Logger
	now     func() time.Time
}

func New(repo Repository, m *metrics.Sorting, log zerolog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:    repo,
		metrics: m,
		log:     log.With().Str("component", "sortedbags").Logger(),
		now:     now,
	}
}

// Create records the shipment of a bag. A bag has at most one sorted bag;
// a second create is a conflict, never an overwrite.
func (s *Service) Create(ctx context.Context, in models.SortedBagInput) (*models.SortedBag, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	bag, err := s.repo.GetBag(ctx, in.BagID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Invalid("bag", "unknown bag")
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetSortedBagByBag(ctx, in.BagID); err == nil {
		return nil, errors.Wrapf(models.ErrConflict, "bag %s already has a sorted bag", bag.BagID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	sb := in.NewSortedBag(s.now())
	if err := s.repo.CreateSortedBag(ctx, sb); err != nil {
		return nil, err
	}
	sb.BagCode = bag.BagID
	s.metrics.SortedBagSaved(string(sb.Status))
	s.log.Info().Str("bag_id", bag.BagID).Str("status", string(sb.Status)).Msg("sorted bag created")
	return sb, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.SortedBag, error) {
	return s.repo.GetSortedBag(ctx, id)
}

func (s *Service) GetByBag(ctx context.Context, bagID int64) (*models.SortedBag, error) {
	return s.repo.GetSortedBagByBag(ctx, bagID)
}

func (s *Service) List(ctx context.Context, f models.SortedBagFilter) ([]*models.SortedBag, error) {
	if f.Destination != "" && !f.Destination.IsValid() {
		return nil, models.Invalid("destination", "unknown destination")
	}
	if f.Status != "" && !f.Status.IsValid() {
		return nil, models.Invalid("status", "unknown status")
	}
	f.Normalize()
	return s.repo.ListSortedBags(ctx, f)
}

// Update applies a partial edit. Status labels may move in any direction;
// the shipped and delivered stamps are set once and kept.
func (s *Service) Update(ctx context.Context, id int64, upd models.SortedBagUpdate) (*models.SortedBag, error) {
	now := s.now()
	sb, err := s.repo.ModifySortedBag(ctx, id, func(sb *models.SortedBag) error {
		return upd.Apply(sb, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SortedBagSaved(string(sb.Status))
	return sb, nil
}

// ApplyShipmentUpdate moves the sorted bag with the given tracking number to
// the reported status. Unknown tracking numbers are skipped.
func (s *Service) ApplyShipmentUpdate(ctx context.Context, msg messages.ShipmentStatusUpdated) error {
	tn := strings.TrimSpace(msg.TrackingNumber)
	if tn == "" {
		s.metrics.ShipmentUpdate("invalid")
		return models.Invalid("tracking_number", "is required")
	}
	status := models.ShipmentStatus(strings.ToLower(strings.TrimSpace(msg.Status)))
	if !status.IsValid() {
		s.metrics.ShipmentUpdate("invalid")
		return models.Invalid("status", "unknown status "+msg.Status)
	}
	at := s.now()
	if msg.At != nil && !msg.At.IsZero() {
		at = msg.At.UTC()
	}

	sb, err := s.repo.ModifySortedBagByTracking(ctx, tn, func(sb *models.SortedBag) error {
		sb.Status = status
		sb.ApplyStatus(at)
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		s.metrics.ShipmentUpdate("unknown")
		s.log.Warn().Str("tracking_number", tn).Msg("shipment update for unknown tracking number")
		return nil
	}
	if err != nil {
		s.metrics.ShipmentUpdate("error")
		return err
	}
	s.metrics.ShipmentUpdate("applied")
	s.log.Info().
		Str("tracking_number", tn).
		Int64("sorted_bag", sb.ID).
		Str("status", string(sb.Status)).
		Msg("shipment status applied")
	return nil
}

// HandleShipmentMessage is the consumer handler for the shipment updates topic.
// Undecodable or invalid messages are logged and committed so they do not block the partition.
func (s *Service) HandleShipmentMessage(ctx context.Context, key, value []byte) error {
	var msg messages.ShipmentStatusUpdated
	if err := json.Unmarshal(value, &msg); err != nil {
		s.metrics.ShipmentUpdate("invalid")
		s.log.Warn().Err(err).Bytes("key", key).Msg("skip undecodable shipment update")
		return nil
	}
	if msg.TrackingNumber == "" {
		msg.TrackingNumber = string(key)
	}
	err := s.ApplyShipmentUpdate(ctx, msg)
	if errors.Is(err, models.ErrValidation) {
		s.log.Warn().Err(err).Bytes("key", key).Msg("skip invalid shipment update")
		return nil
	}
	return err
}
