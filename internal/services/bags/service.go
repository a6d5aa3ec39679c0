package bags

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/SortBox/internal/broker/messages"
	"github.com/BearBump/SortBox/internal/metrics"
	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// maxIDAttempts bounds the collision retry loop of the id generator.
const maxIDAttempts = 10_000

type Repository interface {
	InBagTx(ctx context.Context, fn func(tx storage.BagTx) error) error
	GetBag(ctx context.Context, id int64) (*models.Bag, error)
	GetBagByBagID(ctx context.Context, bagID string) (*models.Bag, error)
	ListBags(ctx context.Context, f models.BagFilter) ([]*models.Bag, error)
	ModifyBag(ctx context.Context, id int64, fn func(b *models.Bag) error) (*models.Bag, error)
	SetBagsExtra(ctx context.Context, ids []int64, extra bool) (int64, error)
	SetBagsSource(ctx context.Context, ids []int64, source models.BagSource) (int64, error)
	DashboardStats(ctx context.Context) (*models.DashboardStats, error)
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Options struct {
	// SeparatorSocketID is the socket code whose IN arrivals auto-process the previous pending bag.
	SeparatorSocketID string
	EventsTopic       string
	Now               func() time.Time
}

type Service struct {
	repo    Repository
	events  EventPublisher
	metrics *metrics.Sorting
	log     zerolog.Logger
	opts    Options
}

func New(repo Repository, events EventPublisher, m *metrics.Sorting, log zerolog.Logger, opts Options) *Service {
	if opts.SeparatorSocketID == "" {
		opts.SeparatorSocketID = "SEP"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:    repo,
		events:  events,
		metrics: m,
		log:     log.With().Str("component", "bags").Logger(),
		opts:    opts,
	}
}

// Create inserts a bag. When BagID is empty a sequential id is generated in the
// same transaction. An IN bag at the separator socket auto-processes the latest
// pending IN bag there.
func (s *Service) Create(ctx context.Context, in models.BagCreateInput) (*models.Bag, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.opts.Now()

	var (
		created *models.Bag
		closed  *models.Bag
		socket  *models.Socket
	)
	err := s.repo.InBagTx(ctx, func(tx storage.BagTx) error {
		var err error
		socket, err = tx.GetSocket(ctx, in.SocketID)
		if errors.Is(err, models.ErrNotFound) {
			return models.Invalid("socket", "unknown socket")
		}
		if err != nil {
			return err
		}
		if err := checkClassification(ctx, tx, in); err != nil {
			return err
		}

		bagID := in.BagID
		if bagID == "" {
			bagID, err = generateBagID(ctx, tx)
			if err != nil {
				return err
			}
		} else {
			exists, err := tx.BagIDExists(ctx, bagID)
			if err != nil {
				return err
			}
			if exists {
				return errors.Wrapf(models.ErrConflict, "bag_id %s", bagID)
			}
		}

		b := in.NewBag(bagID, now)
		if err := tx.InsertBag(ctx, b); err != nil {
			return err
		}
		created = b

		if !s.triggersAutoProcess(socket, b) {
			return nil
		}
		prev, err := tx.LockLatestPending(ctx, b.SocketID, models.BagSourceIn, b.ID)
		if err != nil {
			return err
		}
		if prev == nil {
			return nil
		}
		prev.AutoProcess(now)
		prev.UpdatedAt = now
		if err := tx.UpdateBagProcessing(ctx, prev); err != nil {
			return err
		}
		closed = prev
		return nil
	})
	if err != nil {
		return nil, err
	}

	created.SocketCode = socket.SocketID
	s.metrics.BagCreated(socket.SocketID, string(created.Source))
	s.log.Info().
		Str("bag_id", created.BagID).
		Str("socket", socket.SocketID).
		Str("source", string(created.Source)).
		Msg("bag created")
	s.publish(ctx, bagEvent(messages.EventBagCreated, created, socket.SocketID))

	if closed != nil {
		s.metrics.BagProcessed(true)
		s.log.Info().
			Str("bag_id", closed.BagID).
			Str("closed_by", created.BagID).
			Int64("processing_time_seconds", *closed.ProcessingTimeSeconds).
			Msg("bag auto-processed")
		ev := bagEvent(messages.EventBagAutoProcessed, closed, socket.SocketID)
		ev.ClosedBy = created.BagID
		s.publish(ctx, ev)
	}
	return created, nil
}

// checkClassification rejects a bag type from another socket or with the
// other source direction, and a subtype of another bag type.
func checkClassification(ctx context.Context, tx storage.BagTx, in models.BagCreateInput) error {
	bt, err := tx.GetBagType(ctx, in.BagTypeID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Invalid("bag_type", "unknown bag type")
	}
	if err != nil {
		return err
	}
	if bt.SocketID != in.SocketID {
		return models.Invalid("bag_type", "does not belong to the socket")
	}
	if in.Source != "" && bt.Source != in.Source {
		return models.Invalid("bag_source", fmt.Sprintf("bag type is %s", bt.Source))
	}
	if in.BagSubtypeID == nil {
		return nil
	}
	st, err := tx.GetSubtype(ctx, *in.BagSubtypeID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Invalid("bag_subtype", "unknown subtype")
	}
	if err != nil {
		return err
	}
	if st.BagTypeID != bt.ID {
		return models.Invalid("bag_subtype", "does not belong to the bag type")
	}
	return nil
}

func (s *Service) triggersAutoProcess(socket *models.Socket, b *models.Bag) bool {
	return socket.SocketID == s.opts.SeparatorSocketID && b.Source == models.BagSourceIn
}

// generateBagID takes max+1 over the existing sequential ids and steps past
// any id that is already taken.
func generateBagID(ctx context.Context, tx storage.BagTx) (string, error) {
	ids, err := tx.ListSequentialBagIDs(ctx)
	if err != nil {
		return "", err
	}
	n := models.NextBagNumber(ids)
	for i := 0; i < maxIDAttempts; i++ {
		candidate := models.FormatBagID(n)
		exists, err := tx.BagIDExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		n++
	}
	return "", errors.New("no free bag id found")
}

// GenerateNextBagID previews the id the next Create would assign.
func (s *Service) GenerateNextBagID(ctx context.Context) (string, error) {
	var id string
	err := s.repo.InBagTx(ctx, func(tx storage.BagTx) error {
		var err error
		id, err = generateBagID(ctx, tx)
		return err
	})
	return id, err
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Bag, error) {
	return s.repo.GetBag(ctx, id)
}

func (s *Service) GetByBagID(ctx context.Context, bagID string) (*models.Bag, error) {
	if !models.ValidBagID(bagID) {
		return nil, models.Invalid("bag_id", "must be BAG_ + 6 digits or BAG_ + 8 hex chars")
	}
	return s.repo.GetBagByBagID(ctx, bagID)
}

func (s *Service) List(ctx context.Context, f models.BagFilter) ([]*models.Bag, error) {
	switch f.Status {
	case models.BagStatusAll, models.BagStatusProcessed, models.BagStatusPending:
	default:
		return nil, models.Invalid("status", "must be processed or pending")
	}
	f.Normalize()
	return s.repo.ListBags(ctx, f)
}

// MarkProcessed is idempotent: the processed timestamp of the first call is kept.
func (s *Service) MarkProcessed(ctx context.Context, id int64) (*models.Bag, error) {
	processed := true
	return s.Update(ctx, id, models.BagUpdate{Processed: &processed})
}

func (s *Service) Update(ctx context.Context, id int64, upd models.BagUpdate) (*models.Bag, error) {
	now := s.opts.Now()
	var wasProcessed bool
	b, err := s.repo.ModifyBag(ctx, id, func(b *models.Bag) error {
		wasProcessed = b.Processed
		return upd.Apply(b, now)
	})
	if err != nil {
		return nil, err
	}
	if !wasProcessed && b.Processed {
		s.metrics.BagProcessed(false)
		s.log.Info().Str("bag_id", b.BagID).Msg("bag processed")
		s.publish(ctx, bagEvent(messages.EventBagProcessed, b, b.SocketCode))
	}
	return b, nil
}

func (s *Service) AssignPerson(ctx context.Context, id int64, personID *int64) (*models.Bag, error) {
	if personID == nil {
		return s.Update(ctx, id, models.BagUpdate{ClearPerson: true})
	}
	return s.Update(ctx, id, models.BagUpdate{PersonID: personID})
}

func (s *Service) SetQualityGrade(ctx context.Context, id int64, grade models.QualityGrade) (*models.Bag, error) {
	return s.Update(ctx, id, models.BagUpdate{QualityGrade: &grade})
}

// BulkSetExtra sets the extra flag on every listed bag and nothing else.
func (s *Service) BulkSetExtra(ctx context.Context, ids []int64, extra bool) (int64, error) {
	if len(ids) == 0 {
		return 0, models.Invalid("ids", "at least one id is required")
	}
	n, err := s.repo.SetBagsExtra(ctx, ids, extra)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("updated", n).Bool("extra", extra).Msg("bulk set extra")
	return n, nil
}

// BulkSetSource sets the source direction of every listed bag. An empty source clears it.
func (s *Service) BulkSetSource(ctx context.Context, ids []int64, source models.BagSource) (int64, error) {
	if len(ids) == 0 {
		return 0, models.Invalid("ids", "at least one id is required")
	}
	if source != "" && !source.IsValid() {
		return 0, models.Invalid("bag_source", "must be IN or OUT")
	}
	n, err := s.repo.SetBagsSource(ctx, ids, source)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("updated", n).Str("bag_source", string(source)).Msg("bulk set bag source")
	return n, nil
}

func (s *Service) Stats(ctx context.Context) (*models.DashboardStats, error) {
	st, err := s.repo.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListBags(ctx, models.BagFilter{Limit: 10})
	if err != nil {
		return nil, err
	}
	st.RecentBags = recent
	return st, nil
}

func (s *Service) publish(ctx context.Context, ev messages.BagEvent) {
	if s.events == nil || s.opts.EventsTopic == "" {
		return
	}
	if err := s.events.PublishJSON(ctx, s.opts.EventsTopic, ev.BagID, ev); err != nil {
		s.log.Warn().Err(err).Str("bag_id", ev.BagID).Str("type", ev.Type).Msg("publish bag event failed")
	}
}

func bagEvent(typ string, b *models.Bag, socket string) messages.BagEvent {
	ev := messages.BagEvent{
		Type:                  typ,
		BagID:                 b.BagID,
		ID:                    b.ID,
		Socket:                socket,
		BagSource:             string(b.Source),
		BagTypeID:             b.BagTypeID,
		Extra:                 b.Extra,
		At:                    b.UpdatedAt,
		ProcessingTimeSeconds: b.ProcessingTimeSeconds,
	}
	if b.WeightKg.Valid {
		w := b.WeightKg.Decimal.StringFixed(2)
		ev.WeightKg = &w
	}
	return ev
}
