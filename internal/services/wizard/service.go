// Package wizard drives the step by step bag entry: socket, bag type,
// optional subtype, weight, then commit. The draft lives outside the service
// (redis in production) and is loaded and saved on every step.
package wizard

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/SortBox/internal/metrics"
	"github.com/BearBump/SortBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const commitGuardPrefix = "wizard:commit:"

// Action is the operator's choice after a commit.
type Action string

const (
	ActionContinueSameSocket Action = "continue_same_socket"
	ActionContinueNewSocket  Action = "continue_new_socket"
	ActionFinish             Action = "finish"
)

type Catalog interface {
	ListSockets(ctx context.Context, activeOnly bool) ([]*models.Socket, error)
	GetSocket(ctx context.Context, id int64) (*models.Socket, error)
	GetBagType(ctx context.Context, id int64) (*models.BagType, error)
	GetSubtype(ctx context.Context, id int64) (*models.BagSubtype, error)
	ActiveBagTypes(ctx context.Context, socketID int64, source models.BagSource) ([]*models.BagType, error)
	ActiveSubtypes(ctx context.Context, bagTypeID int64) ([]*models.BagSubtype, error)
}

type DraftStore interface {
	Load(ctx context.Context, id string) (*models.WizardDraft, error)
	Save(ctx context.Context, d *models.WizardDraft) error
	Delete(ctx context.Context, id string) error
}

// CommitGuard is a counter per key inside a time window.
type CommitGuard interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
	Release(ctx context.Context, key string) error
}

type BagCreator interface {
	Create(ctx context.Context, in models.BagCreateInput) (*models.Bag, error)
}

// MissingPrerequisiteError points at the first step the draft has not completed.
type MissingPrerequisiteError struct {
	Step models.WizardStep
}

func (e *MissingPrerequisiteError) Error() string {
	return fmt.Sprintf("please complete previous steps first (%s)", e.Step)
}

func (e *MissingPrerequisiteError) Unwrap() error { return models.ErrMissingPrerequisite }

// State is a draft plus what the UI needs to render its next step.
type State struct {
	Draft          *models.WizardDraft  `json:"draft"`
	Next           models.WizardStep    `json:"next_step"`
	SocketInfo     string               `json:"socket_info,omitempty"`
	BagTypeDisplay string               `json:"bag_type_display,omitempty"`
	Sockets        []*models.Socket     `json:"sockets,omitempty"`
	BagTypes       []*models.BagType    `json:"bag_types,omitempty"`
	Subtypes       []*models.BagSubtype `json:"subtypes,omitempty"`
}

type Options struct {
	// GuardWindow is how long a committed draft stays locked against a second commit.
	GuardWindow time.Duration
	Now         func() time.Time
}

type Service struct {
	catalog Catalog
	drafts  DraftStore
	guard   CommitGuard
	bags    BagCreator
	metrics *metrics.Sorting
	log     zerolog.Logger
	opts    Options
}

func New(catalog Catalog, drafts DraftStore, guard CommitGuard, bags BagCreator, m *metrics.Sorting, log zerolog.Logger, opts Options) *Service {
	if opts.GuardWindow <= 0 {
		opts.GuardWindow = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		catalog: catalog,
		drafts:  drafts,
		guard:   guard,
		bags:    bags,
		metrics: m,
		log:     log.With().Str("component", "wizard").Logger(),
		opts:    opts,
	}
}

// Start opens an empty draft.
func (s *Service) Start(ctx context.Context) (*State, error) {
	d := &models.WizardDraft{ID: uuid.NewString()}
	if err := s.save(ctx, d); err != nil {
		return nil, err
	}
	return s.state(ctx, d)
}

func (s *Service) Get(ctx context.Context, id string) (*State, error) {
	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.state(ctx, d)
}

// SelectSocket starts the draft over at the given socket. The source is only
// accepted for sockets that separate IN and OUT.
func (s *Service) SelectSocket(ctx context.Context, id string, socketID int64, source models.BagSource) (*State, error) {
	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	so, err := s.catalog.GetSocket(ctx, socketID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Invalid("socket", "unknown socket")
	}
	if err != nil {
		return nil, err
	}
	if !so.IsActive {
		return nil, models.Invalid("socket", "socket is not active")
	}
	if source != "" {
		if !source.IsValid() {
			return nil, models.Invalid("bag_source", "must be IN or OUT")
		}
		if !so.SupportsSource {
			return nil, models.Invalid("bag_source", "socket does not separate IN and OUT")
		}
	}

	d.Reset()
	d.SocketID = so.ID
	d.SocketCode = so.SocketID
	d.SocketName = so.Name
	d.BagSource = source
	if err := s.save(ctx, d); err != nil {
		return nil, err
	}
	return s.state(ctx, d)
}

// SelectBagType sets the bag type and an optional parameter. Later steps are cleared.
func (s *Service) SelectBagType(ctx context.Context, id string, bagTypeID int64, param models.Parameter) (*State, error) {
	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.HasSocket() {
		return nil, &MissingPrerequisiteError{Step: models.WizardStepSocket}
	}
	bt, err := s.catalog.GetBagType(ctx, bagTypeID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Invalid("bag_type", "unknown bag type")
	}
	if err != nil {
		return nil, err
	}
	if !bt.IsActive || bt.SocketID != d.SocketID {
		return nil, models.Invalid("bag_type", "not available at this socket")
	}
	if d.BagSource != "" && bt.Source != d.BagSource {
		return nil, models.Invalid("bag_type", "not available for "+string(d.BagSource))
	}
	if param != "" {
		if !param.IsValid() {
			return nil, models.Invalid("parameter", "must be Standard or Extra")
		}
		if bt.Parameters != 0 && !bt.Parameters.Has(param) {
			return nil, models.Invalid("parameter", "not configured for this bag type")
		}
	}

	d.ClearFromBagType()
	d.BagTypeID = bt.ID
	d.BagTypeName = bt.Name
	d.Parameter = param
	if err := s.save(ctx, d); err != nil {
		return nil, err
	}
	return s.state(ctx, d)
}

func (s *Service) SelectSubtype(ctx context.Context, id string, subtypeID int64) (*State, error) {
	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if step := firstIncomplete(d, models.WizardStepSubtype); step != "" {
		return nil, &MissingPrerequisiteError{Step: step}
	}
	st, err := s.catalog.GetSubtype(ctx, subtypeID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Invalid("bag_subtype", "unknown subtype")
	}
	if err != nil {
		return nil, err
	}
	if !st.IsActive || st.BagTypeID != d.BagTypeID {
		return nil, models.Invalid("bag_subtype", "not available for this bag type")
	}

	d.ClearFromSubtype()
	d.BagSubtypeID = &st.ID
	d.BagSubtypeName = st.Name
	if err := s.save(ctx, d); err != nil {
		return nil, err
	}
	return s.state(ctx, d)
}

func (s *Service) SetWeight(ctx context.Context, id string, weight decimal.Decimal, notes string) (*State, error) {
	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if step := firstIncomplete(d, models.WizardStepWeight); step != "" {
		return nil, &MissingPrerequisiteError{Step: step}
	}
	if err := models.ValidateWeight(weight); err != nil {
		return nil, err
	}
	d.WeightKg = decimal.NullDecimal{Decimal: weight, Valid: true}
	d.Notes = notes
	if err := s.save(ctx, d); err != nil {
		return nil, err
	}
	return s.state(ctx, d)
}

// Commit creates the bag from a complete draft. The draft is kept until the
// operator picks a Continue action and cannot be committed again before that.
// The guard only covers submits racing each other.
func (s *Service) Commit(ctx context.Context, id string) (*models.Bag, error) {
	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.CommittedBagID != "" {
		s.metrics.WizardCommit("duplicate")
		return nil, errors.Wrapf(models.ErrConflict, "draft is already committed as %s", d.CommittedBagID)
	}
	if step := firstIncomplete(d, models.WizardStepSummary); step != "" {
		return nil, &MissingPrerequisiteError{Step: step}
	}

	guardKey := commitGuardPrefix + d.ID
	if s.guard != nil {
		ok, _, err := s.guard.Allow(ctx, guardKey, 1, s.opts.GuardWindow)
		if err != nil {
			s.metrics.WizardCommit("error")
			return nil, err
		}
		if !ok {
			s.metrics.WizardCommit("duplicate")
			return nil, errors.Wrap(models.ErrConflict, "draft is already committed")
		}
	}

	bag, err := s.bags.Create(ctx, models.BagCreateInput{
		SocketID:     d.SocketID,
		BagTypeID:    d.BagTypeID,
		BagSubtypeID: d.BagSubtypeID,
		WeightKg:     d.WeightKg,
		ItemCount:    1,
		Extra:        d.Extra(),
		Notes:        d.Notes,
		Source:       d.BagSource,
	})
	if err != nil {
		s.metrics.WizardCommit("error")
		s.releaseGuard(ctx, guardKey)
		return nil, err
	}
	s.metrics.WizardCommit("ok")
	s.log.Info().Str("draft", d.ID).Str("bag_id", bag.BagID).Msg("wizard committed")

	d.CommittedBagID = bag.BagID
	if err := s.save(ctx, d); err != nil {
		// guard still blocks resubmits until it expires
		s.log.Warn().Err(err).Str("draft", d.ID).Msg("mark draft committed")
	}
	return bag, nil
}

// Continue applies the operator's choice after a commit. Finish drops the
// draft and returns a nil state.
func (s *Service) Continue(ctx context.Context, id string, action Action) (*State, error) {
	d, err := s.drafts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.releaseGuard(ctx, commitGuardPrefix+d.ID)

	switch action {
	case ActionContinueSameSocket:
		d.CollapseToSocket()
	case ActionContinueNewSocket:
		d.Reset()
	case ActionFinish:
		if err := s.drafts.Delete(ctx, d.ID); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, models.Invalid("action", "must be continue_same_socket, continue_new_socket or finish")
	}
	if err := s.save(ctx, d); err != nil {
		return nil, err
	}
	return s.state(ctx, d)
}

func (s *Service) Discard(ctx context.Context, id string) error {
	s.releaseGuard(ctx, commitGuardPrefix+id)
	return s.drafts.Delete(ctx, id)
}

func (s *Service) save(ctx context.Context, d *models.WizardDraft) error {
	d.UpdatedAt = s.opts.Now()
	return s.drafts.Save(ctx, d)
}

func (s *Service) releaseGuard(ctx context.Context, key string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("release commit guard")
	}
}

// firstIncomplete returns the earliest step missing before target, or "".
// The subtype step is optional and never reported.
func firstIncomplete(d *models.WizardDraft, target models.WizardStep) models.WizardStep {
	switch {
	case !d.HasSocket():
		return models.WizardStepSocket
	case target == models.WizardStepBagType:
		return ""
	case !d.HasBagType():
		return models.WizardStepBagType
	case target == models.WizardStepSubtype || target == models.WizardStepWeight:
		return ""
	case !d.WeightKg.Valid:
		return models.WizardStepWeight
	}
	return ""
}

func (s *Service) state(ctx context.Context, d *models.WizardDraft) (*State, error) {
	st := &State{
		Draft:          d,
		SocketInfo:     d.SocketInfo(),
		BagTypeDisplay: d.BagTypeDisplay(),
	}
	var err error
	switch {
	case !d.HasSocket():
		st.Next = models.WizardStepSocket
		st.Sockets, err = s.catalog.ListSockets(ctx, true)
	case !d.HasBagType():
		st.Next = models.WizardStepBagType
		st.BagTypes, err = s.catalog.ActiveBagTypes(ctx, d.SocketID, d.BagSource)
	case d.BagSubtypeID == nil && !d.WeightKg.Valid:
		st.Subtypes, err = s.catalog.ActiveSubtypes(ctx, d.BagTypeID)
		// без активных подтипов шаг 2b пропускается
		if len(st.Subtypes) > 0 {
			st.Next = models.WizardStepSubtype
		} else {
			st.Next = models.WizardStepWeight
		}
	case !d.WeightKg.Valid:
		st.Next = models.WizardStepWeight
	default:
		st.Next = models.WizardStepSummary
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}
