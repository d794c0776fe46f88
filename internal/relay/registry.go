package relay

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/ironpulse/internal/metrics"
	"github.com/eldtechnologies/ironpulse/internal/models"
	"github.com/eldtechnologies/ironpulse/internal/store"
)

// Channel name validation: alphanumeric and hyphens, 1-48 chars.
// Underscore separates payload fields and is not allowed.
var channelNameRegex = regexp.MustCompile(`^[A-Za-z0-9-]{1,48}$`)

var ErrInvalidChannel = errors.New("invalid channel name")

// catalogCollection lists known channels for the compactor and admin surface.
// It contains an underscore so it can never clash with a channel name.
const catalogCollection = "ironpulse_channels"

var permissionSchema = store.Schema{
	Columns:    []store.Column{{Name: "client_id", Type: store.Text, Size: 380}},
	PrimaryKey: "client_id",
}

var catalogSchema = store.Schema{
	Columns:    []store.Column{{Name: "name", Type: store.Text, Size: 64}},
	PrimaryKey: "name",
}

// Outcome is the result of a two-collection channel operation.
type Outcome int

const (
	OutcomeComplete Outcome = iota // both collections affected
	OutcomePartial                 // exactly one collection affected
	OutcomeFailed                  // neither collection affected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomePartial:
		return "partial"
	default:
		return "failed"
	}
}

// Journal records partial channel operations for later reconciliation.
type Journal interface {
	RecordIncident(ctx context.Context, inc *models.Incident) error
}

type nopJournal struct{}

func (nopJournal) RecordIncident(context.Context, *models.Incident) error { return nil }

// ValidChannelName reports whether name is an acceptable channel name.
func ValidChannelName(name string) bool {
	return channelNameRegex.MatchString(name)
}

func permissionCollection(channel string) string {
	return channel + "_permission"
}

// Registry creates and drops the paired collections of a channel.
type Registry struct {
	db      store.Store
	journal Journal
	logger  zerolog.Logger
}

// NewRegistry creates a registry. A nil journal disables incident recording.
func NewRegistry(db store.Store, journal Journal, logger zerolog.Logger) *Registry {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Registry{
		db:      db,
		journal: journal,
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Init creates the channel catalog if it does not exist yet.
func (r *Registry) Init(ctx context.Context) error {
	if _, err := r.db.SelectMany(ctx, catalogCollection, []string{"name"}, nil, 1); err == nil {
		return nil
	}
	if err := r.db.CreateCollection(ctx, catalogCollection, catalogSchema); err != nil {
		return fmt.Errorf("create channel catalog: %w", err)
	}
	return nil
}

// Create creates the message and permission collections of a channel.
// Both are attempted independently and nothing is rolled back.
func (r *Registry) Create(ctx context.Context, name string) (Outcome, error) {
	if !ValidChannelName(name) {
		return OutcomeFailed, fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}

	msgErr := r.db.CreateCollection(ctx, name, messageSchema)
	permErr := r.db.CreateCollection(ctx, permissionCollection(name), permissionSchema)

	outcome := r.settle(ctx, "create", name, msgErr, permErr)
	if outcome != OutcomeFailed {
		if err := r.db.InsertRow(ctx, catalogCollection, store.Row{"name": name}); err != nil {
			r.logger.Warn().Err(err).Str("channel", name).Msg("channel catalog insert failed")
		}
	}
	if outcome == OutcomeComplete {
		r.logger.Info().Str("channel", name).Msg("channel created")
		return outcome, nil
	}
	return outcome, errors.Join(msgErr, permErr)
}

// Drop drops both collections of a channel.
func (r *Registry) Drop(ctx context.Context, name string) (Outcome, error) {
	if !ValidChannelName(name) {
		return OutcomeFailed, fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}

	msgErr := r.db.DropCollection(ctx, name)
	permErr := r.db.DropCollection(ctx, permissionCollection(name))

	outcome := r.settle(ctx, "drop", name, msgErr, permErr)
	if outcome == OutcomeComplete {
		r.uncatalog(ctx, name)
		r.logger.Info().Str("channel", name).Msg("channel dropped")
		return outcome, nil
	}
	// A channel whose collections are both gone leaves the catalog, however
	// many attempts it took to get there.
	if !r.collectionExists(ctx, name) && !r.collectionExists(ctx, permissionCollection(name)) {
		r.uncatalog(ctx, name)
	}
	return outcome, errors.Join(msgErr, permErr)
}

func (r *Registry) uncatalog(ctx context.Context, name string) {
	if _, err := r.db.DeleteRows(ctx, catalogCollection, store.Where{"name": name}); err != nil {
		r.logger.Warn().Err(err).Str("channel", name).Msg("channel catalog delete failed")
	}
}

// collectionExists reports whether a capped count on name succeeds.
func (r *Registry) collectionExists(ctx context.Context, name string) bool {
	_, err := r.db.CountRows(ctx, name, nil, 1)
	return err == nil
}

// settle classifies the two collection results, logging partial outcomes
// distinctly from total failure and journaling them.
func (r *Registry) settle(ctx context.Context, op, name string, msgErr, permErr error) Outcome {
	switch {
	case msgErr == nil && permErr == nil:
		return OutcomeComplete
	case msgErr != nil && permErr != nil:
		r.logger.Error().
			Str("channel", name).
			Str("operation", op).
			Str("outcome", OutcomeFailed.String()).
			AnErr("messages_err", msgErr).
			AnErr("permissions_err", permErr).
			Msg("channel operation failed")
		return OutcomeFailed
	}

	var detail string
	if msgErr != nil {
		detail = fmt.Sprintf("message collection %s failed: %v", op, msgErr)
	} else {
		detail = fmt.Sprintf("permission collection %s failed: %v", op, permErr)
	}

	metrics.PartialOperations.WithLabelValues(op).Inc()
	r.logger.Error().
		Str("channel", name).
		Str("operation", op).
		Str("outcome", OutcomePartial.String()).
		Str("detail", detail).
		Msg("channel left half-formed, manual reconciliation required")

	inc := &models.Incident{Channel: name, Operation: op, Detail: detail}
	if err := r.journal.RecordIncident(ctx, inc); err != nil {
		r.logger.Error().Err(err).Str("channel", name).Msg("journal write failed")
	}
	return OutcomePartial
}

// Register adds clientID to the channel's permissions.
func (r *Registry) Register(ctx context.Context, name, clientID string) error {
	if !ValidChannelName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}
	if err := r.db.InsertRow(ctx, permissionCollection(name), store.Row{"client_id": clientID}); err != nil {
		return err
	}
	r.logger.Info().Str("channel", name).Str("client_id", clientID).Msg("client registered")
	return nil
}

// List returns the names recorded in the channel catalog.
func (r *Registry) List(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.SelectMany(ctx, catalogCollection, []string{"name"}, nil, limit)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, asString(row["name"]))
	}
	return names, nil
}
