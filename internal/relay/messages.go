// Package relay is the channel and message lifecycle engine: channel
// registry, permission guard, message store and the command dispatcher that
// ties them to the wire protocol.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/eldtechnologies/ironpulse/internal/models"
	"github.com/eldtechnologies/ironpulse/internal/store"
)

var ErrNotFound = errors.New("no matching message")

var messageColumns = []string{"uuid", "message_type", "body", "processed"}

var notProcessed = false

// messageSchema is the row layout of a channel's message collection.
var messageSchema = store.Schema{
	Columns: []store.Column{
		{Name: "uuid", Type: store.Text, Size: 380},
		{Name: "message_type", Type: store.Text, Size: 1024},
		{Name: "body", Type: store.Text, Size: 4096},
		{Name: "processed", Type: store.Bool, Default: &notProcessed},
	},
	PrimaryKey: "uuid",
}

// Messages is CRUD over a channel's message rows.
type Messages struct {
	db store.Store
}

// NewMessages creates a message store on top of db.
func NewMessages(db store.Store) *Messages {
	return &Messages{db: db}
}

// Store inserts an unprocessed message. The caller has already checked that
// uuid is the integrity hash of hexBody.
func (m *Messages) Store(ctx context.Context, channel, messageType, hexBody, uuid string) error {
	return m.db.InsertRow(ctx, channel, store.Row{
		"uuid":         uuid,
		"message_type": messageType,
		"body":         hexBody,
		"processed":    false,
	})
}

// FetchOldestUnprocessed returns one unprocessed message, or nil when none is
// pending. Which one is returned is up to the store's iteration order; it is
// not guaranteed to be the first one stored.
func (m *Messages) FetchOldestUnprocessed(ctx context.Context, channel string) (*models.Message, error) {
	row, err := m.db.SelectOne(ctx, channel, messageColumns, store.Where{"processed": false})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	msg := rowToMessage(row)
	return &msg, nil
}

// Pending returns up to limit unprocessed messages.
func (m *Messages) Pending(ctx context.Context, channel string, limit int) ([]models.Message, error) {
	rows, err := m.db.SelectMany(ctx, channel, messageColumns, store.Where{"processed": false}, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, len(rows))
	for i, row := range rows {
		out[i] = rowToMessage(row)
	}
	return out, nil
}

// CountPending counts unprocessed messages without reading their bodies,
// stopping at limit when limit > 0.
func (m *Messages) CountPending(ctx context.Context, channel string, limit int) (int, error) {
	n, err := m.db.CountRows(ctx, channel, store.Where{"processed": false}, limit)
	return int(n), err
}

// MarkProcessed flags the message whose body equals body as processed.
func (m *Messages) MarkProcessed(ctx context.Context, channel, body string) error {
	n, err := m.db.UpdateRows(ctx, channel, store.Where{"body": body}, store.Row{"processed": true})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w in %s", ErrNotFound, channel)
	}
	return nil
}

func rowToMessage(row store.Row) models.Message {
	return models.Message{
		UUID:        asString(row["uuid"]),
		MessageType: asString(row["message_type"]),
		Body:        asString(row["body"]),
		Processed:   asBool(row["processed"]),
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}
