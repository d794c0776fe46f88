package relay

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
	"github.com/eldtechnologies/ironpulse/internal/models"
	"github.com/eldtechnologies/ironpulse/internal/protocol"
	"github.com/eldtechnologies/ironpulse/internal/store"
)

type fakeJournal struct {
	mu        sync.Mutex
	incidents []models.Incident
}

func (j *fakeJournal) RecordIncident(_ context.Context, inc *models.Incident) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.incidents = append(j.incidents, *inc)
	return nil
}

func (j *fakeJournal) all() []models.Incident {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.Incident(nil), j.incidents...)
}

type testEngine struct {
	db         *store.SQLiteStore
	hasher     *crypto.Hasher
	journal    *fakeJournal
	registry   *Registry
	guard      *Guard
	messages   *Messages
	dispatcher *Dispatcher
}

func newTestEngine(t *testing.T, opts DispatcherOptions) *testEngine {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "relay.db"), 4)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	hasher, err := crypto.NewHasher([]byte("relay-test-key"))
	require.NoError(t, err)

	logger := zerolog.Nop()
	journal := &fakeJournal{}
	registry := NewRegistry(db, journal, logger)
	require.NoError(t, registry.Init(ctx))
	guard := NewGuard(db, logger)
	messages := NewMessages(db)

	return &testEngine{
		db:         db,
		hasher:     hasher,
		journal:    journal,
		registry:   registry,
		guard:      guard,
		messages:   messages,
		dispatcher: NewDispatcher(registry, guard, messages, hasher, logger, opts),
	}
}

// send signs a request line, parses it back and dispatches it.
func (e *testEngine) send(t *testing.T, command, payload, clientID string) (protocol.Response, error) {
	t.Helper()
	line := protocol.EncodeRequest(e.hasher, command, payload, clientID)
	req, err := protocol.ParseRequest(line, e.hasher)
	require.NoError(t, err)
	return e.dispatcher.Dispatch(context.Background(), req)
}

// mustSend is send for requests that must not abort the connection.
func (e *testEngine) mustSend(t *testing.T, command, payload, clientID string) protocol.Response {
	t.Helper()
	resp, err := e.send(t, command, payload, clientID)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func (e *testEngine) storePayload(channel, messageType, body string) string {
	return protocol.EncodeStorePayload(e.hasher, channel, messageType, hex.EncodeToString([]byte(body)))
}

// setupChannel creates channel and registers clientID on it.
func (e *testEngine) setupChannel(t *testing.T, channel, clientID string) {
	t.Helper()
	require.Equal(t, protocol.AckDataReceived, e.mustSend(t, protocol.CmdCreateChannel, channel, clientID).StatusCode())
	require.Equal(t, protocol.AckDataReceived, e.mustSend(t, protocol.CmdRegisterChannel, channel, clientID).StatusCode())
}
