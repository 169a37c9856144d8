// Package conversation manages the chat sessions attached to
// newsletter generation. Messages are append-only and a conversation
// closes for good once its newsletter reaches a terminal status.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"doorstep/internal/store"
	"doorstep/internal/types"
)

// ErrClosed is returned when appending to a closed conversation.
var ErrClosed = errors.New("conversation is closed")

// Manager provides conversation persistence on top of the document
// store. Mutations are serialized through the manager: the store offers
// no read-modify-write atomicity, and a generation job may append its
// progress message while a chat turn is in flight.
type Manager struct {
	mu     sync.Mutex
	store  store.Store
	logger *zap.Logger
}

// NewManager creates a conversation manager.
func NewManager(s store.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: s, logger: logger}
}

// Create starts a new active conversation for a neighborhood.
func (m *Manager) Create(ctx context.Context, neighborhoodID string) (*types.Conversation, error) {
	now := time.Now().UTC()
	conv := &types.Conversation{
		ID:             types.NewID(),
		NeighborhoodID: neighborhoodID,
		Messages:       []types.Message{},
		Status:         types.ConversationActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Create(ctx, store.CollectionConversations, conv.ID, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	m.logger.Debug("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("neighborhood_id", neighborhoodID))
	return conv, nil
}

// Get loads a conversation by id.
func (m *Manager) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var conv types.Conversation
	if err := m.store.Get(ctx, store.CollectionConversations, id, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage appends to an active conversation. Appends against a
// closed conversation fail; the history of a finished newsletter never
// changes.
func (m *Manager) AppendMessage(ctx context.Context, id string, msg types.Message) (*types.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Status == types.ConversationClosed {
		return nil, fmt.Errorf("%w: %s", ErrClosed, id)
	}
	if !msg.Role.Valid() {
		return nil, fmt.Errorf("invalid message role %q", msg.Role)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now().UTC()
	if err := m.store.Put(ctx, store.CollectionConversations, id, conv); err != nil {
		return nil, fmt.Errorf("saving conversation: %w", err)
	}
	return conv, nil
}

// SetNewsletter links the conversation to the newsletter it produced.
func (m *Manager) SetNewsletter(ctx context.Context, id, newsletterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	conv.NewsletterID = newsletterID
	conv.UpdatedAt = time.Now().UTC()
	return m.store.Put(ctx, store.CollectionConversations, id, conv)
}

// Close marks the conversation closed. Closing an already closed
// conversation is a no-op.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if conv.Status == types.ConversationClosed {
		return nil
	}

	now := time.Now().UTC()
	conv.Status = types.ConversationClosed
	conv.ClosedAt = &now
	conv.UpdatedAt = now
	if err := m.store.Put(ctx, store.CollectionConversations, id, conv); err != nil {
		return fmt.Errorf("closing conversation: %w", err)
	}
	m.logger.Debug("conversation closed", zap.String("conversation_id", id))
	return nil
}

// ListByNeighborhood returns a neighborhood's conversations, most
// recently updated first.
func (m *Manager) ListByNeighborhood(ctx context.Context, neighborhoodID string) ([]*types.Conversation, error) {
	docs, err := m.store.List(ctx, store.CollectionConversations)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	var result []*types.Conversation
	for _, doc := range docs {
		var conv types.Conversation
		if err := json.Unmarshal(doc, &conv); err != nil {
			m.logger.Warn("skipping undecodable conversation", zap.Error(err))
			continue
		}
		if conv.NeighborhoodID == neighborhoodID {
			result = append(result, &conv)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}
