// Package newsletter implements the lifecycle engine: a newsletter is
// created in generating, a background job composes its content, and it
// then moves to generated where conversational updates apply until the
// manager accepts or rejects it.
//
// State machine:
//
//	generating → generated → {accepted | rejected}
//	generating → error (job failure)
//	generated → generating (explicit regeneration only)
//
// accepted and rejected are terminal; any further mutation fails with
// ErrInvalidState.
package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"doorstep/internal/conversation"
	"doorstep/internal/router"
	"doorstep/internal/store"
	"doorstep/internal/types"
)

// Manager owns newsletter lifecycle transitions and the generation jobs
// behind them.
type Manager struct {
	store         store.Store
	conversations *conversation.Manager
	composer      *Composer
	router        *router.Router
	logger        *zap.Logger

	updateRetries int
	genTimeout    time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewManager creates a lifecycle manager. updateRetries is the
// compare-and-swap retry budget for ApplyUpdate; genTimeout bounds each
// generation job.
func NewManager(s store.Store, conversations *conversation.Manager, composer *Composer, r *router.Router, updateRetries int, genTimeout time.Duration, logger *zap.Logger) *Manager {
	if updateRetries <= 0 {
		updateRetries = 3
	}
	if genTimeout <= 0 {
		genTimeout = 3 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:         s,
		conversations: conversations,
		composer:      composer,
		router:        r,
		updateRetries: updateRetries,
		genTimeout:    genTimeout,
		logger:        logger,
		inFlight:      make(map[string]struct{}),
	}
}

// StartGeneration creates a newsletter in generating and kicks off the
// composition job. It returns the placeholder record immediately;
// callers poll Get until a non-generating status appears.
func (m *Manager) StartGeneration(ctx context.Context, neighborhoodID, conversationID string) (*types.Newsletter, error) {
	var hood types.Neighborhood
	if err := m.store.Get(ctx, store.CollectionNeighborhoods, neighborhoodID, &hood); err != nil {
		return nil, fmt.Errorf("loading neighborhood: %w", err)
	}

	now := time.Now().UTC()
	n := &types.Newsletter{
		ID:             types.NewID(),
		NeighborhoodID: neighborhoodID,
		ConversationID: conversationID,
		Status:         types.StatusGenerating,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.acquire(n.ID); err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, store.CollectionNewsletters, n.ID, n); err != nil {
		m.release(n.ID)
		return nil, fmt.Errorf("creating newsletter: %w", err)
	}

	if conversationID != "" {
		if err := m.conversations.SetNewsletter(ctx, conversationID, n.ID); err != nil {
			m.logger.Warn("linking conversation failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}

	m.spawn(n.ID, hood, conversationID)
	m.logger.Info("generation started",
		zap.String("newsletter_id", n.ID),
		zap.String("neighborhood_id", neighborhoodID))
	return n, nil
}

// Regenerate moves a generated newsletter back to generating and runs
// the composition job again. This is the only legal path back into
// generating.
func (m *Manager) Regenerate(ctx context.Context, id string) (*types.Newsletter, error) {
	n, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status == types.StatusGenerating {
		return nil, fmt.Errorf("%w: %s", ErrGenerationInFlight, id)
	}
	if n.Status != types.StatusGenerated {
		return nil, fmt.Errorf("%w: cannot regenerate newsletter in %s", ErrInvalidState, n.Status)
	}

	var hood types.Neighborhood
	if err := m.store.Get(ctx, store.CollectionNeighborhoods, n.NeighborhoodID, &hood); err != nil {
		return nil, fmt.Errorf("loading neighborhood: %w", err)
	}

	if err := m.acquire(id); err != nil {
		return nil, err
	}

	expected := n.Version
	n.Status = types.StatusGenerating
	n.ErrorMessage = ""
	n.Version = expected + 1
	n.UpdatedAt = time.Now().UTC()
	if err := m.store.CompareAndSwap(ctx, store.CollectionNewsletters, id, expected, n); err != nil {
		m.release(id)
		if errors.Is(err, store.ErrVersionMismatch) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, id)
		}
		return nil, fmt.Errorf("transitioning to generating: %w", err)
	}

	m.spawn(id, hood, n.ConversationID)
	m.logger.Info("regeneration started", zap.String("newsletter_id", id))
	return n, nil
}

// acquire reserves the per-id generation guard.
func (m *Manager) acquire(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if _, busy := m.inFlight[id]; busy {
		return fmt.Errorf("%w: %s", ErrGenerationInFlight, id)
	}
	m.inFlight[id] = struct{}{}
	return nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}

// spawn runs the generation job on its own goroutine. The job carries
// its own bounded context: the HTTP request that started it has long
// since returned.
func (m *Manager) spawn(id string, hood types.Neighborhood, conversationID string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(id)

		ctx, cancel := context.WithTimeout(context.Background(), m.genTimeout)
		defer cancel()
		m.runJob(ctx, id, hood, conversationID)
	}()
}

func (m *Manager) runJob(ctx context.Context, id string, hood types.Neighborhood, conversationID string) {
	content, meta, err := m.composer.Compose(ctx, hood)

	n, loadErr := m.Get(ctx, id)
	if loadErr != nil {
		// deleted while generating; nothing to record the outcome on
		m.logger.Warn("newsletter vanished during generation",
			zap.String("newsletter_id", id), zap.Error(loadErr))
		return
	}

	n.UpdatedAt = time.Now().UTC()
	if err != nil {
		n.Status = types.StatusError
		n.ErrorMessage = err.Error()
		m.logger.Error("generation failed",
			zap.String("newsletter_id", id), zap.Error(err))
	} else {
		n.Status = types.StatusGenerated
		n.Content = content
		n.Metadata = meta
		n.ErrorMessage = ""
		m.logger.Info("generation completed",
			zap.String("newsletter_id", id),
			zap.Int("events", len(content.Events)),
			zap.String("verification", meta.VerificationStatus))
	}

	if putErr := m.store.Put(ctx, store.CollectionNewsletters, id, n); putErr != nil {
		m.logger.Error("persisting generation outcome failed",
			zap.String("newsletter_id", id), zap.Error(putErr))
		return
	}

	if err == nil && conversationID != "" {
		msg := types.Message{
			Role:    types.RoleAssistant,
			Content: fmt.Sprintf("Your %s newsletter for %s is ready to review.", hood.Frequency, hood.Title),
			Metadata: map[string]any{
				"newsletter_id": id,
				"events":        len(content.Events),
			},
		}
		if _, appendErr := m.conversations.AppendMessage(ctx, conversationID, msg); appendErr != nil {
			m.logger.Warn("progress message failed",
				zap.String("conversation_id", conversationID), zap.Error(appendErr))
		}
	}
}

// ApplyUpdate routes a user message against a generated newsletter and
// commits the resulting content under compare-and-swap. Decisions that
// target the chat rather than the newsletter leave it untouched.
func (m *Manager) ApplyUpdate(ctx context.Context, id, userMessage string) (*types.Newsletter, error) {
	for attempt := 0; attempt < m.updateRetries; attempt++ {
		n, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if n.Status != types.StatusGenerated {
			return nil, fmt.Errorf("%w: cannot update newsletter in %s", ErrInvalidState, n.Status)
		}

		var hood types.Neighborhood
		if err := m.store.Get(ctx, store.CollectionNeighborhoods, n.NeighborhoodID, &hood); err != nil {
			return nil, fmt.Errorf("loading neighborhood: %w", err)
		}

		decision := m.router.Decide(ctx, userMessage, router.Context{
			Postcode:      hood.Postcode,
			Frequency:     hood.Frequency,
			HasNewsletter: true,
		})

		updated, changed, err := m.applyDecision(ctx, n, hood, decision, userMessage)
		if err != nil {
			return nil, err
		}
		if !changed {
			m.logger.Debug("update routed to chat, content untouched",
				zap.String("newsletter_id", id),
				zap.String("action", string(decision.Action)))
			return n, nil
		}

		expected := n.Version
		updated.Version = expected + 1
		updated.UpdatedAt = time.Now().UTC()
		err = m.store.CompareAndSwap(ctx, store.CollectionNewsletters, id, expected, updated)
		if err == nil {
			m.logger.Info("update applied",
				zap.String("newsletter_id", id),
				zap.String("action", string(decision.Action)),
				zap.Int64("version", updated.Version))
			return updated, nil
		}
		if !errors.Is(err, store.ErrVersionMismatch) {
			return nil, fmt.Errorf("committing update: %w", err)
		}
		m.logger.Debug("update lost compare-and-swap race, retrying",
			zap.String("newsletter_id", id), zap.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, id, m.updateRetries)
}

// applyDecision mutates a copy of the newsletter per the routed action.
// changed=false means the decision does not touch content.
func (m *Manager) applyDecision(ctx context.Context, n *types.Newsletter, hood types.Neighborhood, decision types.ActionDecision, userMessage string) (*types.Newsletter, bool, error) {
	updated := *n

	switch decision.Action {
	case types.ActionChangeTone:
		tone, _ := decision.Parameters["tone"].(string)
		if tone == "" {
			tone = "friendly and informative"
		}
		content, err := m.composer.RewriteTone(ctx, updated.Content, tone)
		if err != nil {
			return nil, false, err
		}
		updated.Content = content
		return &updated, true, nil

	case types.ActionAddEvents:
		radius, _ := decision.Parameters["radius"].(float64)
		content, added, err := m.composer.AddEvents(ctx, updated.Content, hood, radius)
		if err != nil {
			return nil, false, err
		}
		if added == 0 {
			return &updated, false, nil
		}
		updated.Content = content
		updated.Metadata.SourceCount = countSources(content.Events)
		updated.Metadata.VerificationStatus = verificationStatus(content.Events)
		return &updated, true, nil

	case types.ActionDeleteEvents:
		criteria := stringSlice(decision.Parameters["criteria"])
		titles := stringSlice(decision.Parameters["titles"])
		content, removed := DeleteEvents(updated.Content, criteria, titles)
		if removed == 0 {
			return &updated, false, nil
		}
		updated.Content = content
		updated.Metadata.VerificationStatus = verificationStatus(content.Events)
		return &updated, true, nil

	case types.ActionChangeEvents, types.ActionCustomize:
		content, err := m.composer.Customize(ctx, updated.Content, userMessage)
		if err != nil {
			return nil, false, err
		}
		updated.Content = content
		return &updated, true, nil

	default:
		// chat, searches, scheduling, unknown: nothing to write
		return &updated, false, nil
	}
}

// Act accepts or rejects a generated newsletter and closes the owning
// conversation. Acting on a terminal newsletter fails rather than
// silently succeeding.
func (m *Manager) Act(ctx context.Context, id, action, feedback string) (*types.Newsletter, error) {
	var next types.NewsletterStatus
	switch action {
	case "accept":
		next = types.StatusAccepted
	case "reject":
		next = types.StatusRejected
	default:
		return nil, fmt.Errorf("unknown action %q, expected accept or reject", action)
	}

	n, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status.Terminal() {
		return nil, fmt.Errorf("%w: newsletter already %s", ErrInvalidState, n.Status)
	}
	if n.Status != types.StatusGenerated {
		return nil, fmt.Errorf("%w: cannot %s newsletter in %s", ErrInvalidState, action, n.Status)
	}

	expected := n.Version
	n.Status = next
	n.Version = expected + 1
	n.UpdatedAt = time.Now().UTC()
	if err := m.store.CompareAndSwap(ctx, store.CollectionNewsletters, id, expected, n); err != nil {
		if errors.Is(err, store.ErrVersionMismatch) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, id)
		}
		return nil, fmt.Errorf("committing %s: %w", action, err)
	}

	if n.ConversationID != "" {
		if feedback != "" {
			msg := types.Message{
				Role:     types.RoleUser,
				Content:  feedback,
				Metadata: map[string]any{"action": action},
			}
			if _, appendErr := m.conversations.AppendMessage(ctx, n.ConversationID, msg); appendErr != nil {
				m.logger.Warn("recording feedback failed",
					zap.String("conversation_id", n.ConversationID), zap.Error(appendErr))
			}
		}
		if closeErr := m.conversations.Close(ctx, n.ConversationID); closeErr != nil {
			m.logger.Warn("cascading conversation close failed",
				zap.String("conversation_id", n.ConversationID), zap.Error(closeErr))
		}
	}

	m.logger.Info("newsletter finalized",
		zap.String("newsletter_id", id),
		zap.String("status", string(next)))
	return n, nil
}

// Get loads a newsletter by id.
func (m *Manager) Get(ctx context.Context, id string) (*types.Newsletter, error) {
	var n types.Newsletter
	if err := m.store.Get(ctx, store.CollectionNewsletters, id, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// List returns newsletters, most recently updated first. neighborhoodID
// filters when non-empty.
func (m *Manager) List(ctx context.Context, neighborhoodID string) ([]*types.Newsletter, error) {
	docs, err := m.store.List(ctx, store.CollectionNewsletters)
	if err != nil {
		return nil, fmt.Errorf("listing newsletters: %w", err)
	}

	var result []*types.Newsletter
	for _, doc := range docs {
		var n types.Newsletter
		if err := json.Unmarshal(doc, &n); err != nil {
			m.logger.Warn("skipping undecodable newsletter", zap.Error(err))
			continue
		}
		if neighborhoodID == "" || n.NeighborhoodID == neighborhoodID {
			result = append(result, &n)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// Delete removes a newsletter. Explicit deletion is the only way a
// newsletter disappears.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, store.CollectionNewsletters, id)
}

// Wait blocks until every in-flight generation job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops new work and waits for running jobs.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
