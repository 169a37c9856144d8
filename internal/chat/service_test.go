package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doorstep/internal/conversation"
	"doorstep/internal/newsletter"
	"doorstep/internal/router"
	"doorstep/internal/search"
	"doorstep/internal/store"
	"doorstep/internal/tools"
	"doorstep/internal/types"
	"doorstep/internal/verify"
)

type scriptedLLM struct {
	chatErr error
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return "generated text", nil
}

func (s *scriptedLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	switch {
	case strings.Contains(system, "extract local events"):
		return `[{"event_title":"Summer Fair","date":"14 June","location":"Victoria Park","candidate_url":"https://src.example/fair"}]`, nil
	case strings.Contains(system, "editorial sections"):
		return `{"welcome_message":"Hello neighbours!","community_updates":[],"newsletter_highlights":[]}`, nil
	case strings.Contains(system, "web search assistant"):
		return `[{"url":"https://example.com","title":"Result","description":"info"}]`, nil
	case strings.Contains(system, "classify user requests"):
		return `{"action":"chat","target":"chat","reasoning":"small talk","confidence":0.9}`, nil
	case strings.Contains(system, "newsletter service"):
		if s.chatErr != nil {
			return "", s.chatErr
		}
		return "Happy to help!", nil
	}
	return "", errors.New("unexpected system prompt: " + system[:30])
}

type fixedProvider struct{}

func (fixedProvider) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	return []search.Result{{URL: "https://listings.example", Title: "Listings", Description: "events"}}, nil
}

type mapFetcher struct{}

func (mapFetcher) FetchText(ctx context.Context, url string) (string, error) {
	if url == "https://src.example/fair" {
		return "Summer Fair on 14 June at Victoria Park", nil
	}
	return "", errors.New("fetch failed")
}

type env struct {
	service       *Service
	conversations *conversation.Manager
	newsletters   *newsletter.Manager
	hood          types.Neighborhood
	llm           *scriptedLLM
}

func newEnv(t *testing.T) *env {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":200,"result":{"postcode":"E1 6LF","admin_district":"Tower Hamlets","region":"London"}}`))
	}))
	t.Cleanup(server.Close)
	postcodes := search.NewPostcodeClientWithBaseURL(server.URL, 5*time.Second)

	client := &scriptedLLM{}
	provider := fixedProvider{}
	finder := search.NewEventFinder(provider, postcodes, client, 1, nil)
	gate := verify.NewGate(mapFetcher{}, provider, 1, nil)
	composer := newsletter.NewComposer(finder, gate, postcodes, client, nil)

	s := store.NewMemory()
	convs := conversation.NewManager(s, nil)
	r := router.New(client, 0.5, nil)
	newsletters := newsletter.NewManager(s, convs, composer, r, 3, time.Minute, nil)
	t.Cleanup(newsletters.Close)

	registry := tools.NewRegistry(nil)
	tools.RegisterBuiltins(registry, tools.Deps{Provider: provider, Events: finder, LLM: client})
	executor := tools.NewExecutor(registry, 5*time.Second, nil)

	hood := types.Neighborhood{
		ID:        types.NewID(),
		Title:     "Whitechapel",
		Postcode:  "E1 6LF",
		Frequency: types.FrequencyWeekly,
		Radius:    2,
	}
	require.NoError(t, s.Create(context.Background(), store.CollectionNeighborhoods, hood.ID, hood))

	return &env{
		service:       NewService(s, convs, newsletters, r, executor, client, nil),
		conversations: convs,
		newsletters:   newsletters,
		hood:          hood,
		llm:           client,
	}
}

func TestSendPersistsBothSides(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	conv, err := e.conversations.Create(ctx, e.hood.ID)
	require.NoError(t, err)

	reply, err := e.service.Send(ctx, conv.ID, "hello there")
	require.NoError(t, err)
	assert.Equal(t, types.ActionChat, reply.Decision.Action)
	assert.Equal(t, "Happy to help!", reply.Message.Content)
	assert.Equal(t, "chat", reply.Message.Metadata["action"])

	loaded, err := e.conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, types.RoleUser, loaded.Messages[0].Role)
	assert.Equal(t, "hello there", loaded.Messages[0].Content)
	assert.Equal(t, types.RoleAssistant, loaded.Messages[1].Role)
}

func TestSendGenerateStartsNewsletter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	conv, err := e.conversations.Create(ctx, e.hood.ID)
	require.NoError(t, err)

	reply, err := e.service.Send(ctx, conv.ID, "please generate a newsletter")
	require.NoError(t, err)
	require.NotEmpty(t, reply.NewsletterID)
	assert.Equal(t, types.ActionGenerateNewsletter, reply.Decision.Action)

	e.newsletters.Wait()

	n, err := e.newsletters.Get(ctx, reply.NewsletterID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusGenerated, n.Status)
	assert.Equal(t, conv.ID, n.ConversationID)

	// user turn + "working on it" + generation-complete announcement
	loaded, err := e.conversations.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 3)
	assert.Equal(t, reply.NewsletterID, loaded.NewsletterID)
}

func TestSendUpdateRoutesToLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	conv, err := e.conversations.Create(ctx, e.hood.ID)
	require.NoError(t, err)

	reply, err := e.service.Send(ctx, conv.ID, "generate a newsletter")
	require.NoError(t, err)
	e.newsletters.Wait()

	before, err := e.newsletters.Get(ctx, reply.NewsletterID)
	require.NoError(t, err)

	updateReply, err := e.service.Send(ctx, conv.ID, "remove any events please")
	require.NoError(t, err)
	assert.Equal(t, types.ActionDeleteEvents, updateReply.Decision.Action)

	after, err := e.newsletters.Get(ctx, reply.NewsletterID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after.Version, before.Version)
}

func TestSendSearchReturnsToolResult(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	conv, err := e.conversations.Create(ctx, e.hood.ID)
	require.NoError(t, err)

	reply, err := e.service.Send(ctx, conv.ID, "what events are happening this weekend?")
	require.NoError(t, err)
	assert.Equal(t, types.ActionSearchEvents, reply.Decision.Action)
	require.NotNil(t, reply.ToolResult)
	assert.True(t, reply.ToolResult.Success)
	assert.Equal(t, "event_search", reply.ToolResult.Tool)
}

func TestSendToClosedConversationFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	conv, err := e.conversations.Create(ctx, e.hood.ID)
	require.NoError(t, err)
	require.NoError(t, e.conversations.Close(ctx, conv.ID))

	_, err = e.service.Send(ctx, conv.ID, "hello?")
	assert.ErrorIs(t, err, conversation.ErrClosed)
}

func TestChatDegradesWhenModelUnavailable(t *testing.T) {
	e := newEnv(t)
	e.llm.chatErr = errors.New("api down")
	ctx := context.Background()
	conv, err := e.conversations.Create(ctx, e.hood.ID)
	require.NoError(t, err)

	reply, err := e.service.Send(ctx, conv.ID, "hey")
	require.NoError(t, err)
	assert.Contains(t, reply.Message.Content, "I can generate a newsletter")
}
