package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"doorstep/internal/types"
)

type scriptedProvider struct {
	queries []string
	results []Result
	err     error
}

func (s *scriptedProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

func postcodeServer(t *testing.T) *PostcodeClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":200,"result":{"postcode":"E1 6LF","admin_district":"Tower Hamlets","region":"London","latitude":51.517,"longitude":-0.073}}`))
	}))
	t.Cleanup(server.Close)

	client := NewPostcodeClient(5 * time.Second)
	client.baseURL = server.URL
	return client
}

func TestEventFinderDeduplicatesByTitle(t *testing.T) {
	provider := &scriptedProvider{results: []Result{{URL: "https://events.example", Title: "listings"}}}
	client := &fakeLLM{response: `[
		{"event_title":"Summer Fair","date":"14 June","location":"Victoria Park","candidate_url":"https://events.example/fair"},
		{"event_title":"summer  fair","date":"14 June","location":"Victoria Park","candidate_url":"https://mirror.example/fair"},
		{"event_title":"Book Club","date":"16 June","location":"Library","candidate_url":"https://events.example/books"}
	]`}

	finder := NewEventFinder(provider, postcodeServer(t), client, 2, nil)
	drafts, err := finder.Find(context.Background(), "E1 6LF", 10, types.FrequencyWeekly)
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 deduplicated drafts, got %d", len(drafts))
	}
	if drafts[0].Title != "Summer Fair" {
		t.Errorf("first occurrence should win, got %q", drafts[0].Title)
	}
}

func TestEventFinderWidensRadius(t *testing.T) {
	provider := &scriptedProvider{results: []Result{{URL: "https://events.example", Title: "listings"}}}
	client := &fakeLLM{response: `[{"event_title":"Quiz Night","date":"19 June","location":"The Crown","candidate_url":"https://events.example/quiz"}]`}

	finder := NewEventFinder(provider, postcodeServer(t), client, 5, nil)
	drafts, err := finder.Find(context.Background(), "E1 6LF", 10, types.FrequencyMonthly)
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	// one distinct event: every widening attempt runs
	if len(provider.queries) != maxWidenAttempts {
		t.Errorf("expected %d attempts, got %d", maxWidenAttempts, len(provider.queries))
	}
	if len(drafts) != 1 {
		t.Errorf("expected the single distinct draft, got %d", len(drafts))
	}
	// the resolved district drives the query, not the raw postcode
	for _, q := range provider.queries {
		if !strings.Contains(q, "Tower Hamlets") {
			t.Errorf("query %q does not use resolved area", q)
		}
		if !strings.Contains(q, "this month") {
			t.Errorf("query %q does not carry the monthly window", q)
		}
	}
}

func TestEventFinderErrorsWhenEveryAttemptFails(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("search backend down")}
	client := &fakeLLM{err: errors.New("unused")}

	finder := NewEventFinder(provider, postcodeServer(t), client, 5, nil)
	drafts, err := finder.Find(context.Background(), "E1 6LF", 10, types.FrequencyWeekly)
	if err == nil {
		t.Fatal("expected an error when no attempt produced anything")
	}
	if !strings.Contains(err.Error(), "search backend down") {
		t.Errorf("error should carry the underlying cause, got %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("expected no drafts, got %d", len(drafts))
	}
	if len(provider.queries) != maxWidenAttempts {
		t.Errorf("expected %d attempts before giving up, got %d", maxWidenAttempts, len(provider.queries))
	}
}

func TestEventFinderQuietAreaIsNotAnError(t *testing.T) {
	provider := &scriptedProvider{} // searches succeed but return nothing

	finder := NewEventFinder(provider, postcodeServer(t), &fakeLLM{err: errors.New("unused")}, 5, nil)
	drafts, err := finder.Find(context.Background(), "E1 6LF", 10, types.FrequencyWeekly)
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("expected an empty result, got %d drafts", len(drafts))
	}
}
