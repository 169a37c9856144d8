package router

import (
	"context"
	"errors"
	"testing"

	"doorstep/internal/types"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestRuleDecisionsSkipLLM(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		wantAction types.Action
		wantTarget types.Target
	}{
		{"generate", "Please generate a newsletter for us", types.ActionGenerateNewsletter, types.TargetNewsletter},
		{"add events", "can you add more events?", types.ActionAddEvents, types.TargetNewsletter},
		{"change tone", "change the tone to something more casual", types.ActionChangeTone, types.TargetNewsletter},
		{"delete events", "remove expensive events please", types.ActionDeleteEvents, types.TargetNewsletter},
		{"search events", "what events are happening this week?", types.ActionSearchEvents, types.TargetChat},
		{"web search", "tell me about the new library opening hours", types.ActionSearchWeb, types.TargetChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeLLM{err: errors.New("must not be called")}
			r := New(client, 0.5, nil)

			d := r.Decide(context.Background(), tt.message, Context{Postcode: "E1 6LF"})
			if d.Action != tt.wantAction {
				t.Errorf("Action = %s, want %s", d.Action, tt.wantAction)
			}
			if d.Target != tt.wantTarget {
				t.Errorf("Target = %s, want %s", d.Target, tt.wantTarget)
			}
			if client.calls != 0 {
				t.Errorf("LLM consulted %d times for a confident rule match", client.calls)
			}
			if d.Reasoning == "" {
				t.Error("decision must carry reasoning")
			}
		})
	}
}

func TestGenerateDecisionExtractsFrequency(t *testing.T) {
	r := New(&fakeLLM{err: errors.New("unused")}, 0.5, nil)

	d := r.Decide(context.Background(), "create a monthly newsletter", Context{Postcode: "E1 6LF"})
	if d.Parameters["frequency"] != "Monthly" {
		t.Errorf("frequency = %v, want Monthly", d.Parameters["frequency"])
	}
	if d.Parameters["postcode"] != "E1 6LF" {
		t.Errorf("postcode = %v", d.Parameters["postcode"])
	}
}

func TestLLMFallbackForAmbiguousMessages(t *testing.T) {
	client := &fakeLLM{response: `{"action":"customize","target":"newsletter","parameters":{"section":"highlights"},"reasoning":"user wants the highlights reworked","confidence":0.82}`}
	r := New(client, 0.5, nil)

	d := r.Decide(context.Background(), "could you rework that middle bit a little", Context{HasNewsletter: true})
	if client.calls != 1 {
		t.Fatalf("expected one LLM call, got %d", client.calls)
	}
	if d.Action != types.ActionCustomize {
		t.Errorf("Action = %s, want customize", d.Action)
	}
	if d.Confidence != 0.82 {
		t.Errorf("Confidence = %v", d.Confidence)
	}
}

func TestLLMFailureFallsBackToRuleDecision(t *testing.T) {
	client := &fakeLLM{err: errors.New("api down")}
	r := New(client, 0.5, nil)

	d := r.Decide(context.Background(), "hmm, not sure about this", Context{})
	if d.Action != types.ActionChat {
		t.Errorf("Action = %s, want chat fallback", d.Action)
	}
	if d.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want rule fallback confidence", d.Confidence)
	}
}

func TestLLMGarbageFallsBackToRuleDecision(t *testing.T) {
	client := &fakeLLM{response: "I think you should probably customize it"}
	r := New(client, 0.5, nil)

	d := r.Decide(context.Background(), "do something clever", Context{})
	if d.Action != types.ActionChat {
		t.Errorf("Action = %s, want chat fallback", d.Action)
	}
}

func TestUnderconfidentDestructiveActionDegradesToChat(t *testing.T) {
	client := &fakeLLM{response: `{"action":"delete_events","target":"newsletter","reasoning":"maybe remove some","confidence":0.3}`}
	r := New(client, 0.5, nil)

	d := r.Decide(context.Background(), "maybe get rid of a few things?", Context{HasNewsletter: true})
	if d.Action != types.ActionChat {
		t.Errorf("Action = %s, want chat degradation", d.Action)
	}
	if d.Target != types.TargetChat {
		t.Errorf("Target = %s, want chat", d.Target)
	}
	if d.Parameters["declined_action"] != "delete_events" {
		t.Errorf("declined_action = %v", d.Parameters["declined_action"])
	}
}

func TestUnderconfidentNewsletterTargetDegradesToChat(t *testing.T) {
	tests := []struct {
		name     string
		response string
		declined string
	}{
		{
			"add events",
			`{"action":"add_events","target":"newsletter","reasoning":"maybe more events","confidence":0.3}`,
			"add_events",
		},
		{
			"generate",
			`{"action":"generate_newsletter","target":"newsletter","reasoning":"possibly a new issue","confidence":0.4}`,
			"generate_newsletter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&fakeLLM{response: tt.response}, 0.5, nil)

			d := r.Decide(context.Background(), "hmm, maybe do the thing?", Context{HasNewsletter: true})
			if d.Action != types.ActionChat {
				t.Errorf("Action = %s, want chat degradation", d.Action)
			}
			if d.Target != types.TargetChat {
				t.Errorf("Target = %s, want chat", d.Target)
			}
			if d.Parameters["declined_action"] != tt.declined {
				t.Errorf("declined_action = %v, want %s", d.Parameters["declined_action"], tt.declined)
			}
		})
	}
}

func TestUnderconfidentChatTargetActionPassesThrough(t *testing.T) {
	client := &fakeLLM{response: `{"action":"search_web","target":"chat","reasoning":"look it up","confidence":0.3}`}
	r := New(client, 0.5, nil)

	d := r.Decide(context.Background(), "hmm", Context{})
	if d.Action != types.ActionSearchWeb {
		t.Errorf("Action = %s, want search_web to pass through", d.Action)
	}
}

func TestUnknownLLMActionMapsToChat(t *testing.T) {
	client := &fakeLLM{response: `{"action":"launch_rockets","target":"system","reasoning":"?","confidence":0.9}`}
	r := New(client, 0.5, nil)

	d := r.Decide(context.Background(), "gibberish request", Context{})
	if d.Action != types.ActionChat {
		t.Errorf("Action = %s, want chat for unrecognised action", d.Action)
	}
}
