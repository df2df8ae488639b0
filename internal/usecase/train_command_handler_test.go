package usecase

import (
	"context"
	"testing"

	"PriceAgent/pkg/retry"
)

type countingTrigger struct {
	calls int
}

func (c *countingTrigger) TriggerTraining() bool {
	c.calls++
	return c.calls == 1
}

func TestTrainCommandHandler(t *testing.T) {
	trig := &countingTrigger{}
	h := NewTrainCommandHandler("agent.commands", trig, nil)
	if h.Topic() != "agent.commands" {
		t.Fatalf("unexpected topic %s", h.Topic())
	}

	ctx := context.Background()
	if err := h.Handle(ctx, []byte(`{"command":"train","requested_by":"ops"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := h.Handle(ctx, []byte(`{"command":"train"}`)); err != nil {
		t.Fatalf("busy agent is not an error: %v", err)
	}
	if trig.calls != 2 {
		t.Fatalf("expected 2 triggers, got %d", trig.calls)
	}
}

func TestTrainCommandHandlerRejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `train`,
		"missing command": `{"requested_by":"ops"}`,
		"unknown command": `{"command":"delete"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			trig := &countingTrigger{}
			err := NewTrainCommandHandler("agent.commands", trig, nil).Handle(context.Background(), []byte(body))
			if !retry.IsPermanent(err) {
				t.Fatalf("expected permanent error, got %v", err)
			}
			if trig.calls != 0 {
				t.Fatalf("trigger must not run")
			}
		})
	}
}
