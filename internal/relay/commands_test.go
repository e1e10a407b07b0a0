package relay

import (
	"context"
	"testing"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
	"github.com/dgnsrekt/stagehand-relay/internal/probe"
)

type stubController struct {
	result probe.CommandResult
	status media.Status
	calls  []string
}

func (s *stubController) record(name string) probe.CommandResult {
	s.calls = append(s.calls, name)
	return s.result
}

func (s *stubController) Play(context.Context) probe.CommandResult     { return s.record("play") }
func (s *stubController) Pause(context.Context) probe.CommandResult    { return s.record("pause") }
func (s *stubController) Next(context.Context) probe.CommandResult     { return s.record("next") }
func (s *stubController) Previous(context.Context) probe.CommandResult { return s.record("previous") }
func (s *stubController) LastStatus() media.Status                     { return s.status }

func TestCommandsPassThrough(t *testing.T) {
	ctrl := &stubController{
		result: probe.CommandResult{Success: false, Message: "no active endpoint"},
		status: media.StatusPaused,
	}
	c := NewCommands(ctrl)
	ctx := context.Background()

	for _, fn := range []func(context.Context) probe.CommandResult{c.Play, c.Pause, c.Next, c.Previous} {
		res := fn(ctx)
		if res.Success || res.Message != "no active endpoint" {
			t.Errorf("result = %+v, want failure passed through verbatim", res)
		}
	}

	want := []string{"play", "pause", "next", "previous"}
	for i := range want {
		if ctrl.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, ctrl.calls[i], want[i])
		}
	}

	if c.Status() != media.StatusPaused {
		t.Errorf("Status = %s, want paused", c.Status())
	}
}
