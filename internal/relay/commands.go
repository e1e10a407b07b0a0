package relay

import (
	"context"

	"github.com/dgnsrekt/stagehand-relay/internal/media"
	"github.com/dgnsrekt/stagehand-relay/internal/probe"
)

// Controller is the probe surface used for commands.
type Controller interface {
	Play(ctx context.Context) probe.CommandResult
	Pause(ctx context.Context) probe.CommandResult
	Next(ctx context.Context) probe.CommandResult
	Previous(ctx context.Context) probe.CommandResult
	LastStatus() media.Status
}

// Commands forwards control requests to the probe. Results pass through
// unchanged and never touch the broadcast state; the next sample reflects
// whatever the player did.
type Commands struct {
	controller Controller
}

func NewCommands(controller Controller) *Commands {
	return &Commands{controller: controller}
}

func (c *Commands) Play(ctx context.Context) probe.CommandResult {
	return c.controller.Play(ctx)
}

func (c *Commands) Pause(ctx context.Context) probe.CommandResult {
	return c.controller.Pause(ctx)
}

func (c *Commands) Next(ctx context.Context) probe.CommandResult {
	return c.controller.Next(ctx)
}

func (c *Commands) Previous(ctx context.Context) probe.CommandResult {
	return c.controller.Previous(ctx)
}

// Status returns the playback status of the most recent sample.
func (c *Commands) Status() media.Status {
	return c.controller.LastStatus()
}
