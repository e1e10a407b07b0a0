package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Source is everything the relay needs from a probe.
type Source interface {
	Sampler
	Controller
	Name() string
	Changes() <-chan struct{}
}

// Options tune the relay.
type Options struct {
	Interval         time.Duration
	DeliveryBudget   time.Duration
	SubscriberBuffer int
}

// Service wires the poller, detector, registry and dispatcher together.
type Service struct {
	source     Source
	registry   *Registry
	dispatcher *Dispatcher
	poller     *Poller
	commands   *Commands
	buffer     int
	logger     *zap.Logger
}

func NewService(source Source, opts Options, logger *zap.Logger) *Service {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, opts.DeliveryBudget, logger.Named("dispatch"))

	return &Service{
		source:     source,
		registry:   registry,
		dispatcher: dispatcher,
		poller:     NewPoller(source, dispatcher, opts.Interval, source.Changes(), logger.Named("poll")),
		commands:   NewCommands(source),
		buffer:     opts.SubscriberBuffer,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.poller.Run(ctx)
}

// Commands returns the control surface.
func (s *Service) Commands() *Commands {
	return s.commands
}

// Subscribe registers a new subscriber with the default buffer.
func (s *Service) Subscribe() *Subscription {
	return s.SubscribeBuffered(s.buffer)
}

// SubscribeBuffered registers a new subscriber whose sink holds up to buffer
// undelivered updates.
func (s *Service) SubscribeBuffered(buffer int) *Subscription {
	sink := NewChannelSink(buffer)
	sub, latest := s.registry.Register(sink)
	latest.Initial = true

	s.logger.Debug("subscriber registered",
		zap.String("subscriber_id", string(sub.ID)),
		zap.Uint64("seq", latest.Seq),
		zap.Int("subscribers", s.registry.Len()))

	return newSubscription(s.registry, sub, sink, latest)
}

// Latest returns the most recently published update.
func (s *Service) Latest() Update {
	return s.registry.Latest()
}

// Diagnostics is a point-in-time view of relay state.
type Diagnostics struct {
	Provider    string        `json:"provider"`
	Subscribers int           `json:"subscribers"`
	Epoch       uint64        `json:"epoch"`
	Ticks       uint64        `json:"ticks"`
	LatestSeq   uint64        `json:"latest_seq"`
	Stats       DispatchStats `json:"stats"`
}

func (s *Service) Diagnostics() Diagnostics {
	return Diagnostics{
		Provider:    s.source.Name(),
		Subscribers: s.registry.Len(),
		Epoch:       s.poller.Epoch(),
		Ticks:       s.poller.Ticks(),
		LatestSeq:   s.registry.Latest().Seq,
		Stats:       s.dispatcher.Stats(),
	}
}
