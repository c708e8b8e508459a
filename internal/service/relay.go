package service

import (
	"context"

	"guildmirror/internal/metrics"
	"guildmirror/internal/models"

	"github.com/sirupsen/logrus"
)

// backfillGate lets the relay hold live events for a channel until that
// channel's backfill has passed them.
type backfillGate interface {
	Done(channelName string) <-chan struct{}
}

// LiveRelay consumes the source event stream and runs each in-scope message
// through the pipeline. Events for a channel still being backfilled are held
// until the scanner releases that channel; events the backfill already
// covered are discarded by cursor comparison, so the two paths never
// double-deliver.
type LiveRelay struct {
	source   SourceClient
	pipeline *Pipeline
	store    CheckpointStore
	gate     backfillGate
	channels map[string]struct{}
	logger   *logrus.Logger
}

func NewLiveRelay(source SourceClient, pipeline *Pipeline, store CheckpointStore, gate backfillGate, channels []string, logger *logrus.Logger) *LiveRelay {
	scope := make(map[string]struct{}, len(channels))
	for _, name := range channels {
		scope[name] = struct{}{}
	}
	return &LiveRelay{
		source:   source,
		pipeline: pipeline,
		store:    store,
		gate:     gate,
		channels: scope,
		logger:   logger,
	}
}

// Run consumes events until ctx is cancelled or the event stream closes.
// A failed message is logged and skipped; the stream keeps flowing.
func (r *LiveRelay) Run(ctx context.Context) error {
	events := r.source.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-events:
			if !ok {
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *LiveRelay) handle(ctx context.Context, msg models.SourceMessage) {
	if msg.AuthorID == r.source.SelfID() {
		return
	}
	if !r.inScope(msg.ChannelName) {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-r.gate.Done(msg.ChannelName):
	}

	// Backfill may have relayed this message already.
	if last, ok := r.store.Last(msg.ChannelID); ok && !msg.ID.After(last) {
		metrics.IncrementCounter("live_duplicates_discarded", map[string]string{"channel": msg.ChannelName}, "Live events already covered by backfill")
		if err := r.store.Advance(ctx, msg.ChannelID, msg.ID); err != nil {
			r.logger.WithFields(logrus.Fields{
				"messageId": msg.ID,
				"channel":   msg.ChannelName,
			}).WithError(err).Warn("Failed to advance checkpoint for duplicate event")
		}
		return
	}

	if err := r.pipeline.Process(ctx, msg); err != nil {
		r.logger.WithFields(logrus.Fields{
			"messageId": msg.ID,
			"channel":   msg.ChannelName,
			"author":    msg.AuthorDisplayName,
		}).WithError(err).Error("Failed to relay live message")
		return
	}
	metrics.IncrementCounter("live_messages", map[string]string{"channel": msg.ChannelName}, "Messages relayed from the live stream")
}

// inScope reports whether the channel is configured for replication. An
// empty configuration means every channel is in scope.
func (r *LiveRelay) inScope(channelName string) bool {
	if len(r.channels) == 0 {
		return true
	}
	_, ok := r.channels[channelName]
	return ok
}
