package service

import (
	"context"
	"fmt"

	"guildmirror/internal/models"
	"guildmirror/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Pipeline is the shared per-message path: resolve the target channel,
// transform into outbound units, dispatch the group, then advance the
// checkpoint. Both the backfill scanner and the live relay run every message
// through it, which keeps the at-least-once contract in one place: the
// cursor moves only after the full group is dispatched.
type Pipeline struct {
	resolver    *Resolver
	transformer *Transformer
	dispatcher  *Dispatcher
	store       CheckpointStore
}

func NewPipeline(resolver *Resolver, transformer *Transformer, dispatcher *Dispatcher, store CheckpointStore) *Pipeline {
	return &Pipeline{
		resolver:    resolver,
		transformer: transformer,
		dispatcher:  dispatcher,
		store:       store,
	}
}

// Process relays one message. On error the checkpoint is left untouched so a
// rerun redelivers exactly this message. A message producing zero units
// still advances the checkpoint.
func (p *Pipeline) Process(ctx context.Context, msg models.SourceMessage) error {
	ctx, span := tracing.StartSpan(ctx, "pipeline.process",
		attribute.String("message.id", string(msg.ID)),
		attribute.String("channel.id", string(msg.ChannelID)),
	)
	defer span.End()

	target, err := p.resolver.Resolve(ctx, models.SourceChannelRef{ID: msg.ChannelID, Name: msg.ChannelName})
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("resolving channel %q: %w", msg.ChannelName, err)
	}

	units := p.transformer.Transform(msg)
	if len(units) > 0 {
		if err := p.dispatcher.Deliver(ctx, target, msg, units); err != nil {
			tracing.RecordError(ctx, err)
			return err
		}
	}

	if err := p.store.Advance(ctx, msg.ChannelID, msg.ID); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("advancing checkpoint: %w", err)
	}
	return nil
}
