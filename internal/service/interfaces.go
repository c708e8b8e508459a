package service

import (
	"context"

	"guildmirror/internal/models"
)

// SourceClient is the platform capability on the source side. FetchHistory
// returns a bounded page of messages strictly after the given cursor,
// newest-first (platform order); Events streams new messages as they occur.
type SourceClient interface {
	ListTextChannels(ctx context.Context) ([]models.SourceChannelRef, error)
	FetchHistory(ctx context.Context, channel models.ChannelID, after models.MessageID, limit int) ([]models.SourceMessage, error)
	Events() <-chan models.SourceMessage
	SelfID() string
}

// TargetClient is the platform capability on the target side.
// FindChannelByName returns nil when no channel matches.
type TargetClient interface {
	FindChannelByName(ctx context.Context, name string) (*models.TargetChannelRef, error)
	CreateTextChannel(ctx context.Context, name string) (models.TargetChannelRef, error)
	SendEnvelope(ctx context.Context, channel models.TargetChannelRef, env models.TextEnvelope) error
	SendFile(ctx context.Context, channel models.TargetChannelRef, att models.Attachment) error
	SendLink(ctx context.Context, channel models.TargetChannelRef, url string) error
}

// CheckpointStore is the durable cursor mapping. Advance must be a monotonic
// max per channel; Last exposes the in-memory cursor for staleness checks.
type CheckpointStore interface {
	Load(ctx context.Context) (map[models.ChannelID]models.MessageID, error)
	Advance(ctx context.Context, channel models.ChannelID, id models.MessageID) error
	Last(channel models.ChannelID) (models.MessageID, bool)
}
