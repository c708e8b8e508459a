package service

import (
	"context"
	"fmt"
	"sync"

	"guildmirror/internal/models"

	"github.com/sirupsen/logrus"
)

// Resolver maps a source channel to its target counterpart, creating the
// target channel when absent. The mapping is cached in memory and persisted
// implicitly through the target platform's own naming, so it is
// rediscoverable by name if the cache is lost.
type Resolver struct {
	target TargetClient
	logger *logrus.Logger

	mu    sync.Mutex
	cache map[models.ChannelID]models.TargetChannelRef
}

func NewResolver(target TargetClient, logger *logrus.Logger) *Resolver {
	return &Resolver{
		target: target,
		logger: logger,
		cache:  make(map[models.ChannelID]models.TargetChannelRef),
	}
}

// Resolve is idempotent: once a target exists for src, repeated calls return
// it without issuing duplicate create requests. The lock spans lookup and
// create so two callers cannot race into creating the same channel twice.
func (r *Resolver) Resolve(ctx context.Context, src models.SourceChannelRef) (models.TargetChannelRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ref, ok := r.cache[src.ID]; ok {
		return ref, nil
	}

	found, err := r.target.FindChannelByName(ctx, src.Name)
	if err != nil {
		return models.TargetChannelRef{}, fmt.Errorf("looking up target channel %q: %w", src.Name, err)
	}
	if found != nil {
		r.cache[src.ID] = *found
		return *found, nil
	}

	r.logger.WithField("channel", src.Name).Info("Creating target channel")
	created, err := r.target.CreateTextChannel(ctx, src.Name)
	if err != nil {
		return models.TargetChannelRef{}, fmt.Errorf("creating target channel %q: %w", src.Name, err)
	}
	r.cache[src.ID] = created
	return created, nil
}
