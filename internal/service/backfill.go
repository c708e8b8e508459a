package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"guildmirror/internal/metrics"
	"guildmirror/internal/models"

	"github.com/sirupsen/logrus"
)

// ChannelState is the backfill progress of one source channel.
type ChannelState string

const (
	StateIdle     ChannelState = "idle"
	StateFetching ChannelState = "fetching"
	StateDraining ChannelState = "draining"
	StateDone     ChannelState = "done"
)

// BackfillScanner drains each in-scope source channel from its checkpoint to
// the present, one channel at a time. Each channel's Done gate closes once
// its drain finishes (or is abandoned on error), releasing live events held
// back by the relay for that channel.
type BackfillScanner struct {
	source   SourceClient
	pipeline *Pipeline
	store    CheckpointStore
	channels []string
	pageSize int
	pause    time.Duration
	logger   *logrus.Logger

	mu       sync.Mutex
	done     map[string]chan struct{}
	states   map[string]ChannelState
	finished bool
}

func NewBackfillScanner(source SourceClient, pipeline *Pipeline, store CheckpointStore, channels []string, pageSize int, pause time.Duration, logger *logrus.Logger) *BackfillScanner {
	return &BackfillScanner{
		source:   source,
		pipeline: pipeline,
		store:    store,
		channels: channels,
		pageSize: pageSize,
		pause:    pause,
		logger:   logger,
		done:     make(map[string]chan struct{}),
		states:   make(map[string]ChannelState),
	}
}

// Done returns a channel closed when the named source channel's backfill has
// finished. Safe to call before Run has seen the channel. Once the whole scan
// is over, every gate is open: channels the scan never scheduled (created
// after startup, or outside its snapshot) have nothing to wait for.
func (s *BackfillScanner) Done(channelName string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.doneLocked(channelName)
	if s.finished {
		closeGate(ch)
	}
	return ch
}

func (s *BackfillScanner) doneLocked(channelName string) chan struct{} {
	ch, ok := s.done[channelName]
	if !ok {
		ch = make(chan struct{})
		s.done[channelName] = ch
	}
	return ch
}

// ChannelStates is a snapshot of per-channel backfill progress.
func (s *BackfillScanner) ChannelStates() map[string]ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ChannelState, len(s.states))
	for name, state := range s.states {
		out[name] = state
	}
	return out
}

func (s *BackfillScanner) setState(channelName string, state ChannelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[channelName] = state
}

func (s *BackfillScanner) markDone(channelName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[channelName] = StateDone
	closeGate(s.doneLocked(channelName))
}

// finish opens every gate handed out so far and makes future gates start
// open. Runs even when the scan aborts early so live relay is never wedged
// behind a gate nobody will close.
func (s *BackfillScanner) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	for _, ch := range s.done {
		closeGate(ch)
	}
}

func closeGate(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Run performs the full scan. An error in one channel abandons that channel
// at its current cursor and moves on to the next; the gate still opens so
// live relay is never blocked forever.
func (s *BackfillScanner) Run(ctx context.Context) error {
	defer s.finish()

	refs, err := s.source.ListTextChannels(ctx)
	if err != nil {
		return err
	}

	selected := s.selectChannels(refs)

	for i, ref := range selected {
		s.setState(ref.Name, StateFetching)
		if err := s.drainChannel(ctx, ref); err != nil {
			if ctx.Err() != nil {
				s.markDone(ref.Name)
				return ctx.Err()
			}
			s.logger.WithFields(logrus.Fields{
				"channel": ref.Name,
				"error":   err.Error(),
			}).Error("Backfill halted for channel, cursor kept for next run")
		}
		s.markDone(ref.Name)

		if i < len(selected)-1 && s.pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pause):
			}
		}
	}

	s.logger.WithField("channels", len(selected)).Info("Backfill scan complete")
	return nil
}

// selectChannels maps configured names onto discovered channels, preserving
// the configured order. An empty configuration means every text channel, in
// discovery order. Configured names with no matching channel are marked done
// immediately so nothing waits on them.
func (s *BackfillScanner) selectChannels(refs []models.SourceChannelRef) []models.SourceChannelRef {
	if len(s.channels) == 0 {
		return refs
	}

	byName := make(map[string]models.SourceChannelRef, len(refs))
	for _, ref := range refs {
		byName[ref.Name] = ref
	}

	selected := make([]models.SourceChannelRef, 0, len(s.channels))
	for _, name := range s.channels {
		ref, ok := byName[name]
		if !ok {
			s.logger.WithField("channel", name).Warn("Configured channel not found in source guild, skipping")
			s.markDone(name)
			continue
		}
		selected = append(selected, ref)
	}
	return selected
}

// drainChannel pages history oldest-first from the stored cursor until a
// short page signals the channel is current. The cursor is re-read from the
// store each page, so progress made mid-page survives a failure.
func (s *BackfillScanner) drainChannel(ctx context.Context, ref models.SourceChannelRef) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		after, _ := s.store.Last(ref.ID)

		page, err := s.source.FetchHistory(ctx, ref.ID, after, s.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		s.setState(ref.Name, StateDraining)

		// Platform order is newest-first; relay oldest-first.
		sort.Slice(page, func(i, j int) bool {
			return page[j].ID.After(page[i].ID)
		})

		for _, msg := range page {
			if err := s.pipeline.Process(ctx, msg); err != nil {
				return err
			}
			metrics.IncrementCounter("backfill_messages", map[string]string{"channel": ref.Name}, "Messages relayed during backfill")
		}

		s.logger.WithFields(logrus.Fields{
			"channel":  ref.Name,
			"relayed":  len(page),
			"resumeAt": page[len(page)-1].ID,
		}).Info("Backfill page relayed")

		if len(page) < s.pageSize {
			return nil
		}
		s.setState(ref.Name, StateFetching)
	}
}
