package service

import (
	"context"
	"fmt"
	"time"

	"guildmirror/internal/constants"
	apperrors "guildmirror/internal/errors"
	"guildmirror/internal/metrics"
	"guildmirror/internal/models"
	"guildmirror/internal/retry"

	"github.com/sirupsen/logrus"
)

// Dispatcher sends outbound-unit groups to the target platform, strictly in
// order. Oversized uploads are downgraded in place to link fallbacks;
// transient delivery errors are retried with backoff; any other error aborts
// the rest of the group so the caller keeps the checkpoint where it is.
type Dispatcher struct {
	target        TargetClient
	backoff       *retry.Backoff
	oplog         *opLog
	logger        *logrus.Logger
	slowThreshold time.Duration
}

func NewDispatcher(target TargetClient, backoff *retry.Backoff, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		target:        target,
		backoff:       backoff,
		oplog:         newOpLog(constants.OpLogCapacity),
		logger:        logger,
		slowThreshold: constants.SlowMessageThresholdSec * time.Second,
	}
}

// Deliver sends the unit group derived from msg to channel.
func (d *Dispatcher) Deliver(ctx context.Context, channel models.TargetChannelRef, msg models.SourceMessage, units []models.OutboundUnit) error {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.RecordTimer("dispatch_group_duration", elapsed, map[string]string{"channel": channel.Name}, "Wall-clock time to dispatch one message's unit group")
		if elapsed > d.slowThreshold {
			d.logger.WithFields(logrus.Fields{
				"messageId": msg.ID,
				"channel":   channel.Name,
				"elapsed":   elapsed,
			}).Warn("Message took too long to dispatch, recent operations follow")
			for _, op := range d.oplog.Recent(constants.OpLogRecentCount) {
				d.logger.Warn(op)
			}
		}
	}()

	d.oplog.Record(fmt.Sprintf("processing message %s from %s", msg.ID, msg.AuthorDisplayName))

	for i, unit := range units {
		if err := d.sendUnit(ctx, channel, unit); err != nil {
			metrics.IncrementCounter("dispatch_failures", map[string]string{"channel": channel.Name}, "Unit groups aborted by a delivery error")
			return fmt.Errorf("unit %d/%d of message %s: %w", i+1, len(units), msg.ID, err)
		}
	}

	metrics.IncrementCounter("messages_dispatched", map[string]string{"channel": channel.Name}, "Unit groups fully delivered")
	return nil
}

func (d *Dispatcher) sendUnit(ctx context.Context, channel models.TargetChannelRef, unit models.OutboundUnit) error {
	switch u := unit.(type) {
	case models.TextEnvelope:
		d.oplog.Record(fmt.Sprintf("sending envelope to %s", channel.Name))
		return d.withRetry(ctx, func() error {
			return d.target.SendEnvelope(ctx, channel, u)
		})

	case models.RawLink:
		d.oplog.Record(fmt.Sprintf("sending link %s to %s", u.URL, channel.Name))
		return d.withRetry(ctx, func() error {
			return d.target.SendLink(ctx, channel, u.URL)
		})

	case models.MediaAttachment:
		d.oplog.Record(fmt.Sprintf("uploading %s to %s", u.Attachment.Filename, channel.Name))
		err := d.withRetry(ctx, func() error {
			return d.target.SendFile(ctx, channel, u.Attachment)
		})
		if err != nil && apperrors.IsCode(err, apperrors.ErrCodeTooLarge) {
			d.logger.WithFields(logrus.Fields{
				"filename": u.Attachment.Filename,
				"url":      u.Attachment.URL,
			}).Warn("Attachment exceeds upload limit, sending link instead")
			metrics.IncrementCounter("media_downgrades", map[string]string{"channel": channel.Name}, "Uploads downgraded to link fallbacks")
			return d.sendUnit(ctx, channel, models.MediaLinkFallback{
				URL:   u.Attachment.URL,
				Label: constants.OversizeFallbackLabel,
			})
		}
		return err

	case models.MediaLinkFallback:
		d.oplog.Record(fmt.Sprintf("sending fallback link %s to %s", u.URL, channel.Name))
		content := u.URL
		if u.Label != "" {
			content = u.Label + " " + u.URL
		}
		return d.withRetry(ctx, func() error {
			return d.target.SendLink(ctx, channel, content)
		})

	default:
		return fmt.Errorf("unknown outbound unit type %T", unit)
	}
}

func (d *Dispatcher) withRetry(ctx context.Context, operation func() error) error {
	return d.backoff.RetryWithPredicate(ctx, operation, apperrors.IsRetryable)
}
