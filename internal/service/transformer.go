package service

import (
	"fmt"
	"strings"
	"time"

	"guildmirror/internal/constants"
	"guildmirror/internal/models"
)

// Mode selects the attachment transformation policy.
type Mode string

const (
	// ModePlain treats all attachments uniformly: each is uploaded in
	// order, with declared-oversize items appended as trailing links.
	ModePlain Mode = "plain"
	// ModeMediaGrouped excludes animated images and prefixes the remaining
	// media with an author-identifying envelope. This is the canonical mode.
	ModeMediaGrouped Mode = "media-grouped"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePlain, ModeMediaGrouped:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown transformation mode %q", s)
	}
}

// Transformer converts one source message into its ordered outbound-unit
// group. It never mutates the source message.
type Transformer struct {
	mode        Mode
	uploadLimit int64
}

func NewTransformer(mode Mode, uploadLimitBytes int64) *Transformer {
	return &Transformer{
		mode:        mode,
		uploadLimit: uploadLimitBytes,
	}
}

// Transform yields the outbound units for msg: extracted short-video links
// first, then the text envelope, then attachments per the configured mode.
// A message with no text and no attachments yields no units at all.
func (t *Transformer) Transform(msg models.SourceMessage) []models.OutboundUnit {
	var units []models.OutboundUnit

	var kept []string
	for _, token := range strings.Fields(msg.TextContent) {
		if strings.Contains(token, constants.ShortVideoLinkDomain) {
			units = append(units, models.RawLink{URL: token})
			continue
		}
		kept = append(kept, token)
	}

	if body := strings.Join(kept, " "); body != "" {
		units = append(units, models.TextEnvelope{
			Author:          msg.AuthorDisplayName,
			AuthorIconURL:   msg.AuthorAvatarURL,
			Color:           msg.AuthorColor,
			Body:            body,
			FooterTimestamp: footerTimestamp(msg.CreatedAt),
		})
	}

	switch t.mode {
	case ModePlain:
		units = t.appendPlain(units, msg.Attachments)
	default:
		units = t.appendMediaGrouped(units, msg)
	}

	return units
}

func (t *Transformer) appendPlain(units []models.OutboundUnit, attachments []models.Attachment) []models.OutboundUnit {
	var oversize []string
	for _, att := range attachments {
		if t.oversize(att) {
			oversize = append(oversize, att.URL)
			continue
		}
		units = append(units, models.MediaAttachment{Attachment: att})
	}
	// All size-exceeded URLs trail in one unlabeled message.
	if len(oversize) > 0 {
		units = append(units, models.MediaLinkFallback{
			URL: strings.Join(oversize, "\n"),
		})
	}
	return units
}

func (t *Transformer) appendMediaGrouped(units []models.OutboundUnit, msg models.SourceMessage) []models.OutboundUnit {
	var media []models.Attachment
	for _, att := range msg.Attachments {
		// Animated images travel as extracted links, not uploads.
		if !att.IsAnimatedImage() {
			media = append(media, att)
		}
	}
	if len(media) == 0 {
		return units
	}

	// Author-only header so the media below stays attributable.
	units = append(units, models.TextEnvelope{
		Author:        msg.AuthorDisplayName,
		AuthorIconURL: msg.AuthorAvatarURL,
		Color:         msg.AuthorColor,
	})
	for _, att := range media {
		if t.oversize(att) {
			units = append(units, models.MediaLinkFallback{
				URL:   att.URL,
				Label: constants.OversizeFallbackLabel,
			})
			continue
		}
		units = append(units, models.MediaAttachment{Attachment: att})
	}
	return units
}

func (t *Transformer) oversize(att models.Attachment) bool {
	return att.SizeBytes > t.uploadLimit
}

// footerTimestamp shifts the creation time by a fixed +1 hour and renders it
// with the literal zone suffix the envelope footer carries.
func footerTimestamp(created time.Time) string {
	shifted := created.UTC().Add(time.Hour)
	return shifted.Format(constants.EnvelopeTimeLayout) + " UTC+1"
}
