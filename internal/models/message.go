package models

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ChannelID identifies a channel on either platform side.
type ChannelID string

// MessageID is a snowflake: an opaque numeric identifier whose numeric order
// matches creation order within a channel. It doubles as the checkpoint
// cursor and the dedup key.
type MessageID string

// After reports whether id was created after other. Snowflakes compare
// numerically; they carry no leading zeros, so unparseable values fall back
// to length-then-lexicographic order.
func (id MessageID) After(other MessageID) bool {
	a, errA := strconv.ParseUint(string(id), 10, 64)
	b, errB := strconv.ParseUint(string(other), 10, 64)
	if errA == nil && errB == nil {
		return a > b
	}
	if len(id) != len(other) {
		return len(id) > len(other)
	}
	return string(id) > string(other)
}

// SourceChannelRef is a handle to a channel in the source guild. The tagged
// type keeps the resolver's mapping direction compile-checked.
type SourceChannelRef struct {
	ID   ChannelID
	Name string
}

// TargetChannelRef is a handle to a channel in the target guild.
type TargetChannelRef struct {
	ID   ChannelID
	Name string
}

// Attachment describes one file attached to a source message.
type Attachment struct {
	URL       string
	Filename  string
	SizeBytes int64
}

// IsAnimatedImage reports whether the attachment is an animated image by
// extension (.gif/.gifv).
func (a Attachment) IsAnimatedImage() bool {
	ext := strings.ToLower(filepath.Ext(a.Filename))
	return ext == ".gif" || ext == ".gifv"
}

// SourceMessage is one message fetched from the source platform. It is
// immutable once fetched; transformation splits it into outbound units
// without mutating it.
type SourceMessage struct {
	ID                MessageID
	ChannelID         ChannelID
	ChannelName       string
	AuthorID          string
	AuthorDisplayName string
	AuthorAvatarURL   string
	AuthorColor       int
	CreatedAt         time.Time
	TextContent       string
	Attachments       []Attachment
}
