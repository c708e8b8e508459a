package models

// OutboundUnit is one atomically-sendable piece derived from a single source
// message. Units from one message form an ordered group: the dispatcher must
// deliver them strictly in order.
type OutboundUnit interface {
	isOutboundUnit()
}

// TextEnvelope carries the message body framed with author identity. An
// envelope with an empty Body is an author-only header preceding a media
// group.
type TextEnvelope struct {
	Author          string
	AuthorIconURL   string
	Color           int
	Body            string
	FooterTimestamp string
}

// RawLink is a link extracted from the message text and sent bare so the
// target platform unfurls it.
type RawLink struct {
	URL string
}

// MediaAttachment is a file to be re-uploaded to the target.
type MediaAttachment struct {
	Attachment Attachment
}

// MediaLinkFallback replaces an attachment that cannot be uploaded; the
// original URL is posted instead.
type MediaLinkFallback struct {
	URL   string
	Label string
}

func (TextEnvelope) isOutboundUnit()      {}
func (RawLink) isOutboundUnit()           {}
func (MediaAttachment) isOutboundUnit()   {}
func (MediaLinkFallback) isOutboundUnit() {}
