package discord

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"guildmirror/internal/constants"
	apperrors "guildmirror/internal/errors"
	"guildmirror/internal/models"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// Client is the discord implementation of both the source and target
// platform capabilities. A single gateway session covers both guilds; REST
// calls carry the caller's context.
type Client struct {
	session       *discordgo.Session
	logger        *logrus.Logger
	sourceGuildID string
	targetGuildID string
	events        chan models.SourceMessage
	httpClient    *http.Client

	mu          sync.Mutex
	memberColor map[string]int
	channelName map[string]string
}

func NewClient(token, sourceGuildID, targetGuildID string, logger *logrus.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers
	// Handlers run on the gateway goroutine so channel order is event order.
	session.SyncEvents = true

	c := &Client{
		session:       session,
		logger:        logger,
		sourceGuildID: sourceGuildID,
		targetGuildID: targetGuildID,
		events:        make(chan models.SourceMessage, constants.DefaultEventBufferSize),
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		memberColor:   make(map[string]int),
		channelName:   make(map[string]string),
	}
	session.AddHandler(c.onMessageCreate)
	return c, nil
}

// Open connects the gateway and verifies both guilds are reachable. A guild
// the bot cannot see is a startup failure, not something to limp past.
func (c *Client) Open(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("opening gateway: %w", err)
	}

	for _, guildID := range []string{c.sourceGuildID, c.targetGuildID} {
		if _, err := c.session.Guild(guildID, discordgo.WithContext(ctx)); err != nil {
			c.session.Close()
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, fmt.Sprintf("guild %s not accessible", guildID))
		}
	}

	c.logger.WithFields(logrus.Fields{
		"sourceGuild": c.sourceGuildID,
		"targetGuild": c.targetGuildID,
	}).Info("Connected to gateway")
	return nil
}

// Close disconnects the gateway. The event channel stays open: a handler
// may still be mid-dispatch on the gateway goroutine, and consumers stop on
// context cancellation rather than stream close.
func (c *Client) Close() error {
	return c.session.Close()
}

// SelfID returns the bot's own user ID, used to suppress echo.
func (c *Client) SelfID() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

// Events streams messages created in the source guild, in gateway order.
func (c *Client) Events() <-chan models.SourceMessage {
	return c.events
}

func (c *Client) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID != c.sourceGuildID {
		return
	}
	if m.Author == nil {
		return
	}
	c.events <- c.toSourceMessage(m.Message)
}

// ListTextChannels lists the text channels of the source guild.
func (c *Client) ListTextChannels(ctx context.Context) ([]models.SourceChannelRef, error) {
	channels, err := c.session.GuildChannels(c.sourceGuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err, "listing source channels")
	}

	var refs []models.SourceChannelRef
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		c.cacheChannelName(ch.ID, ch.Name)
		refs = append(refs, models.SourceChannelRef{ID: models.ChannelID(ch.ID), Name: ch.Name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// FetchHistory returns up to limit messages strictly after the cursor,
// newest-first. The REST API pages at 100, so larger limits aggregate
// multiple calls, walking the cursor forward between pages.
func (c *Client) FetchHistory(ctx context.Context, channel models.ChannelID, after models.MessageID, limit int) ([]models.SourceMessage, error) {
	var out []models.SourceMessage
	cursor := string(after)
	if cursor == "" {
		// Snowflake zero predates every message, so an empty checkpoint
		// pages from the channel's beginning.
		cursor = "0"
	}

	for len(out) < limit {
		pageSize := limit - len(out)
		if pageSize > 100 {
			pageSize = 100
		}

		page, err := c.session.ChannelMessages(string(channel), pageSize, "", cursor, "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapErr(err, "fetching history")
		}
		if len(page) == 0 {
			break
		}

		maxID := models.MessageID(cursor)
		for _, m := range page {
			out = append(out, c.toSourceMessage(m))
			if models.MessageID(m.ID).After(maxID) {
				maxID = models.MessageID(m.ID)
			}
		}
		cursor = string(maxID)

		if len(page) < pageSize {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.After(out[j].ID)
	})
	return out, nil
}

// FindChannelByName looks for a text channel with the given name in the
// target guild. Returns nil when none exists.
func (c *Client) FindChannelByName(ctx context.Context, name string) (*models.TargetChannelRef, error) {
	channels, err := c.session.GuildChannels(c.targetGuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err, "listing target channels")
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == name {
			return &models.TargetChannelRef{ID: models.ChannelID(ch.ID), Name: ch.Name}, nil
		}
	}
	return nil, nil
}

// CreateTextChannel creates a text channel in the target guild.
func (c *Client) CreateTextChannel(ctx context.Context, name string) (models.TargetChannelRef, error) {
	ch, err := c.session.GuildChannelCreate(c.targetGuildID, name, discordgo.ChannelTypeGuildText, discordgo.WithContext(ctx))
	if err != nil {
		return models.TargetChannelRef{}, mapErr(err, "creating target channel")
	}
	return models.TargetChannelRef{ID: models.ChannelID(ch.ID), Name: ch.Name}, nil
}

// SendEnvelope renders the envelope as a rich embed.
func (c *Client) SendEnvelope(ctx context.Context, channel models.TargetChannelRef, env models.TextEnvelope) error {
	embed := &discordgo.MessageEmbed{
		Color: env.Color,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    env.Author,
			IconURL: env.AuthorIconURL,
		},
	}
	if env.Body != "" {
		embed.Description = env.Body
	}
	if env.FooterTimestamp != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: "Sent on " + env.FooterTimestamp,
		}
	}

	_, err := c.session.ChannelMessageSendEmbed(string(channel.ID), embed, discordgo.WithContext(ctx))
	return mapErr(err, "sending envelope")
}

// SendFile re-uploads the attachment into the target channel, streaming the
// source CDN download straight into the upload.
func (c *Client) SendFile(ctx context.Context, channel models.TargetChannelRef, att models.Attachment) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodePlatformSend, "building download request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.WrapRetryable(err, apperrors.ErrCodePlatformSend, "downloading attachment")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperrors.WrapRetryable(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			apperrors.ErrCodePlatformSend, "downloading attachment")
	}

	_, err = c.session.ChannelFileSend(string(channel.ID), att.Filename, resp.Body, discordgo.WithContext(ctx))
	return mapErr(err, "uploading attachment")
}

// SendLink posts the link as plain content so the platform unfurls it.
func (c *Client) SendLink(ctx context.Context, channel models.TargetChannelRef, url string) error {
	_, err := c.session.ChannelMessageSend(string(channel.ID), url, discordgo.WithContext(ctx))
	return mapErr(err, "sending link")
}

// MissingPermissions reports human-readable warnings for permissions the bot
// lacks. Startup continues either way; the warnings just make later failures
// self-explaining.
func (c *Client) MissingPermissions(ctx context.Context) []string {
	var warnings []string
	selfID := c.SelfID()
	if selfID == "" {
		return warnings
	}

	sourceChannels, err := c.session.GuildChannels(c.sourceGuildID, discordgo.WithContext(ctx))
	if err == nil {
		for _, ch := range sourceChannels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			perms, err := c.session.UserChannelPermissions(selfID, ch.ID)
			if err != nil {
				continue
			}
			if perms&discordgo.PermissionReadMessageHistory == 0 {
				warnings = append(warnings, fmt.Sprintf("cannot read message history in source channel %s", ch.Name))
			}
		}
	}

	targetChannels, err := c.session.GuildChannels(c.targetGuildID, discordgo.WithContext(ctx))
	if err == nil && len(targetChannels) > 0 {
		perms, err := c.session.UserChannelPermissions(selfID, targetChannels[0].ID)
		if err == nil && perms&discordgo.PermissionManageChannels == 0 {
			warnings = append(warnings, "cannot manage channels in target guild, channel creation will fail")
		}
	}

	return warnings
}

func (c *Client) toSourceMessage(m *discordgo.Message) models.SourceMessage {
	msg := models.SourceMessage{
		ID:          models.MessageID(m.ID),
		ChannelID:   models.ChannelID(m.ChannelID),
		ChannelName: c.resolveChannelName(m.ChannelID),
		CreatedAt:   m.Timestamp,
		TextContent: m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorDisplayName = m.Author.Username
		msg.AuthorAvatarURL = m.Author.AvatarURL("")
		msg.AuthorColor = c.resolveMemberColor(m.Author.ID)
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			URL:       att.URL,
			Filename:  att.Filename,
			SizeBytes: int64(att.Size),
		})
	}
	return msg
}

func (c *Client) cacheChannelName(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelName[id] = name
}

func (c *Client) resolveChannelName(channelID string) string {
	c.mu.Lock()
	if name, ok := c.channelName[channelID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		ch, err = c.session.Channel(channelID)
		if err != nil {
			c.logger.WithField("channelId", channelID).WithError(err).Warn("Failed to resolve channel name")
			return ""
		}
	}
	c.cacheChannelName(channelID, ch.Name)
	return ch.Name
}

// resolveMemberColor picks the color of the member's highest positioned
// colored role, matching how the source guild renders the member's name.
func (c *Client) resolveMemberColor(userID string) int {
	c.mu.Lock()
	if color, ok := c.memberColor[userID]; ok {
		c.mu.Unlock()
		return color
	}
	c.mu.Unlock()

	color := 0
	member, err := c.session.GuildMember(c.sourceGuildID, userID)
	if err == nil {
		guild, gerr := c.session.State.Guild(c.sourceGuildID)
		if gerr != nil {
			guild, gerr = c.session.Guild(c.sourceGuildID)
		}
		if gerr == nil {
			color = highestRoleColor(guild.Roles, member.Roles)
		}
	}

	c.mu.Lock()
	c.memberColor[userID] = color
	c.mu.Unlock()
	return color
}

func highestRoleColor(guildRoles []*discordgo.Role, memberRoles []string) int {
	held := make(map[string]struct{}, len(memberRoles))
	for _, id := range memberRoles {
		held[id] = struct{}{}
	}

	color, position := 0, -1
	for _, role := range guildRoles {
		if _, ok := held[role.ID]; !ok {
			continue
		}
		if role.Color != 0 && role.Position > position {
			color = role.Color
			position = role.Position
		}
	}
	return color
}
