package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// MemberEvents is what the voice state handler reports to.
type MemberEvents interface {
	AutoDepart(ctx context.Context, tenantID string)
	AnnounceMember(tenantID, displayName string, joined bool)
	LeaveSession(tenantID string) error
}

const departTimeout = 10 * time.Second

// Watch reports members joining or leaving the bot's voice channels to events.
func (p *Platform) Watch(events MemberEvents) func() {
	return p.session.AddHandler(func(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
		p.handleVoiceState(s.State, events, e)
	})
}

func (p *Platform) handleVoiceState(state *discordgo.State, events MemberEvents, e *discordgo.VoiceStateUpdate) {
	if e.VoiceState == nil || state == nil || state.User == nil {
		return
	}

	if e.UserID == state.User.ID {
		p.handleOwnVoiceState(events, e)
		return
	}

	botChannel, ok := p.channelOf(e.GuildID)
	if !ok {
		return
	}

	before := ""
	if e.BeforeUpdate != nil {
		before = e.BeforeUpdate.ChannelID
	}

	switch {
	case e.ChannelID == botChannel && before != botChannel:
		if !isBot(e) {
			events.AnnounceMember(e.GuildID, displayName(e.Member, e.UserID), true)
		}
	case before == botChannel && e.ChannelID != botChannel:
		if occupants(state, e.GuildID, botChannel) > 0 {
			if !isBot(e) {
				events.AnnounceMember(e.GuildID, displayName(e.Member, e.UserID), false)
			}
			return
		}

		metrics.Departures.Inc()
		p.logger.Info("Voice channel is empty, leaving", "guild", e.GuildID, "channel", botChannel)

		ctx, cancel := context.WithTimeout(context.Background(), departTimeout)
		defer cancel()

		events.AutoDepart(ctx, e.GuildID)
	}
}

// handleOwnVoiceState follows the bot being moved or disconnected by someone else.
func (p *Platform) handleOwnVoiceState(events MemberEvents, e *discordgo.VoiceStateUpdate) {
	p.lock.Lock()
	conn, ok := p.conns[e.GuildID]
	p.lock.Unlock()

	if !ok {
		return
	}

	if e.ChannelID != "" {
		conn.setChannelID(e.ChannelID)
		return
	}

	metrics.Disconnects.Inc()
	p.logger.Warn("Disconnected from voice, closing session", "guild", e.GuildID, "channel", conn.ChannelID())

	if err := events.LeaveSession(e.GuildID); err != nil {
		// no session left to close, drop the connection anyway
		p.forget(conn)
		p.logger.Debug("No session for lost connection", "guild", e.GuildID, "err", err)
	}
}

func isBot(e *discordgo.VoiceStateUpdate) bool {
	if e.Member != nil && e.Member.User != nil && e.Member.User.Bot {
		return true
	}

	before := e.BeforeUpdate
	return before != nil && before.Member != nil && before.Member.User != nil && before.Member.User.Bot
}

// occupants counts the humans in a voice channel.
func occupants(state *discordgo.State, guildID, channelID string) int {
	guild, err := state.Guild(guildID)
	if err != nil {
		return 0
	}

	state.RLock()
	defer state.RUnlock()

	cnt := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID || vs.UserID == state.User.ID {
			continue
		}
		if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
			continue
		}
		cnt++
	}

	return cnt
}

func displayName(member *discordgo.Member, userID string) string {
	if member == nil {
		return userID
	}

	if member.Nick != "" {
		return member.Nick
	}

	if member.User != nil {
		if member.User.GlobalName != "" {
			return member.User.GlobalName
		}
		return member.User.Username
	}

	return userID
}
