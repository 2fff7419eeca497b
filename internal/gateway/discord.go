package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

type DiscordGateway struct {
	Session *discordgo.Session
	Runner  Runner

	locks *turnLocks
}

func NewDiscordGateway(token string, runner Runner) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return &DiscordGateway{
		Session: session,
		Runner:  runner,
		locks:   newTurnLocks(),
	}, nil
}

func (dg *DiscordGateway) Start() error {
	dg.Session.AddHandler(dg.onMessage)
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Authorized on account %s", dg.Session.State.User.Username)
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Content == "" {
		return
	}

	log.Printf("[%s] %s", m.Author.Username, m.Content)

	channelID := m.ChannelID
	text := m.Content

	go func() {
		sessionID := "discord:" + channelID
		lock := dg.locks.forSession(sessionID)
		lock.Lock()
		defer lock.Unlock()

		s.ChannelTyping(channelID)

		response := runTurn(context.Background(), dg.Runner, sessionID, text)
		if response == "" {
			return
		}
		if _, err := s.ChannelMessageSend(channelID, response); err != nil {
			log.Printf("discord: sending to %s: %v", channelID, err)
		}
	}()
}

func (dg *DiscordGateway) Send(sessionID string, text string) error {
	channelID, ok := strings.CutPrefix(sessionID, "discord:")
	if !ok || channelID == "" {
		return fmt.Errorf("invalid discord session id: %s", sessionID)
	}
	_, err := dg.Session.ChannelMessageSend(channelID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
