package gateway

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Runner Runner

	locks *turnLocks
}

func NewTelegramGateway(token string, runner Runner) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:    bot,
		Runner: runner,
		locks:  newTurnLocks(),
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		chatID := update.Message.Chat.ID
		text := update.Message.Text

		go func() {
			sessionID := fmt.Sprintf("telegram:%d", chatID)
			lock := tg.locks.forSession(sessionID)
			lock.Lock()
			defer lock.Unlock()

			tg.Bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

			response := runTurn(context.Background(), tg.Runner, sessionID, text)
			if response == "" {
				return
			}
			if _, err := tg.Bot.Send(tgbotapi.NewMessage(chatID, response)); err != nil {
				log.Printf("telegram: sending to %d: %v", chatID, err)
			}
		}()
	}
	return nil
}

func (tg *TelegramGateway) Send(sessionID string, text string) error {
	var id int64
	if _, err := fmt.Sscanf(sessionID, "telegram:%d", &id); err != nil || id == 0 {
		return fmt.Errorf("invalid telegram session id: %s", sessionID)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "Markdown"
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
