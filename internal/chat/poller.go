package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/adpilot-bot/adpilot/config"
)

// Handler receives inbound chat traffic from the poller.
type Handler interface {
	// HandleText processes a plain text message.
	HandleText(ctx context.Context, chatID int64, userID, text string)
	// HandleCallback processes an inline-button press and returns the
	// short acknowledgement shown to the user.
	HandleCallback(ctx context.Context, chatID int64, userID, data string) string
}

// Poller long-polls the Telegram Bot API and feeds updates to a
// Handler.
type Poller struct {
	token      string
	baseURL    string
	httpClient *http.Client
	handler    Handler
	logger     *log.Logger
	offset     int64
}

// NewTelegramPoller creates a Poller from config.
func NewTelegramPoller(cfg config.TelegramConfig, handler Handler, logger *log.Logger) (*Poller, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram.bot_token is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Poller{
		token:   cfg.BotToken,
		baseURL: base,
		// The client timeout must exceed the long-poll window.
		httpClient: &http.Client{Timeout: 40 * time.Second},
		handler:    handler,
		logger:     logger,
	}, nil
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
	} `json:"message"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Message struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

type updatesResponse struct {
	OK          bool     `json:"ok"`
	Description string   `json:"description"`
	Result      []update `json:"result"`
}

// Run blocks, polling for updates until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Printf("telegram poller starting")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		updates, err := p.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Printf("warn: get updates: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		for _, u := range updates {
			p.offset = u.UpdateID + 1
			p.route(ctx, u)
		}
	}
}

func (p *Poller) route(ctx context.Context, u update) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		ack := p.handler.HandleCallback(ctx, cq.Message.Chat.ID, fmt.Sprint(cq.From.ID), cq.Data)
		if err := p.answerCallback(ctx, cq.ID, ack); err != nil {
			p.logger.Printf("warn: answer callback %s: %v", cq.ID, err)
		}
	case u.Message != nil && u.Message.Text != "":
		m := u.Message
		p.handler.HandleText(ctx, m.Chat.ID, fmt.Sprint(m.From.ID), m.Text)
	}
}

func (p *Poller) getUpdates(ctx context.Context) ([]update, error) {
	body, err := json.Marshal(map[string]interface{}{
		"offset":          p.offset,
		"timeout":         30,
		"allowed_updates": []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/bot%s/getUpdates", p.baseURL, p.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram api: %s", parsed.Description)
	}
	return parsed.Result, nil
}

func (p *Poller) answerCallback(ctx context.Context, callbackID, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"callback_query_id": callbackID,
		"text":              text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/answerCallbackQuery", p.baseURL, p.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram api: %s", parsed.Description)
	}
	return nil
}
