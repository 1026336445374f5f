package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/adpilot-bot/adpilot/config"
)

// telegramTransport implements Transport over the Telegram Bot API.
type telegramTransport struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramTransport creates a Transport from config.
func NewTelegramTransport(cfg config.TelegramConfig) (Transport, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram.bot_token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &telegramTransport{
		token:      cfg.BotToken,
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type sendMessageRequest struct {
	ChatID                int64           `json:"chat_id"`
	Text                  string          `json:"text"`
	ParseMode             string          `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool            `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *inlineKeyboard `json:"reply_markup,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (t *telegramTransport) send(ctx context.Context, req sendMessageRequest) (int64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal message: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	var parsed sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode telegram response: %w", err)
	}
	if !parsed.OK {
		return 0, fmt.Errorf("telegram api: %s", parsed.Description)
	}
	return parsed.Result.MessageID, nil
}

func (t *telegramTransport) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) error {
	req := sendMessageRequest{ChatID: chatID, Text: text, DisableWebPagePreview: opts.DisablePreview}
	if opts.Markdown {
		req.ParseMode = "Markdown"
	}
	_, err := t.send(ctx, req)
	return err
}

func (t *telegramTransport) SendActionConfirmation(ctx context.Context, chatID int64, actionID, text string) (int64, error) {
	return t.send(ctx, sendMessageRequest{
		ChatID: chatID,
		Text:   text,
		ReplyMarkup: &inlineKeyboard{InlineKeyboard: [][]inlineButton{{
			{Text: "Approve", CallbackData: "action:approve:" + actionID},
			{Text: "Reject", CallbackData: "action:reject:" + actionID},
		}}},
	})
}
