package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const telegramAPI = "https://api.telegram.org"

// maxMessageLen is the Bot API limit on sendMessage text
const maxMessageLen = 4096

// TelegramClient talks to the Telegram Bot API over plain HTTP
type TelegramClient struct {
	apiBase string
	token   string
	httpc   *http.Client
}

// NewTelegramClient creates a Bot API client. Poll timeout plus slack bounds
// the long poll request.
func NewTelegramClient(token string, pollTimeout time.Duration) *TelegramClient {
	return &TelegramClient{
		apiBase: telegramAPI,
		token:   token,
		httpc:   &http.Client{Timeout: pollTimeout + 10*time.Second},
	}
}

// Update is an incoming Bot API update
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming or outgoing chat message
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *ChatUser   `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Caption   string      `json:"caption"`
	Photo     []PhotoSize `json:"photo"`
	Document  *Document   `json:"document"`
}

// ChatUser is the sender of a message
type ChatUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Chat identifies the conversation
type Chat struct {
	ID int64 `json:"id"`
}

// PhotoSize is one resolution of an attached photo, largest last
type PhotoSize struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
}

// Document is an attached file
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
}

// File holds the server-side path for a download
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// apiResponse is the Bot API envelope
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// call makes one Bot API request and decodes the result envelope
func (c *TelegramClient) call(ctx context.Context, method string, args, result interface{}) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal %s args: %w", method, err)
	}

	url := c.apiBase + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s rejected: %s", method, envelope.Description)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetUpdates long polls for new updates past the given offset
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	args := map[string]interface{}{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", args, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage delivers text to a chat, splitting anything over the API limit
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		args := map[string]interface{}{
			"chat_id": chatID,
			"text":    part,
		}
		if err := c.call(ctx, "sendMessage", args, nil); err != nil {
			return err
		}
	}
	return nil
}

// GetFile resolves a file id to its download path
func (c *TelegramClient) GetFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.call(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DownloadFile fetches file content by its server-side path
func (c *TelegramClient) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	url := c.apiBase + "/file/bot" + c.token + "/" + filePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// splitMessage breaks long text into chunks within the limit, preferring
// paragraph boundaries and falling back to hard cuts
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	current := ""
	for _, para := range bytes.Split([]byte(text), []byte("\n\n")) {
		p := string(para)

		// paragraph alone exceeds the limit, hard-split it
		for len(p) > limit {
			if current != "" {
				parts = append(parts, current)
				current = ""
			}
			cut := cutAtRune(p, limit)
			parts = append(parts, p[:cut])
			p = p[cut:]
		}

		switch {
		case current == "":
			current = p
		case len(current)+2+len(p) <= limit:
			current += "\n\n" + p
		default:
			parts = append(parts, current)
			current = p
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}

// cutAtRune returns the largest cut point not exceeding limit that does not
// split a multi-byte rune
func cutAtRune(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return limit // degenerate input, not valid UTF-8 anyway
	}
	return cut
}
