package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"theblob/pkg/domain"
)

// Bot handles Telegram commands for storing and querying personal content
type Bot struct {
	api          API
	db           Database
	agent        Agent
	baseURL      string
	downloadsDir string
	pollTimeout  time.Duration
}

// API is the Telegram transport the bot uses
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	GetFile(ctx context.Context, fileID string) (*File, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
}

// Database interface for bot operations
type Database interface {
	EnsureUser(ctx context.Context, user domain.User) error
	CreateBlob(ctx context.Context, blob *domain.Blob, embedding []float32) error
	UpdateSummary(ctx context.Context, blobID int64, summary string) error
	UpdatePublicity(ctx context.Context, blobID, userID int64, public bool) error
	GetBlob(ctx context.Context, blobID, userID int64) (*domain.Blob, error)
	GetUserBlobs(ctx context.Context, userID int64) ([]domain.Blob, error)
	SimilarBlobs(ctx context.Context, queryEmbedding []float32, userID int64, scope domain.SearchScope, limit int) ([]domain.SimilarBlob, error)
	SimilarToBlob(ctx context.Context, blobID int64, limit int) ([]domain.SimilarBlob, error)
}

// Agent is the model layer the bot uses for summaries, answers and vision
type Agent interface {
	Summary(ctx context.Context, content string, contentType domain.ContentType) (string, error)
	Answer(ctx context.Context, question string, matches []domain.SimilarBlob) (string, error)
	Embedding(ctx context.Context, text string) ([]float32, error)
	DescribeImage(ctx context.Context, image []byte) (string, error)
	DeepThink(ctx context.Context, content string, related []domain.SimilarBlob) (string, error)
}

// Config holds bot dependencies and settings
type Config struct {
	API          API
	DB           Database
	Agent        Agent
	BaseURL      string
	DownloadsDir string
	PollTimeout  time.Duration
}

// New creates a bot instance
func New(cfg Config) *Bot {
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 50 * time.Second
	}
	return &Bot{
		api:          cfg.API,
		db:           cfg.DB,
		agent:        cfg.Agent,
		baseURL:      cfg.BaseURL,
		downloadsDir: cfg.DownloadsDir,
		pollTimeout:  cfg.PollTimeout,
	}
}

const helpText = `I can store and recall your personal knowledge.

Send me any text and I'll store it with a summary.
End a message with ? to ask a question over what you stored.
Send a photo and I'll analyze and store the description.

Commands:
/store <text> - store text explicitly
/share <id> - publish a stored entry to the public feed
/unshare <id> - make a published entry private again
/list - show your stored entries
/ask <question> - answer from your stored content
/theblob <id> - deep analysis of an entry with related context
/help - this message`

// Run polls for updates until the context is canceled
func (b *Bot) Run(ctx context.Context) error {
	lgr.Printf("[INFO] telegram bot started")

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lgr.Printf("[WARN] getUpdates failed: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage dispatches one incoming message
func (b *Bot) handleMessage(ctx context.Context, msg *Message) {
	user := domain.User{
		ID:        msg.From.ID,
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
	}
	if err := b.db.EnsureUser(ctx, user); err != nil {
		lgr.Printf("[ERROR] can't ensure user %d: %v", user.ID, err)
		b.reply(ctx, msg, "Something went wrong, please try again.")
		return
	}

	switch {
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Document != nil:
		b.handleDocument(ctx, msg)
	case strings.HasPrefix(msg.Text, "/"):
		b.handleCommand(ctx, msg)
	case strings.HasSuffix(strings.TrimSpace(msg.Text), "?"):
		b.answerQuestion(ctx, msg, msg.Text)
	case strings.TrimSpace(msg.Text) != "":
		b.storeText(ctx, msg, msg.Text)
	}
}

// handleCommand processes slash commands
func (b *Bot) handleCommand(ctx context.Context, msg *Message) {
	command, args := splitCommand(msg.Text)

	switch command {
	case "/start":
		b.reply(ctx, msg, "Welcome! "+helpText)
	case "/help":
		b.reply(ctx, msg, helpText)
	case "/store":
		if args == "" {
			b.reply(ctx, msg, "Usage: /store <text>")
			return
		}
		b.storeText(ctx, msg, args)
	case "/share":
		b.setPublicity(ctx, msg, args, true)
	case "/unshare":
		b.setPublicity(ctx, msg, args, false)
	case "/list":
		b.listBlobs(ctx, msg)
	case "/ask":
		if args == "" {
			b.reply(ctx, msg, "Usage: /ask <question>")
			return
		}
		b.answerQuestion(ctx, msg, args)
	case "/theblob":
		b.deepThink(ctx, msg, args)
	default:
		b.reply(ctx, msg, "Unknown command, try /help")
	}
}

// storeText stores a text blob with embedding and summary
func (b *Bot) storeText(ctx context.Context, msg *Message, text string) {
	text = strings.TrimSpace(text)

	embedding, err := b.agent.Embedding(ctx, text)
	if err != nil {
		lgr.Printf("[WARN] embedding failed, storing without: %v", err)
		embedding = nil // backfilled later by the scheduler
	}

	blob := &domain.Blob{
		UserID:      msg.From.ID,
		ContentType: domain.ContentText,
		Content:     text,
	}
	if err := b.db.CreateBlob(ctx, blob, embedding); err != nil {
		lgr.Printf("[ERROR] can't store blob for user %d: %v", msg.From.ID, err)
		b.reply(ctx, msg, "Failed to store that, please try again.")
		return
	}

	summary, err := b.agent.Summary(ctx, text, domain.ContentText)
	if err != nil {
		lgr.Printf("[WARN] summary failed for blob %d: %v", blob.ID, err)
		b.reply(ctx, msg, fmt.Sprintf("Stored as #%d.", blob.ID))
		return
	}
	if err := b.db.UpdateSummary(ctx, blob.ID, summary); err != nil {
		lgr.Printf("[WARN] can't save summary for blob %d: %v", blob.ID, err)
	}

	b.reply(ctx, msg, fmt.Sprintf("Stored as #%d.\n\nSummary: %s", blob.ID, summary))
}

// handlePhoto downloads the largest photo, analyzes it and stores the result
func (b *Bot) handlePhoto(ctx context.Context, msg *Message) {
	photo := msg.Photo[len(msg.Photo)-1] // largest size last

	data, path, err := b.download(ctx, photo.FileID, "photo")
	if err != nil {
		lgr.Printf("[ERROR] photo download failed: %v", err)
		b.reply(ctx, msg, "Couldn't download that photo.")
		return
	}

	b.reply(ctx, msg, "Analyzing the photo...")

	description, err := b.agent.DescribeImage(ctx, data)
	if err != nil {
		lgr.Printf("[ERROR] image analysis failed: %v", err)
		b.reply(ctx, msg, "Couldn't analyze that photo.")
		return
	}
	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		description = "Caption: " + caption + "\n\n" + description
	}

	embedding, err := b.agent.Embedding(ctx, description)
	if err != nil {
		lgr.Printf("[WARN] embedding failed for photo: %v", err)
		embedding = nil
	}

	blob := &domain.Blob{
		UserID:      msg.From.ID,
		ContentType: domain.ContentPhoto,
		Content:     description,
		FilePath:    path,
	}
	if err := b.db.CreateBlob(ctx, blob, embedding); err != nil {
		lgr.Printf("[ERROR] can't store photo blob: %v", err)
		b.reply(ctx, msg, "Failed to store the analysis.")
		return
	}

	b.reply(ctx, msg, fmt.Sprintf("Stored photo analysis as #%d.\n\n%s", blob.ID, description))
}

// handleDocument downloads and registers an attached file
func (b *Bot) handleDocument(ctx context.Context, msg *Message) {
	_, path, err := b.download(ctx, msg.Document.FileID, msg.Document.FileName)
	if err != nil {
		lgr.Printf("[ERROR] document download failed: %v", err)
		b.reply(ctx, msg, "Couldn't download that document.")
		return
	}

	content := "Document: " + msg.Document.FileName
	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		content += "\n" + caption
	}

	embedding, err := b.agent.Embedding(ctx, content)
	if err != nil {
		embedding = nil
	}

	blob := &domain.Blob{
		UserID:      msg.From.ID,
		ContentType: domain.ContentDocument,
		Content:     content,
		FilePath:    path,
	}
	if err := b.db.CreateBlob(ctx, blob, embedding); err != nil {
		lgr.Printf("[ERROR] can't store document blob: %v", err)
		b.reply(ctx, msg, "Failed to store the document.")
		return
	}

	b.reply(ctx, msg, fmt.Sprintf("Stored document as #%d.", blob.ID))
}

// answerQuestion retrieves similar blobs and answers from them
func (b *Bot) answerQuestion(ctx context.Context, msg *Message, question string) {
	embedding, err := b.agent.Embedding(ctx, question)
	if err != nil {
		lgr.Printf("[ERROR] question embedding failed: %v", err)
		b.reply(ctx, msg, "Couldn't process the question right now.")
		return
	}

	matches, err := b.db.SimilarBlobs(ctx, embedding, msg.From.ID, domain.ScopePrivate, 5)
	if err != nil {
		lgr.Printf("[ERROR] similarity search failed: %v", err)
		b.reply(ctx, msg, "Search failed, please try again.")
		return
	}
	if len(matches) == 0 {
		b.reply(ctx, msg, "I found nothing related in your stored content.")
		return
	}

	answer, err := b.agent.Answer(ctx, question, matches)
	if err != nil {
		lgr.Printf("[ERROR] answer generation failed: %v", err)
		b.reply(ctx, msg, "Couldn't generate an answer, please try again.")
		return
	}
	b.reply(ctx, msg, answer)
}

// setPublicity shares or unshares a stored blob
func (b *Bot) setPublicity(ctx context.Context, msg *Message, args string, public bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		b.reply(ctx, msg, "Usage: /share <id> or /unshare <id>")
		return
	}

	if err := b.db.UpdatePublicity(ctx, id, msg.From.ID, public); err != nil {
		b.reply(ctx, msg, fmt.Sprintf("Entry #%d not found among your content.", id))
		return
	}

	if public {
		reply := fmt.Sprintf("Entry #%d is now public.", id)
		if b.baseURL != "" {
			reply += " See it at " + b.baseURL
		}
		b.reply(ctx, msg, reply)
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("Entry #%d is private again.", id))
}

// listBlobs shows the user's stored entries
func (b *Bot) listBlobs(ctx context.Context, msg *Message) {
	blobs, err := b.db.GetUserBlobs(ctx, msg.From.ID)
	if err != nil {
		lgr.Printf("[ERROR] can't list blobs for user %d: %v", msg.From.ID, err)
		b.reply(ctx, msg, "Couldn't load your entries.")
		return
	}
	if len(blobs) == 0 {
		b.reply(ctx, msg, "You have no stored entries yet. Send me some text!")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Your entries (%d):\n", len(blobs)))
	for _, blob := range blobs {
		visibility := "private"
		if blob.Public {
			visibility = "public"
		}
		preview := blob.Summary
		if preview == "" {
			preview = blob.Content
		}
		if len(preview) > 80 {
			preview = preview[:cutAtRune(preview, 80)] + "..."
		}
		sb.WriteString(fmt.Sprintf("\n#%d [%s, %s] %s", blob.ID, blob.ContentType, visibility, preview))
	}
	b.reply(ctx, msg, sb.String())
}

// deepThink runs extended analysis of a stored blob with related context
func (b *Bot) deepThink(ctx context.Context, msg *Message, args string) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		b.reply(ctx, msg, "Usage: /theblob <id>")
		return
	}

	blob, err := b.db.GetBlob(ctx, id, msg.From.ID)
	if err != nil {
		b.reply(ctx, msg, fmt.Sprintf("Entry #%d not found.", id))
		return
	}

	b.reply(ctx, msg, "Thinking deeply, this may take a while...")

	related, err := b.db.SimilarToBlob(ctx, id, 3)
	if err != nil {
		lgr.Printf("[WARN] related lookup failed for blob %d: %v", id, err)
		related = nil
	}

	analysis, err := b.agent.DeepThink(ctx, blob.Content, related)
	if err != nil {
		lgr.Printf("[ERROR] deep analysis failed for blob %d: %v", id, err)
		b.reply(ctx, msg, "Deep analysis failed, please try again.")
		return
	}
	b.reply(ctx, msg, analysis)
}

// download fetches a file by id and saves it under the downloads dir.
// Without a configured dir the content is returned but not saved.
func (b *Bot) download(ctx context.Context, fileID, name string) (data []byte, savedPath string, err error) {
	file, err := b.api.GetFile(ctx, fileID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve file: %w", err)
	}

	data, err = b.api.DownloadFile(ctx, file.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}

	if b.downloadsDir == "" {
		return data, "", nil
	}

	if err := os.MkdirAll(b.downloadsDir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create downloads dir: %w", err)
	}
	savedPath = filepath.Join(b.downloadsDir, fmt.Sprintf("%d_%s%s", time.Now().UnixNano(), name, filepath.Ext(file.FilePath)))
	if err := os.WriteFile(savedPath, data, 0o600); err != nil {
		return nil, "", fmt.Errorf("save file: %w", err)
	}
	return data, savedPath, nil
}

// reply sends a message back to the chat, logging delivery failures
func (b *Bot) reply(ctx context.Context, msg *Message, text string) {
	if err := b.api.SendMessage(ctx, msg.Chat.ID, text); err != nil {
		lgr.Printf("[WARN] can't send reply to chat %d: %v", msg.Chat.ID, err)
	}
}

// splitCommand separates "/cmd args" into its parts, dropping a @botname
// suffix on the command
func splitCommand(text string) (command, args string) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	command = parts[0]
	if at := strings.Index(command, "@"); at != -1 {
		command = command[:at]
	}
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args
}
