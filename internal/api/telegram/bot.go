package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	app "ctscan/internal/application"
	"ctscan/internal/domain/entity"
)

const (
	msgStart = `👋 Привет! Я помогаю оценить КТ-снимки грудной клетки на признаки аденокарциномы.

📸 Отправьте снимок (JPEG или PNG) фото или файлом, и я верну оценку риска.

📋 Команды:
/history — последние проверки
/end — завершить сессию и очистить историю
/help — справка`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте КТ-снимок фото или документом (.jpg, .jpeg, .png)
2️⃣ Бот оценит риск злокачественности
3️⃣ Вы получите вердикт и оценку риска

⚠️ Это исследовательский инструмент, а не медицинское заключение.`

	msgSendScan        = "📸 Пожалуйста, отправьте КТ-снимок в формате JPEG или PNG."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Анализирую снимок..."
	msgNoHistory       = "📜 Проверок в этой сессии ещё не было."
	msgSessionEnded    = "🧹 Сессия завершена, история очищена."
	msgInvalidImage    = "⚠️ Не удалось прочитать изображение. Отправьте JPEG или PNG."
	msgProcessingError = "⚠️ Не удалось обработать снимок. Попробуйте ещё раз."
)

// historyLimit сколько записей показывать по /history
const historyLimit = 5

// Bot представляет Telegram-бота
type Bot struct {
	api      *tgbotapi.BotAPI
	analysis *app.AnalysisService
	sessions *app.SessionService
	client   *http.Client
	log      *zap.Logger
}

// NewBot создаёт нового бота
func NewBot(token string, analysis *app.AnalysisService, sessions *app.SessionService, log *zap.Logger) (*Bot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Info("telegram bot authorized", zap.String("account", api.Self.UserName))

	return &Bot{
		api:      api,
		analysis: analysis,
		sessions: sessions,
		client:   http.DefaultClient,
		log:      log,
	}, nil
}

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// sessionID сессия на чат
func sessionID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if fileID, name, ok := scanFile(msg); ok {
		b.handleScan(ctx, msg.Chat.ID, fileID, name)
		return
	}

	b.sendMessage(msg.Chat.ID, msgSendScan)
}

// scanFile выбирает файл снимка: фото максимального размера или документ-изображение
func scanFile(msg *tgbotapi.Message) (fileID, name string, ok bool) {
	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		// Telegram пересжимает фото в JPEG
		return photo.FileID, photo.FileUniqueID + ".jpg", true
	}
	if doc := msg.Document; doc != nil && strings.HasPrefix(doc.MimeType, "image/") {
		return doc.FileID, doc.FileName, true
	}
	return "", "", false
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID, msgStart)

	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)

	case "history":
		session, err := b.sessions.Get(ctx, sessionID(msg.Chat.ID))
		if err != nil {
			b.sendMessage(msg.Chat.ID, msgNoHistory)
			return
		}
		b.sendMessage(msg.Chat.ID, formatHistory(session.History.Recent(historyLimit)))

	case "end":
		if err := b.sessions.End(ctx, sessionID(msg.Chat.ID)); err != nil {
			b.log.Warn("end session failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
		b.sendMessage(msg.Chat.ID, msgSessionEnded)

	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
}

// handleScan скачивает снимок и отправляет его на анализ
func (b *Bot) handleScan(ctx context.Context, chatID int64, fileID, name string) {
	b.sendMessage(chatID, msgProcessing)

	data, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.log.Error("download scan failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendMessage(chatID, msgProcessingError)
		return
	}

	out, _, err := b.analysis.AnalyzeInSession(ctx, sessionID(chatID), entity.Upload{Name: name, Data: data})
	switch {
	case err == nil:
		b.sendMessage(chatID, formatResult(out))
	case errors.Is(err, app.ErrModelUnavailable):
		b.sendMessage(chatID, "⚠️ Model file not found at "+b.analysis.Model().Path())
	case errors.Is(err, app.ErrInvalidImage):
		b.sendMessage(chatID, msgInvalidImage)
	default:
		b.log.Error("analysis failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.sendMessage(chatID, msgProcessingError)
	}
}

// formatResult текст ответа с вердиктом
func formatResult(out *app.AnalysisOutput) string {
	icon := "✅"
	if out.Verdict == entity.VerdictPositive {
		icon = "🔴"
	}
	return fmt.Sprintf("%s VERDICT: %s\n\nRisk Score: %s\n%s\n\n📄 %s, %s, %s",
		icon, out.Verdict.Headline(), out.Score.Percent(), scoreBar(out.Score),
		out.Scan.Name, out.Scan.SizeKB(), out.Scan.Resolution())
}

// formatHistory записи новыми первыми
func formatHistory(records []entity.HistoryRecord) string {
	if len(records) == 0 {
		return msgNoHistory
	}
	var sb strings.Builder
	sb.WriteString("📜 История сессии:\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "%s - %s (%s)\n", r.Clock(), r.Verdict, r.Confidence)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// scoreBar текстовая шкала риска из 10 делений
func scoreBar(score entity.RiskScore) string {
	filled := int(float64(score)*10 + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
