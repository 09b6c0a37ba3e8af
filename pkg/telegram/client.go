package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"roboadvisor/pkg/batch"
	"roboadvisor/pkg/config"
)

const (
	MaxMessageLength = 4096 // Telegram单条消息最大长度
)

var ErrNotInitialized = errors.New("telegram client not initialized")

// sender 发送接口，*tgbotapi.BotAPI 实现了它
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client 运维通知客户端
type Client struct {
	bot    sender
	chatID int64
	pause  time.Duration
}

// New 根据配置创建客户端，未配置 Bot Token 时返回 nil
func New(cfg config.TelegramConfig) (*Client, error) {
	if cfg.BotToken == "" {
		logrus.Warn("未配置Telegram Bot Token，跳过Telegram初始化")
		return nil, nil
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = false

	logrus.Info("Telegram客户端初始化成功")
	return newClient(bot, chatID), nil
}

func newClient(bot sender, chatID int64) *Client {
	return &Client{bot: bot, chatID: chatID, pause: 100 * time.Millisecond}
}

// SendMessage 发送消息，超长时按行分割
func (t *Client) SendMessage(text string) error {
	if t == nil || t.bot == nil {
		return ErrNotInitialized
	}

	parts := splitLongMessage(text, MaxMessageLength)
	for i, part := range parts {
		if i > 0 && t.pause > 0 {
			time.Sleep(t.pause)
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, part)); err != nil {
			return fmt.Errorf("send message part %d: %w", i+1, err)
		}
	}
	return nil
}

// SendError 发送错误通知
func (t *Client) SendError(operation string, err error) error {
	return t.SendMessage(fmt.Sprintf("%s\n\n错误详情: %v", operation, err))
}

// SendBatchSummary 发送夜间批处理汇总
func (t *Client) SendBatchSummary(summary *batch.BatchSummary) error {
	return t.SendMessage(FormatBatchSummary(summary))
}

// FormatBatchSummary 把批处理汇总格式化为文本
func FormatBatchSummary(s *batch.BatchSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Nightly analysis batch %s\n", s.RunID)
	fmt.Fprintf(&b, "Started:  %s\n", s.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Duration: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "Analyses: %d / %d\n", s.TotalAnalyses, s.MaxAnalyses)
	if s.BudgetExhausted() {
		b.WriteString("Budget exhausted, remaining items were not processed\n")
	}

	writePhase(&b, "Portfolio", s.Portfolio)
	writePhase(&b, "Watchlist", s.Watchlist)

	if s.TotalErrors > 0 {
		fmt.Fprintf(&b, "\nErrors (%d):\n", s.TotalErrors)
		for _, msg := range s.Errors {
			fmt.Fprintf(&b, "- %s\n", msg)
		}
		if hidden := s.TotalErrors - len(s.Errors); hidden > 0 {
			fmt.Fprintf(&b, "... and %d more\n", hidden)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func writePhase(b *strings.Builder, name string, p batch.PhaseStats) {
	fmt.Fprintf(b, "\n%s: %d ok, %d skipped, %d failed, %d unprocessed\n",
		name, p.Successful, p.Skipped, p.Failed, p.Unprocessed)
}

// splitLongMessage 按行分割长消息，单行超长时按字符硬切
func splitLongMessage(text string, maxLen int) []string {
	if runeLen(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	current := ""

	for _, line := range strings.Split(text, "\n") {
		if runeLen(line) > maxLen {
			if current != "" {
				parts = append(parts, current)
				current = ""
			}
			runes := []rune(line)
			for len(runes) > maxLen {
				parts = append(parts, string(runes[:maxLen]))
				runes = runes[maxLen:]
			}
			current = string(runes)
			continue
		}

		candidate := line
		if current != "" {
			candidate = current + "\n" + line
		}
		if runeLen(candidate) > maxLen {
			parts = append(parts, current)
			current = line
		} else {
			current = candidate
		}
	}

	if current != "" {
		parts = append(parts, current)
	}
	return parts
}

func runeLen(s string) int {
	return len([]rune(s))
}
