package infrastructure

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
)

const notifyTimeout = 5 * time.Second

// NotificationService sends desktop notifications about runs
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(ctx context.Context, name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var err error
	switch n.config.Method {
	case "osascript":
		err = n.run(ctx, "osascript", "-e", n.osaScript(title, message))
	case "notify-send":
		err = n.run(ctx, "notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

func (n *NotificationService) osaScript(title, message string) string {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, quoteAppleScript(message), quoteAppleScript(title))
	if n.config.Sound {
		script += ` sound name "Glass"`
	}
	return script
}

func quoteAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// NotifyRunCompleted sends a notification when a download run completes
func (n *NotificationService) NotifyRunCompleted(summary *domain.RunSummary) {
	title := "Downloads Completed"
	message := fmt.Sprintf("%d files downloaded, %d failed (%s processed)",
		summary.CompletedFiles-summary.FailedFiles,
		summary.FailedFiles,
		humanize.Bytes(uint64(summary.CompletedBytes)))
	n.Send(title, message)
}

// NotifyRunFailed sends a notification when a run aborts
func (n *NotificationService) NotifyRunFailed(err error) {
	title := "Run Failed"
	message := truncateString(err.Error(), 80)
	n.Send(title, message)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
