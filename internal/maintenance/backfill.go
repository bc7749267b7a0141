package maintenance

import (
	"context"

	"github.com/pysugar/commshub/internal/db/models"
	"github.com/pysugar/commshub/internal/logging"
)

// ChannelStore is the subset of the employee store used for backfilling.
type ChannelStore interface {
	ListEmployeesWithoutChannel(ctx context.Context) ([]models.Employee, error)
	SetPreferredChannel(ctx context.Context, employeeID string, channel models.Channel) error
}

// LogChannelStore fills the channel of logs stored without one.
type LogChannelStore interface {
	BackfillChannels(ctx context.Context, channel models.Channel) (int64, error)
}

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	Telegram  int   `json:"telegram"`
	WhatsApp  int   `json:"whatsapp"`
	Unchanged int   `json:"unchanged"`
	Logs      int64 `json:"logs"`
}

// PreferredChannel picks the channel an employee can be reached on, or "" when
// there is no contact detail to go by.
func PreferredChannel(e models.Employee) models.Channel {
	switch {
	case e.TelegramChatID != "":
		return models.ChannelTelegram
	case e.Phone != "":
		return models.ChannelWhatsApp
	default:
		return ""
	}
}

// BackfillChannels sets a preferred channel on employees that lack one and
// marks channel-less logs as WhatsApp, the only channel that existed before
// the column did.
func BackfillChannels(ctx context.Context, employees ChannelStore, logs LogChannelStore, logger *logging.Logger) (*BackfillResult, error) {
	list, err := employees.ListEmployeesWithoutChannel(ctx)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{}
	for _, e := range list {
		ch := PreferredChannel(e)
		if ch == "" {
			result.Unchanged++
			continue
		}
		if err := employees.SetPreferredChannel(ctx, e.ID, ch); err != nil {
			return result, err
		}
		if ch == models.ChannelTelegram {
			result.Telegram++
		} else {
			result.WhatsApp++
		}
	}

	n, err := logs.BackfillChannels(ctx, models.ChannelWhatsApp)
	if err != nil {
		return result, err
	}
	result.Logs = n

	logger.Info().
		Int("telegram", result.Telegram).
		Int("whatsapp", result.WhatsApp).
		Int("unchanged", result.Unchanged).
		Int64("logs", result.Logs).
		Msg("channels backfilled")
	return result, nil
}
