package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

// SlackNotifier posts alert snapshots to a channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier builds a notifier; apiURL overrides the Slack endpoint
// when non-empty and must end in "/".
func NewSlackNotifier(token, channel, apiURL string, logger *slog.Logger) *SlackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackNotifier{api: slack.New(token, opts...), channel: channel, logger: logger}
}

func (n *SlackNotifier) Notify(ctx context.Context, snap entity.BacklogSnapshot) error {
	_, ts, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(FormatAlert(snap), false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	n.logger.Info("backlog.notify.ok", "channel", n.channel, "ts", ts)
	return nil
}

// FormatAlert renders the alerting parts of a snapshot as Slack mrkdwn.
func FormatAlert(snap entity.BacklogSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":warning: *Receipt backlog alert* (%s)\n", snap.TakenAt.Format(time.RFC3339))
	if snap.PendingReceiptAlert {
		fmt.Fprintf(&b, "• oldest pending receipt waiting %s (%d pending)\n",
			fmtAge(snap.OldestPendingReceiptAge), snap.Receipts[constants.ReceiptStatusPending])
	}
	if snap.PendingJobAlert {
		fmt.Fprintf(&b, "• oldest pending job waiting %s (%d pending)\n",
			fmtAge(snap.OldestPendingJobAge), snap.Jobs[constants.JobStatusPending])
	}
	if snap.ProcessingJobAlert {
		fmt.Fprintf(&b, "• oldest processing job in flight %s (%d processing)\n",
			fmtAge(snap.OldestProcessingJobAge), snap.Jobs[constants.JobStatusProcessing])
	}
	fmt.Fprintf(&b, "failed receipts: %d, awaiting review: %d", snap.FailedReceipts(), snap.AwaitingReview)
	return b.String()
}

func fmtAge(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return d.Truncate(time.Second).String()
}
