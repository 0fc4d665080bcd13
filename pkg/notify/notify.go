package notify

import (
	"context"
	"log/slog"
)

// SpaceJoinedEvent is emitted when a user successfully joins a space.
type SpaceJoinedEvent struct {
	SpaceID     string `json:"space_id"`
	SpaceName   string `json:"space_name"`
	UserID      string `json:"user_id"`
	MemberCount int    `json:"member_count"`
}

// ApprovalCreatedEvent is emitted when the routing engine queues content
// for human review.
type ApprovalCreatedEvent struct {
	ApprovalID  string  `json:"approval_id"`
	SpaceID     string  `json:"space_id"`
	UserID      string  `json:"user_id"`
	TurnID      string  `json:"turn_id"`
	Reason      string  `json:"reason"`
	Sensitivity float64 `json:"sensitivity"`
}

// Notifier is a fire-and-forget notification sink. Implementations must
// return promptly; any slow delivery happens on a background goroutine.
type Notifier interface {
	// SpaceJoined is informed of a successful join.
	SpaceJoined(ctx context.Context, ev SpaceJoinedEvent)

	// ApprovalCreated is informed of a new pending approval.
	ApprovalCreated(ctx context.Context, ev ApprovalCreatedEvent)
}

// nopNotifier discards all events.
type nopNotifier struct{}

func (nopNotifier) SpaceJoined(context.Context, SpaceJoinedEvent)         {}
func (nopNotifier) ApprovalCreated(context.Context, ApprovalCreatedEvent) {}

// Nop returns a notifier that discards all events.
func Nop() Notifier {
	return nopNotifier{}
}

// LogNotifier writes events to the structured log. It is the default sink
// when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify.log")}
}

// SpaceJoined logs the join event.
func (n *LogNotifier) SpaceJoined(ctx context.Context, ev SpaceJoinedEvent) {
	n.logger.Info("space joined",
		"space_id", ev.SpaceID,
		"user_id", ev.UserID,
		"member_count", ev.MemberCount,
	)
}

// ApprovalCreated logs the approval event.
func (n *LogNotifier) ApprovalCreated(ctx context.Context, ev ApprovalCreatedEvent) {
	n.logger.Info("approval queued",
		"approval_id", ev.ApprovalID,
		"space_id", ev.SpaceID,
		"user_id", ev.UserID,
		"reason", ev.Reason,
	)
}
