package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hivemind-hq/scribe/pkg/capability"
	"hivemind-hq/scribe/pkg/notify"
	"hivemind-hq/scribe/pkg/sharing"
	"hivemind-hq/scribe/pkg/spaces"
)

// Observer receives routing telemetry. The metrics package provides the
// Prometheus implementation; tests use Nop.
type Observer interface {
	RouteDecision(action Action)
	ClassifierCall(duration time.Duration, failed bool)

	// ApprovalQueued is called once per approval the engine persists.
	ApprovalQueued()
}

type nopObserver struct{}

func (nopObserver) RouteDecision(Action)               {}
func (nopObserver) ClassifierCall(time.Duration, bool) {}
func (nopObserver) ApprovalQueued()                    {}

// NopObserver returns an Observer that discards all telemetry.
func NopObserver() Observer { return nopObserver{} }

// Options tune the engine's concurrency and timeouts.
type Options struct {
	// MaxConcurrent bounds how many spaces are evaluated in parallel for
	// one turn. Default: 4.
	MaxConcurrent int

	// SpaceTimeout bounds the classifier call and store writes for one
	// space. Default: 15s.
	SpaceTimeout time.Duration

	// ApprovalTTL is how long a queued approval stays actionable.
	// Default: 7 days.
	ApprovalTTL time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.SpaceTimeout <= 0 {
		o.SpaceTimeout = 15 * time.Second
	}
	if o.ApprovalTTL <= 0 {
		o.ApprovalTTL = 7 * 24 * time.Hour
	}
}

// Engine routes turns into a user's spaces.
type Engine struct {
	registry   *spaces.Registry
	store      sharing.Store
	classifier capability.Classifier
	notifier   notify.Notifier
	observer   Observer
	conditions *conditionEvaluator
	logger     *slog.Logger
	opts       Options

	// now is swappable for tests.
	now func() time.Time
}

// EngineParams collects the engine's dependencies.
type EngineParams struct {
	Registry   *spaces.Registry
	Store      sharing.Store
	Classifier capability.Classifier
	Notifier   notify.Notifier
	Observer   Observer
	Logger     *slog.Logger
	Options    Options
}

// NewEngine creates a routing engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if params.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if params.Notifier == nil {
		params.Notifier = notify.Nop()
	}
	if params.Observer == nil {
		params.Observer = NopObserver()
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	params.Options.applyDefaults()

	conditions, err := newConditionEvaluator()
	if err != nil {
		return nil, err
	}

	return &Engine{
		registry:   params.Registry,
		store:      params.Store,
		classifier: params.Classifier,
		notifier:   params.Notifier,
		observer:   params.Observer,
		conditions: conditions,
		logger:     params.Logger.With("component", "routing"),
		opts:       params.Options,
		now:        time.Now,
	}, nil
}

// RouteTurn evaluates one turn against every space the user belongs to and
// returns one result per space, ordered by space creation time. Per-space
// failures are reported in their result; RouteTurn itself fails only when
// the user is unknown.
func (e *Engine) RouteTurn(ctx context.Context, userID string, turn spaces.Turn) ([]RouteResult, error) {
	user, err := e.registry.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if turn.ID == "" {
		turn.ID = spaces.NewTurnID()
	}
	if turn.UserID == "" {
		turn.UserID = userID
	}

	memberOf := e.registry.ListUserSpaces(userID)
	results := make([]RouteResult, len(memberOf))

	sem := make(chan struct{}, e.opts.MaxConcurrent)
	var wg sync.WaitGroup
	for i, space := range memberOf {
		wg.Add(1)
		go func(i int, space *spaces.Space) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = e.processSpace(ctx, user, turn, space)
		}(i, space)
	}
	wg.Wait()

	for _, res := range results {
		e.observer.RouteDecision(res.Action)
	}

	e.logger.InfoContext(ctx, "turn routed",
		"turn_id", turn.ID,
		"user_id", userID,
		"spaces", len(results),
	)
	return results, nil
}

// processSpace produces the verdict for one space. It never panics the
// caller and never lets one space's failure leak into another's result.
func (e *Engine) processSpace(ctx context.Context, user *spaces.User, turn spaces.Turn, space *spaces.Space) (res RouteResult) {
	res.SpaceID = space.ID

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while routing",
				"space_id", space.ID,
				"turn_id", turn.ID,
				"panic", r,
			)
			res = RouteResult{
				SpaceID: space.ID,
				Action:  ActionFailed,
				Reason:  "internal error",
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.opts.SpaceTimeout)
	defer cancel()

	// Idempotence: a turn is routed into a space at most once.
	exists, err := e.store.HasArtifact(ctx, turn.ID, space.ID)
	if err != nil {
		return RouteResult{SpaceID: space.ID, Action: ActionFailed, Reason: "store unavailable", Err: err}
	}
	if exists {
		return RouteResult{SpaceID: space.ID, Action: ActionSkipped, Reason: "turn already routed to this space"}
	}

	start := e.now()
	judgment, err := e.classifier.Evaluate(ctx, capability.Request{Turn: turn, Policy: space.Policy})
	e.observer.ClassifierCall(e.now().Sub(start), err != nil)
	if err != nil {
		// Fail safe: queue the raw user message for the author's own
		// review. Nothing is shared and nothing is lost.
		e.logger.WarnContext(ctx, "classifier unavailable, queuing for review",
			"space_id", space.ID,
			"turn_id", turn.ID,
			"error", err,
		)
		return e.queueApproval(ctx, user, turn, space, approvalInput{
			content:     turn.UserMessage,
			reason:      "classifier unavailable; queued for manual review",
			confidence:  0,
			sensitivity: 1.0,
		})
	}

	if !judgment.Relevant {
		return RouteResult{SpaceID: space.ID, Action: ActionSkipped, Reason: judgment.Reason}
	}

	// Exclusion veto beats everything, including mandatory approval: vetoed
	// content must not sit in an approval queue either.
	for _, topic := range judgment.Topics {
		if space.Policy.ExcludesTopic(topic) {
			return RouteResult{
				SpaceID: space.ID,
				Action:  ActionSkipped,
				Reason:  fmt.Sprintf("excluded topic: %s", topic),
			}
		}
	}

	if needed, reason := e.approvalNeeded(judgment, &space.Policy); needed {
		return e.queueApproval(ctx, user, turn, space, approvalInput{
			content:     judgment.ProposedContent,
			reason:      reason,
			confidence:  judgment.Confidence,
			sensitivity: judgment.Sensitivity,
		})
	}

	return e.shareDocument(ctx, user, turn, space, judgment)
}

// approvalNeeded applies the mandatory-approval and threshold checks, in
// that order.
func (e *Engine) approvalNeeded(judgment capability.Judgment, policy *spaces.Policy) (bool, string) {
	if policy.MandatoryApprovalCeiling > 0 && judgment.Sensitivity >= policy.MandatoryApprovalCeiling {
		return true, fmt.Sprintf("sensitivity %.2f at or above ceiling %.2f",
			judgment.Sensitivity, policy.MandatoryApprovalCeiling)
	}

	for _, topic := range judgment.Topics {
		for _, sensitive := range policy.HighSensitivityTopics {
			if topic == sensitive {
				return true, fmt.Sprintf("high-sensitivity topic: %s", topic)
			}
		}
	}

	for _, condition := range policy.RequireApprovalIf {
		fired, err := e.conditions.Fires(condition,
			judgment.Confidence, judgment.Sensitivity, judgment.Topics, judgment.ProposedContent)
		if err != nil {
			e.logger.Warn("approval condition unevaluable, treating as fired",
				"condition", condition,
				"error", err,
			)
		}
		if fired {
			return true, fmt.Sprintf("approval condition fired: %s", condition)
		}
	}

	if judgment.Confidence < policy.AutoApproveThreshold {
		return true, fmt.Sprintf("confidence %.2f below threshold %.2f",
			judgment.Confidence, policy.AutoApproveThreshold)
	}

	return false, ""
}

type approvalInput struct {
	content     string
	reason      string
	confidence  float64
	sensitivity float64
}

func (e *Engine) queueApproval(ctx context.Context, user *spaces.User, turn spaces.Turn, space *spaces.Space, in approvalInput) RouteResult {
	now := e.now().UTC()
	approval := &sharing.PendingApproval{
		ID:              sharing.NewApprovalID(),
		UserID:          user.ID,
		SpaceID:         space.ID,
		SourceTurnID:    turn.ID,
		ProposedContent: in.content,
		Reason:          in.reason,
		Confidence:      in.confidence,
		Sensitivity:     in.sensitivity,
		Status:          sharing.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.opts.ApprovalTTL),
	}

	if err := e.store.SaveApproval(ctx, approval); err != nil {
		if errors.Is(err, sharing.ErrDuplicateArtifact) {
			// Lost a race with a concurrent route of the same turn.
			return RouteResult{SpaceID: space.ID, Action: ActionSkipped, Reason: "turn already routed to this space"}
		}
		return RouteResult{SpaceID: space.ID, Action: ActionFailed, Reason: "store unavailable", Err: err}
	}

	e.observer.ApprovalQueued()

	e.notifier.ApprovalCreated(ctx, notify.ApprovalCreatedEvent{
		ApprovalID:  approval.ID,
		SpaceID:     space.ID,
		UserID:      user.ID,
		TurnID:      turn.ID,
		Reason:      in.reason,
		Sensitivity: in.sensitivity,
	})

	return RouteResult{
		SpaceID:  space.ID,
		Action:   ActionApprovalNeeded,
		Reason:   in.reason,
		Approval: approval,
	}
}

func (e *Engine) shareDocument(ctx context.Context, user *spaces.User, turn spaces.Turn, space *spaces.Space, judgment capability.Judgment) RouteResult {
	doc := &sharing.FilteredDocument{
		ID:             sharing.NewDocumentID(),
		SpaceID:        space.ID,
		SourceTurnID:   turn.ID,
		AuthorID:       user.ID,
		Content:        judgment.ProposedContent,
		OriginalTopics: turn.Topics,
		FilteredTopics: judgment.Topics,
		Attribution:    space.Policy.Attribution,
		Confidence:     judgment.Confidence,
		Sensitivity:    judgment.Sensitivity,
		CreatedAt:      e.now().UTC(),
	}
	if space.Policy.Attribution == spaces.AttributionFull {
		doc.DisplayName = user.DisplayName
		doc.ContactMethod = user.ContactMethod
	}

	if err := e.store.SaveDocument(ctx, doc); err != nil {
		if errors.Is(err, sharing.ErrDuplicateArtifact) {
			return RouteResult{SpaceID: space.ID, Action: ActionSkipped, Reason: "turn already routed to this space"}
		}
		return RouteResult{SpaceID: space.ID, Action: ActionFailed, Reason: "store unavailable", Err: err}
	}

	return RouteResult{
		SpaceID:  space.ID,
		Action:   ActionShared,
		Reason:   "content filtered and shared",
		Document: doc,
	}
}
