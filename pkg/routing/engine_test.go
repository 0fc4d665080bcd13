package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hivemind-hq/scribe/pkg/capability"
	"hivemind-hq/scribe/pkg/notify"
	"hivemind-hq/scribe/pkg/sharing"
	"hivemind-hq/scribe/pkg/sharing/store"
	"hivemind-hq/scribe/pkg/spaces"
)

// stubClassifier returns a fixed judgment, or an error, or calls fn.
type stubClassifier struct {
	judgment capability.Judgment
	err      error
	fn       func(capability.Request) (capability.Judgment, error)

	mu    sync.Mutex
	calls int
}

func (s *stubClassifier) Evaluate(ctx context.Context, req capability.Request) (capability.Judgment, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(req)
	}
	return s.judgment, s.err
}

func (s *stubClassifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingNotifier counts ApprovalCreated events.
type recordingNotifier struct {
	notify.Notifier
	approvals atomic.Int32
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{Notifier: notify.Nop()}
}

func (n *recordingNotifier) ApprovalCreated(ctx context.Context, ev notify.ApprovalCreatedEvent) {
	n.approvals.Add(1)
}

type testEnv struct {
	registry *spaces.Registry
	store    sharing.Store
	engine   *Engine
	notifier *recordingNotifier
	user     *spaces.User
}

func newTestEnv(t *testing.T, classifier capability.Classifier) *testEnv {
	t.Helper()

	registry := spaces.NewRegistry(spaces.RegistryOptions{})
	st := store.NewMemoryStore()
	notifier := newRecordingNotifier()

	engine, err := NewEngine(EngineParams{
		Registry:   registry,
		Store:      st,
		Classifier: classifier,
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	user, err := registry.CreateUser("Alex", "alex@example.com")
	if err != nil {
		t.Fatal(err)
	}

	return &testEnv{registry: registry, store: st, engine: engine, notifier: notifier, user: user}
}

func (env *testEnv) createSpace(t *testing.T, policy spaces.Policy) *spaces.Space {
	t.Helper()
	space, err := env.registry.CreateSpace(context.Background(), spaces.CreateSpaceParams{
		CreatorID: env.user.ID,
		Name:      "test space",
		Type:      spaces.TypeGroup,
		Policy:    policy,
	})
	if err != nil {
		t.Fatal(err)
	}
	return space
}

func permissivePolicy() spaces.Policy {
	return spaces.Policy{
		InclusionCriteria:    []string{"general"},
		Attribution:          spaces.AttributionFull,
		AutoApproveThreshold: 0.5,
	}
}

func relevantJudgment() capability.Judgment {
	return capability.Judgment{
		Relevant:        true,
		Reason:          "matches criterion: general",
		ProposedContent: "filtered content",
		Topics:          []string{"general"},
		Confidence:      0.8,
		Sensitivity:     0.3,
	}
}

func testTurn() spaces.Turn {
	return spaces.Turn{
		ID:          spaces.NewTurnID(),
		UserMessage: "made good progress today",
		Timestamp:   time.Now().UTC(),
	}
}

func TestRouteSharesRelevantContent(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{judgment: relevantJudgment()})
	space := env.createSpace(t, permissivePolicy())

	results, err := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if err != nil {
		t.Fatalf("RouteTurn: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.Action != ActionShared {
		t.Fatalf("action = %q (%s), want shared", res.Action, res.Reason)
	}
	if res.Document == nil || res.Document.Content != "filtered content" {
		t.Fatalf("document = %+v", res.Document)
	}
	if res.Document.DisplayName != "Alex" {
		t.Errorf("full attribution lost: %+v", res.Document)
	}

	docs, err := env.store.ListDocuments(context.Background(), space.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("store has %d documents, want 1", len(docs))
	}
}

func TestRouteSkipsIrrelevantContent(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{judgment: capability.Judgment{
		Relevant: false,
		Reason:   "does not match policy criteria",
	}})
	space := env.createSpace(t, permissivePolicy())

	results, err := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Action != ActionSkipped {
		t.Fatalf("action = %q, want skipped", results[0].Action)
	}

	docs, _ := env.store.ListDocuments(context.Background(), space.ID)
	pending, _ := env.store.ListPendingApprovals(context.Background(), env.user.ID)
	if len(docs) != 0 || len(pending) != 0 {
		t.Error("skipped turn left artifacts behind")
	}
}

func TestRouteQueuesApprovalOnSensitivityCeiling(t *testing.T) {
	judgment := relevantJudgment()
	judgment.Sensitivity = 0.9
	env := newTestEnv(t, &stubClassifier{judgment: judgment})

	policy := permissivePolicy()
	policy.MandatoryApprovalCeiling = 0.85
	env.createSpace(t, policy)

	results, err := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if err != nil {
		t.Fatal(err)
	}
	res := results[0]
	if res.Action != ActionApprovalNeeded {
		t.Fatalf("action = %q (%s), want approval_needed", res.Action, res.Reason)
	}
	if res.Approval == nil || res.Approval.Status != sharing.StatusPending {
		t.Fatalf("approval = %+v", res.Approval)
	}
	if res.Approval.ExpiresAt.Sub(res.Approval.CreatedAt) != 7*24*time.Hour {
		t.Errorf("approval TTL = %v, want 7 days", res.Approval.ExpiresAt.Sub(res.Approval.CreatedAt))
	}
	if env.notifier.approvals.Load() != 1 {
		t.Errorf("approval notification count = %d, want 1", env.notifier.approvals.Load())
	}
}

func TestRouteZeroCeilingDisablesSensitivityCheck(t *testing.T) {
	judgment := relevantJudgment()
	judgment.Sensitivity = 0.99
	env := newTestEnv(t, &stubClassifier{judgment: judgment})

	// The permissive policy leaves the ceiling at zero, which turns the
	// sensitivity check off entirely.
	env.createSpace(t, permissivePolicy())

	results, err := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Action != ActionShared {
		t.Fatalf("action = %q (%s), want shared", results[0].Action, results[0].Reason)
	}
}

func TestRouteQueuesApprovalOnCondition(t *testing.T) {
	judgment := relevantJudgment()
	judgment.Sensitivity = 0.65
	env := newTestEnv(t, &stubClassifier{judgment: judgment})

	policy := permissivePolicy()
	policy.RequireApprovalIf = []string{`sensitivity > 0.6`}
	env.createSpace(t, policy)

	results, _ := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if results[0].Action != ActionApprovalNeeded {
		t.Fatalf("action = %q (%s), want approval_needed", results[0].Action, results[0].Reason)
	}
}

func TestRouteTopicConditionFires(t *testing.T) {
	judgment := relevantJudgment()
	judgment.Topics = []string{"general", "conflict"}
	env := newTestEnv(t, &stubClassifier{judgment: judgment})

	policy := permissivePolicy()
	policy.RequireApprovalIf = []string{`topics.exists(t, t == "conflict")`}
	env.createSpace(t, policy)

	results, _ := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if results[0].Action != ActionApprovalNeeded {
		t.Fatalf("action = %q, want approval_needed", results[0].Action)
	}
}

func TestRouteUnevaluableConditionFires(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{judgment: relevantJudgment()})

	policy := permissivePolicy()
	policy.RequireApprovalIf = []string{`this is not CEL ((`}
	env.createSpace(t, policy)

	results, _ := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if results[0].Action != ActionApprovalNeeded {
		t.Fatalf("broken condition did not force approval: %q", results[0].Action)
	}
}

func TestRouteExclusionVetoBeatsApproval(t *testing.T) {
	judgment := relevantJudgment()
	judgment.Topics = []string{"financial_specifics"}
	judgment.Sensitivity = 0.99
	env := newTestEnv(t, &stubClassifier{judgment: judgment})

	policy := permissivePolicy()
	policy.ExclusionCriteria = []string{"financial_specifics"}
	policy.MandatoryApprovalCeiling = 0.5
	env.createSpace(t, policy)

	results, _ := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	res := results[0]
	if res.Action != ActionSkipped {
		t.Fatalf("action = %q, want skipped: excluded content must not even be queued", res.Action)
	}

	pending, _ := env.store.ListPendingApprovals(context.Background(), env.user.ID)
	if len(pending) != 0 {
		t.Error("vetoed content sits in the approval queue")
	}
}

func TestRouteHighSensitivityTopicForcesApproval(t *testing.T) {
	judgment := relevantJudgment()
	judgment.Topics = []string{"separation"}
	env := newTestEnv(t, &stubClassifier{judgment: judgment})

	policy := permissivePolicy()
	policy.HighSensitivityTopics = []string{"separation"}
	env.createSpace(t, policy)

	results, _ := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if results[0].Action != ActionApprovalNeeded {
		t.Fatalf("action = %q, want approval_needed", results[0].Action)
	}
}

func TestRouteLowConfidenceDefaultsToApproval(t *testing.T) {
	judgment := relevantJudgment()
	judgment.Confidence = 0.4
	env := newTestEnv(t, &stubClassifier{judgment: judgment})

	policy := permissivePolicy()
	policy.AutoApproveThreshold = 0.7
	env.createSpace(t, policy)

	results, _ := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if results[0].Action != ActionApprovalNeeded {
		t.Fatalf("action = %q, want approval_needed", results[0].Action)
	}
}

func TestRouteClassifierFailureQueuesRawMessage(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{err: fmt.Errorf("%w: connection refused", capability.ErrUnavailable)})
	env.createSpace(t, permissivePolicy())

	turn := testTurn()
	results, err := env.engine.RouteTurn(context.Background(), env.user.ID, turn)
	if err != nil {
		t.Fatal(err)
	}
	res := results[0]
	if res.Action != ActionApprovalNeeded {
		t.Fatalf("action = %q, want approval_needed fallback", res.Action)
	}
	if res.Approval.ProposedContent != turn.UserMessage {
		t.Errorf("fallback approval content = %q, want raw user message", res.Approval.ProposedContent)
	}
	if res.Approval.Confidence != 0 || res.Approval.Sensitivity != 1.0 {
		t.Errorf("fallback scores = %v/%v, want 0/1", res.Approval.Confidence, res.Approval.Sensitivity)
	}
}

func TestRouteIdempotentPerTurnAndSpace(t *testing.T) {
	classifier := &stubClassifier{judgment: relevantJudgment()}
	env := newTestEnv(t, classifier)
	space := env.createSpace(t, permissivePolicy())

	turn := testTurn()
	first, err := env.engine.RouteTurn(context.Background(), env.user.ID, turn)
	if err != nil {
		t.Fatal(err)
	}
	if first[0].Action != ActionShared {
		t.Fatalf("first route = %q", first[0].Action)
	}

	second, err := env.engine.RouteTurn(context.Background(), env.user.ID, turn)
	if err != nil {
		t.Fatal(err)
	}
	if second[0].Action != ActionSkipped {
		t.Fatalf("second route = %q, want skipped", second[0].Action)
	}

	docs, _ := env.store.ListDocuments(context.Background(), space.ID)
	if len(docs) != 1 {
		t.Fatalf("store has %d documents after replay, want 1", len(docs))
	}
	if classifier.callCount() != 1 {
		t.Errorf("classifier called %d times, want 1 (dedup before evaluation)", classifier.callCount())
	}
}

// countingObserver records routing telemetry callbacks.
type countingObserver struct {
	decisions       sync.Map // Action -> *atomic.Int32
	classifierCalls atomic.Int32
	approvalsQueued atomic.Int32
}

func (o *countingObserver) RouteDecision(action Action) {
	v, _ := o.decisions.LoadOrStore(action, new(atomic.Int32))
	v.(*atomic.Int32).Add(1)
}

func (o *countingObserver) ClassifierCall(time.Duration, bool) {
	o.classifierCalls.Add(1)
}

func (o *countingObserver) ApprovalQueued() {
	o.approvalsQueued.Add(1)
}

func (o *countingObserver) decisionCount(action Action) int32 {
	v, ok := o.decisions.Load(action)
	if !ok {
		return 0
	}
	return v.(*atomic.Int32).Load()
}

func TestRouteObserverSeesQueuedApprovals(t *testing.T) {
	judgment := relevantJudgment()
	judgment.Sensitivity = 0.9
	obs := &countingObserver{}

	registry := spaces.NewRegistry(spaces.RegistryOptions{})
	st := store.NewMemoryStore()
	engine, err := NewEngine(EngineParams{
		Registry:   registry,
		Store:      st,
		Classifier: &stubClassifier{judgment: judgment},
		Observer:   obs,
	})
	if err != nil {
		t.Fatal(err)
	}
	user, _ := registry.CreateUser("Alex", "")

	ceiling := permissivePolicy()
	ceiling.MandatoryApprovalCeiling = 0.85
	for _, policy := range []spaces.Policy{permissivePolicy(), ceiling} {
		if _, err := registry.CreateSpace(context.Background(), spaces.CreateSpaceParams{
			CreatorID: user.ID,
			Name:      "test space",
			Type:      spaces.TypeGroup,
			Policy:    policy,
		}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := engine.RouteTurn(context.Background(), user.ID, testTurn())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	if got := obs.approvalsQueued.Load(); got != 1 {
		t.Errorf("observer saw %d queued approvals, want 1", got)
	}
	if got := obs.decisionCount(ActionShared); got != 1 {
		t.Errorf("observer saw %d shared decisions, want 1", got)
	}
	if got := obs.decisionCount(ActionApprovalNeeded); got != 1 {
		t.Errorf("observer saw %d approval_needed decisions, want 1", got)
	}
	if got := obs.classifierCalls.Load(); got != 2 {
		t.Errorf("observer saw %d classifier calls, want 2", got)
	}
}

func TestRouteResultsFollowSpaceCreationOrder(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{judgment: relevantJudgment()})

	var created []string
	for i := 0; i < 5; i++ {
		space := env.createSpace(t, permissivePolicy())
		created = append(created, space.ID)
		time.Sleep(2 * time.Millisecond)
	}

	results, err := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(created) {
		t.Fatalf("got %d results, want %d", len(results), len(created))
	}
	for i, res := range results {
		if res.SpaceID != created[i] {
			t.Fatalf("result %d is for %s, want %s", i, res.SpaceID, created[i])
		}
	}
}

func TestRouteIsolatesPerSpaceFailures(t *testing.T) {
	classifier := &stubClassifier{fn: func(req capability.Request) (capability.Judgment, error) {
		if len(req.Policy.InclusionCriteria) > 0 && req.Policy.InclusionCriteria[0] == "broken" {
			return capability.Judgment{}, errors.New("boom")
		}
		return relevantJudgment(), nil
	}}
	env := newTestEnv(t, classifier)

	env.createSpace(t, permissivePolicy())
	broken := permissivePolicy()
	broken.InclusionCriteria = []string{"broken"}
	env.createSpace(t, broken)
	env.createSpace(t, permissivePolicy())

	results, err := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Action != ActionShared || results[2].Action != ActionShared {
		t.Errorf("healthy spaces affected: %q, %q", results[0].Action, results[2].Action)
	}
	if results[1].Action != ActionApprovalNeeded {
		t.Errorf("failing space action = %q, want approval_needed fallback", results[1].Action)
	}
}

func TestRouteUnknownUser(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{judgment: relevantJudgment()})

	_, err := env.engine.RouteTurn(context.Background(), "user_missing", testTurn())
	if !errors.Is(err, spaces.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestRouteNoSpaces(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{judgment: relevantJudgment()})

	results, err := env.engine.RouteTurn(context.Background(), env.user.ID, testTurn())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results for a user with no spaces", len(results))
	}
}

func TestRouteBoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	classifier := &stubClassifier{fn: func(req capability.Request) (capability.Judgment, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return relevantJudgment(), nil
	}}

	registry := spaces.NewRegistry(spaces.RegistryOptions{})
	st := store.NewMemoryStore()
	engine, err := NewEngine(EngineParams{
		Registry:   registry,
		Store:      st,
		Classifier: classifier,
		Options:    Options{MaxConcurrent: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	user, _ := registry.CreateUser("Alex", "")
	for i := 0; i < 8; i++ {
		if _, err := registry.CreateSpace(context.Background(), spaces.CreateSpaceParams{
			CreatorID: user.ID,
			Name:      fmt.Sprintf("space %d", i),
			Type:      spaces.TypeGroup,
			Policy:    permissivePolicy(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := engine.RouteTurn(context.Background(), user.ID, testTurn()); err != nil {
		t.Fatal(err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}
