package spaces

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"hivemind-hq/scribe/pkg/notify"
)

// Registry owns all User and Space records and enforces membership
// invariants. It is explicitly constructed and injected into the routing
// engine; tests instantiate isolated registries.
//
// Lock ordering: the registry map lock is never acquired while holding a
// per-space lock, except in LeaveSpace where the per-space lock is released
// first (see the retirement comment there).
type Registry struct {
	mu     sync.RWMutex
	users  map[string]*User
	spaces map[string]*spaceState
	codes  map[string]string // invite code -> space id, live spaces only

	logger   *slog.Logger
	notifier notify.Notifier
	observer Observer
}

// spaceState wraps a Space with its own mutex so create/join/leave and
// policy edits against one space are serialized without blocking the rest
// of the registry.
type spaceState struct {
	mu    sync.Mutex
	space Space
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Logger for registry events. Defaults to slog.Default().
	Logger *slog.Logger

	// Notifier is informed of successful joins, fire-and-forget.
	// Defaults to a no-op sink.
	Notifier notify.Notifier

	// Observer is called once per registry operation with its outcome.
	// Defaults to a no-op sink.
	Observer Observer
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Registry{
		users:    make(map[string]*User),
		spaces:   make(map[string]*spaceState),
		codes:    make(map[string]string),
		logger:   logger.With("component", "spaces.registry"),
		notifier: notifier,
		observer: observer,
	}
}

// CreateUser creates a new user identity.
func (r *Registry) CreateUser(displayName, contactMethod string) (_ *User, err error) {
	defer func() { r.observer.RegistryOperation("create_user", err) }()

	user := &User{
		ID:            newID("usr"),
		DisplayName:   displayName,
		ContactMethod: contactMethod,
		CreatedAt:     time.Now().UTC(),
	}

	r.mu.Lock()
	r.users[user.ID] = user
	r.mu.Unlock()

	r.logger.Info("user created", "user_id", user.ID)

	out := *user
	return &out, nil
}

// GetUser returns the user with the given id.
func (r *Registry) GetUser(userID string) (_ *User, err error) {
	defer func() { r.observer.RegistryOperation("get_user", err) }()

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

// CreateSpaceParams are the inputs to CreateSpace.
type CreateSpaceParams struct {
	CreatorID string
	Name      string
	Type      SpaceType
	Policy    Policy

	// Seats optionally requests a member capacity. Zero means the type
	// default. Requesting more than two seats on a pairwise space fails.
	Seats int
}

// CreateSpace creates a space with a freshly generated invite code unique
// among all live spaces, and enrolls the creator as its first member.
func (r *Registry) CreateSpace(ctx context.Context, params CreateSpaceParams) (_ *Space, err error) {
	defer func() { r.observer.RegistryOperation("create_space", err) }()

	if !params.Type.Valid() {
		return nil, ErrInvalidSpaceType
	}
	if cap := params.Type.Capacity(); cap > 0 && params.Seats > cap {
		return nil, &CapacityError{Type: params.Type, Capacity: cap, Want: params.Seats}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[params.CreatorID]; !ok {
		return nil, ErrUserNotFound
	}

	code, err := r.mintInviteCodeLocked()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	policy := params.Policy
	if policy.ID == "" {
		policy.ID = newID("pol")
	}
	if policy.Version == 0 {
		policy.Version = 1
	}
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	space := Space{
		ID:         newID("spc"),
		Name:       params.Name,
		Type:       params.Type,
		CreatedBy:  params.CreatorID,
		CreatedAt:  now,
		InviteCode: code,
		Policy:     policy,
		Members: []SpaceMember{{
			UserID:   params.CreatorID,
			JoinedAt: now,
			Role:     RoleOwner,
		}},
	}

	r.spaces[space.ID] = &spaceState{space: space}
	r.codes[code] = space.ID

	r.logger.Info("space created",
		"space_id", space.ID,
		"space_type", space.Type,
		"creator", params.CreatorID,
	)

	out := cloneSpace(&space)
	return out, nil
}

// mintInviteCodeLocked generates an invite code not used by any live space.
// Caller must hold r.mu.
func (r *Registry) mintInviteCodeLocked() (string, error) {
	for attempt := 0; attempt < maxInviteAttempts; attempt++ {
		code, err := generateInviteCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.codes[code]; !taken {
			return code, nil
		}
		r.logger.Warn("invite code collision, regenerating", "attempt", attempt+1)
	}
	return "", ErrInviteCodeExhausted
}

// JoinSpace adds the user to the space. It fails with ErrInvalidCode when
// the code does not match, ErrAlreadyMember for repeat joins, and
// ErrSpaceFull when the type capacity is reached. No membership row is
// created on any failure.
func (r *Registry) JoinSpace(ctx context.Context, spaceID, userID, inviteCode string) (_ *Space, err error) {
	defer func() { r.observer.RegistryOperation("join_space", err) }()

	r.mu.RLock()
	st := r.spaces[spaceID]
	user := r.users[userID]
	r.mu.RUnlock()

	if st == nil {
		return nil, ErrSpaceNotFound
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.space.Retired {
		return nil, ErrSpaceNotFound
	}
	if st.space.InviteCode != inviteCode {
		return nil, ErrInvalidCode
	}
	if st.space.IsMember(userID) {
		return nil, ErrAlreadyMember
	}
	if cap := st.space.Type.Capacity(); cap > 0 && len(st.space.Members) >= cap {
		return nil, ErrSpaceFull
	}

	st.space.Members = append(st.space.Members, SpaceMember{
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
		Role:     RoleMember,
	})

	r.logger.Info("member joined",
		"space_id", spaceID,
		"user_id", userID,
		"member_count", len(st.space.Members),
	)

	// Fire-and-forget; the sink must never block or fail the join.
	r.notifier.SpaceJoined(ctx, notify.SpaceJoinedEvent{
		SpaceID:     spaceID,
		SpaceName:   st.space.Name,
		UserID:      userID,
		MemberCount: len(st.space.Members),
	})

	return cloneSpace(&st.space), nil
}

// LeaveSpace removes the user's membership. A space left with zero members
// is retired unless it is public: retired spaces disappear from lookups and
// listings but are never hard-deleted, since filtered documents may still
// reference them.
func (r *Registry) LeaveSpace(ctx context.Context, spaceID, userID string) (err error) {
	defer func() { r.observer.RegistryOperation("leave_space", err) }()

	r.mu.RLock()
	st := r.spaces[spaceID]
	r.mu.RUnlock()

	if st == nil {
		return ErrSpaceNotFound
	}

	st.mu.Lock()
	if st.space.Retired {
		st.mu.Unlock()
		return ErrSpaceNotFound
	}
	if !st.space.IsMember(userID) {
		st.mu.Unlock()
		return ErrNotMember
	}

	members := st.space.Members[:0]
	for _, m := range st.space.Members {
		if m.UserID != userID {
			members = append(members, m)
		}
	}
	st.space.Members = members

	retired := len(st.space.Members) == 0 && st.space.Type != TypePublic
	code := st.space.InviteCode
	if retired {
		st.space.Retired = true
	}
	// Release the space lock before touching the code index to keep the
	// registry-then-space lock ordering. Joins racing this window still
	// see Retired and fail with not-found.
	st.mu.Unlock()

	if retired {
		r.mu.Lock()
		delete(r.codes, code)
		r.mu.Unlock()
		r.logger.Info("space retired", "space_id", spaceID)
	}

	r.logger.Info("member left", "space_id", spaceID, "user_id", userID)
	return nil
}

// GetSpace returns the space with the given id. Retired spaces are not found.
func (r *Registry) GetSpace(spaceID string) (_ *Space, err error) {
	defer func() { r.observer.RegistryOperation("get_space", err) }()
	return r.getSpace(spaceID)
}

func (r *Registry) getSpace(spaceID string) (*Space, error) {
	r.mu.RLock()
	st := r.spaces[spaceID]
	r.mu.RUnlock()

	if st == nil {
		return nil, ErrSpaceNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.space.Retired {
		return nil, ErrSpaceNotFound
	}
	return cloneSpace(&st.space), nil
}

// LookupByInviteCode returns the live space owning the code.
func (r *Registry) LookupByInviteCode(code string) (_ *Space, err error) {
	defer func() { r.observer.RegistryOperation("lookup_invite_code", err) }()

	r.mu.RLock()
	spaceID, ok := r.codes[code]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSpaceNotFound
	}
	return r.getSpace(spaceID)
}

// ListUserSpaces returns every live space the user belongs to, ordered by
// space creation time ascending. The ordering makes routing results
// deterministic.
func (r *Registry) ListUserSpaces(userID string) []*Space {
	defer r.observer.RegistryOperation("list_user_spaces", nil)

	r.mu.RLock()
	states := make([]*spaceState, 0, len(r.spaces))
	for _, st := range r.spaces {
		states = append(states, st)
	}
	r.mu.RUnlock()

	var result []*Space
	for _, st := range states {
		st.mu.Lock()
		if !st.space.Retired && st.space.IsMember(userID) {
			result = append(result, cloneSpace(&st.space))
		}
		st.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// UpdatePolicy replaces the space's policy. Only the space creator may
// edit the policy; the policy keeps its identity and its version is bumped.
func (r *Registry) UpdatePolicy(ctx context.Context, spaceID, requesterID string, newPolicy Policy) (_ *Policy, err error) {
	defer func() { r.observer.RegistryOperation("update_policy", err) }()

	r.mu.RLock()
	st := r.spaces[spaceID]
	r.mu.RUnlock()

	if st == nil {
		return nil, ErrSpaceNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.space.Retired {
		return nil, ErrSpaceNotFound
	}
	if st.space.CreatedBy != requesterID {
		return nil, ErrNotAuthorized
	}

	prev := st.space.Policy
	newPolicy.ID = prev.ID
	newPolicy.Version = prev.Version + 1
	newPolicy.CreatedAt = prev.CreatedAt
	newPolicy.UpdatedAt = time.Now().UTC()
	st.space.Policy = newPolicy

	r.logger.Info("policy updated",
		"space_id", spaceID,
		"policy_version", newPolicy.Version,
		"requester", requesterID,
	)

	out := clonePolicy(&st.space.Policy)
	return out, nil
}

// cloneSpace returns a deep copy safe to hand out of the registry.
func cloneSpace(s *Space) *Space {
	out := *s
	out.Members = append([]SpaceMember(nil), s.Members...)
	out.Policy = *clonePolicy(&s.Policy)
	return &out
}

// clonePolicy returns a deep copy of a policy.
func clonePolicy(p *Policy) *Policy {
	out := *p
	out.InclusionCriteria = append([]string(nil), p.InclusionCriteria...)
	out.ExclusionCriteria = append([]string(nil), p.ExclusionCriteria...)
	out.TriggerKeywords = append([]string(nil), p.TriggerKeywords...)
	out.RequireApprovalIf = append([]string(nil), p.RequireApprovalIf...)
	out.HighSensitivityTopics = append([]string(nil), p.HighSensitivityTopics...)
	return &out
}
