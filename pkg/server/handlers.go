package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hivemind-hq/scribe/pkg/approvals"
	"hivemind-hq/scribe/pkg/spaces"
	"hivemind-hq/scribe/pkg/telemetry/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- users ---

type createUserRequest struct {
	DisplayName   string `json:"display_name"`
	ContactMethod string `json:"contact_method"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "display_name is required")
		return
	}

	user, err := s.registry.CreateUser(req.DisplayName, req.ContactMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.registry.GetUser(chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUserSpaces(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := s.registry.GetUser(userID); err != nil {
		writeDomainError(w, err)
		return
	}
	list := s.registry.ListUserSpaces(userID)
	writeJSON(w, http.StatusOK, map[string]any{"spaces": list, "count": len(list)})
}

// --- templates ---

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list := s.catalog.List()
	writeJSON(w, http.StatusOK, map[string]any{"templates": list, "count": len(list)})
}

// --- spaces ---

type createSpaceRequest struct {
	CreatorID  string           `json:"creator_id"`
	Name       string           `json:"name"`
	Type       spaces.SpaceType `json:"space_type"`
	TemplateID string           `json:"template_id"`
	Seats      int              `json:"seats"`

	// Policy, when present, overrides the template's policy wholesale.
	Policy *spaces.Policy `json:"policy"`
}

func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	var req createSpaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CreatorID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "creator_id and name are required")
		return
	}

	policy := s.catalog.PolicyFor(req.TemplateID)
	if req.Policy != nil {
		policy = *req.Policy
	}

	space, err := s.registry.CreateSpace(r.Context(), spaces.CreateSpaceParams{
		CreatorID: req.CreatorID,
		Name:      req.Name,
		Type:      req.Type,
		Policy:    policy,
		Seats:     req.Seats,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, space)
}

// handleLookupSpace resolves an invite code to its live space so a client
// can preview what it is joining.
func (s *Server) handleLookupSpace(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("invite_code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "invite_code query parameter is required")
		return
	}

	space, err := s.registry.LookupByInviteCode(code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

func (s *Server) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	space, err := s.registry.GetSpace(chi.URLParam(r, "spaceID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

type joinSpaceRequest struct {
	UserID     string `json:"user_id"`
	InviteCode string `json:"invite_code"`
}

func (s *Server) handleJoinSpace(w http.ResponseWriter, r *http.Request) {
	var req joinSpaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	spaceID := chi.URLParam(r, "spaceID")
	ctx := logging.WithSpaceID(logging.WithUserID(r.Context(), req.UserID), spaceID)

	space, err := s.registry.JoinSpace(ctx, spaceID, req.UserID, req.InviteCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

type leaveSpaceRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleLeaveSpace(w http.ResponseWriter, r *http.Request) {
	var req leaveSpaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	if err := s.registry.LeaveSpace(r.Context(), chi.URLParam(r, "spaceID"), req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

type updatePolicyRequest struct {
	RequesterID string        `json:"requester_id"`
	Policy      spaces.Policy `json:"policy"`
}

func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req updatePolicyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RequesterID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "requester_id is required")
		return
	}

	policy, err := s.registry.UpdatePolicy(r.Context(), chi.URLParam(r, "spaceID"), req.RequesterID, req.Policy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id query parameter is required")
		return
	}

	space, err := s.registry.GetSpace(spaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Documents are visible to members only.
	if !space.IsMember(userID) {
		writeDomainError(w, spaces.ErrNotMember)
		return
	}

	docs, err := s.store.ListDocuments(r.Context(), spaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// --- routing ---

type routeTurnRequest struct {
	UserID string `json:"user_id"`
	Turn   struct {
		TurnID           string    `json:"turn_id"`
		Timestamp        time.Time `json:"timestamp"`
		UserMessage      string    `json:"user_message"`
		AssistantMessage string    `json:"assistant_message"`
		Topics           []string  `json:"topics"`
	} `json:"turn"`
}

func (s *Server) handleRouteTurn(w http.ResponseWriter, r *http.Request) {
	var req routeTurnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if req.Turn.UserMessage == "" && req.Turn.AssistantMessage == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "turn has no content")
		return
	}

	turn := spaces.Turn{
		ID:               req.Turn.TurnID,
		UserID:           req.UserID,
		Timestamp:        req.Turn.Timestamp,
		UserMessage:      req.Turn.UserMessage,
		AssistantMessage: req.Turn.AssistantMessage,
		Topics:           req.Turn.Topics,
	}

	ctx := logging.WithUserID(r.Context(), req.UserID)
	results, err := s.engine.RouteTurn(ctx, req.UserID, turn)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// --- approvals ---

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	list, err := s.queue.ListPending(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": list, "count": len(list)})
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id query parameter is required")
		return
	}

	approval, err := s.queue.Get(r.Context(), userID, chi.URLParam(r, "approvalID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

type resolveApprovalRequest struct {
	UserID        string `json:"user_id"`
	Approve       bool   `json:"approve"`
	EditedContent string `json:"edited_content"`
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	var req resolveApprovalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	ctx := logging.WithUserID(r.Context(), req.UserID)
	doc, err := s.queue.Resolve(ctx, req.UserID, chi.URLParam(r, "approvalID"), approvals.Decision{
		Approve:       req.Approve,
		EditedContent: req.EditedContent,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{"resolved": true, "approved": req.Approve}
	if doc != nil {
		resp["document"] = doc
	}
	writeJSON(w, http.StatusOK, resp)
}
