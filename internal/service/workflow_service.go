package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/hra-case-service/internal/classification"
	"github.com/spec-kit/hra-case-service/internal/config"
	"github.com/spec-kit/hra-case-service/internal/domain"
	"github.com/spec-kit/hra-case-service/internal/events"
	"github.com/spec-kit/hra-case-service/internal/observability"
	"github.com/spec-kit/hra-case-service/internal/repository"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

// SystemActorID marks transitions driven by the service itself, such as
// bulk auto-completion.
const SystemActorID = "system"

// TargetSelf is the assignCase sentinel for self-assignment.
const TargetSelf = "self"

// WorkflowService owns case status. Every mutation goes through the
// transition table below and lands one immutable history entry; concurrent
// writers against the same case are serialized by version compare-and-swap.
type WorkflowService struct {
	cases      repository.CaseRepository
	history    repository.CaseHistoryRepository
	assignment *AssignmentService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	cfg        config.WorkflowConfig
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	CaseRepo    repository.CaseRepository
	HistoryRepo repository.CaseHistoryRepository
	Assignment  *AssignmentService
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
}

// NewWorkflowService constructs the service.
func NewWorkflowService(cfg config.WorkflowConfig, deps WorkflowDependencies) *WorkflowService {
	return &WorkflowService{
		cases:      deps.CaseRepo,
		history:    deps.HistoryRepo,
		assignment: deps.Assignment,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		cfg:        cfg,
	}
}

type transitionKey struct {
	from domain.CaseStatus
	to   domain.CaseStatus
}

type transitionRule struct {
	// roles restricts acting roles; empty means any role may act.
	roles []domain.Role
	// holderOnly requires the actor to be the current assignee.
	holderOnly bool
}

// transitionTable is the single authorization source for every workflow
// move. Completed has no outbound entries.
var transitionTable = map[transitionKey]transitionRule{
	{domain.CaseStatusUnassigned, domain.CaseStatusAssigned}:  {roles: []domain.Role{domain.RoleAnalyst, domain.RoleManager}},
	{domain.CaseStatusAssigned, domain.CaseStatusInProgress}:  {holderOnly: true},
	{domain.CaseStatusAssigned, domain.CaseStatusEscalated}:   {holderOnly: true},
	{domain.CaseStatusInProgress, domain.CaseStatusEscalated}: {holderOnly: true},
	{domain.CaseStatusEscalated, domain.CaseStatusReturned}:   {roles: []domain.Role{domain.RoleFluAml, domain.RoleGfc}, holderOnly: true},
	{domain.CaseStatusReturned, domain.CaseStatusAssigned}:    {roles: []domain.Role{domain.RoleAnalyst, domain.RoleManager}},
	{domain.CaseStatusInProgress, domain.CaseStatusCompleted}: {holderOnly: true},
	{domain.CaseStatusEscalated, domain.CaseStatusCompleted}:  {holderOnly: true},
}

// authorizeTransition checks the table for the attempted move. It is the
// only place role capability against the workflow is decided.
func authorizeTransition(actor *domain.User, c *domain.Case, to domain.CaseStatus) error {
	rule, ok := transitionTable[transitionKey{c.Status, to}]
	if !ok {
		return apperrors.NewInvalidTransition(string(c.Status), string(to), actorRoleName(actor))
	}
	if rule.holderOnly && (actor == nil || !c.HeldBy(actor.ID)) {
		return apperrors.NewInvalidTransition(string(c.Status), string(to), actorRoleName(actor))
	}
	if len(rule.roles) > 0 && (actor == nil || !roleAllowed(actor.Role, rule.roles)) {
		return apperrors.NewInvalidTransition(string(c.Status), string(to), actorRoleName(actor))
	}
	return nil
}

func actorRoleName(actor *domain.User) string {
	if actor == nil {
		return SystemActorID
	}
	return string(actor.Role)
}

// CaseCreateInput describes a manual or bulk intake record.
type CaseCreateInput struct {
	CaseID     string
	ClientRef  string
	ClientName string
	LOB        string
	Priority   domain.CasePriority
	RiskRating domain.RiskRating
	Indicators domain.Indicators
}

// ValidateIntake checks the required intake fields. Shared with the bulk
// processor, which records failures per row instead of aborting.
func ValidateIntake(input CaseCreateInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.ClientRef) == "" {
		details["client_ref"] = "required"
	}
	if strings.TrimSpace(input.LOB) == "" {
		details["lob"] = "required"
	}
	if !domain.ValidPriority(input.Priority) {
		details["priority"] = "must be one of LOW, MEDIUM, HIGH, CRITICAL"
	}
	if !domain.ValidRiskRating(input.RiskRating) {
		details["risk_rating"] = "must be one of Low, Medium, High"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid intake record", details)
	}
	return nil
}

// CreateCase runs intake through the classification engine. Clean cases
// complete immediately with outcome Retain; flagged cases are created
// Unassigned for manual pickup. A nil actor records the system as author.
func (s *WorkflowService) CreateCase(ctx context.Context, actor *domain.User, input CaseCreateInput) (*domain.Case, error) {
	if err := ValidateIntake(input); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(input.CaseID)
	if id == "" {
		generated, err := s.cases.NextCaseID(ctx, time.Now().Year())
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		id = generated
	}

	c := &domain.Case{
		ID:         id,
		ClientRef:  strings.TrimSpace(input.ClientRef),
		ClientName: strings.TrimSpace(input.ClientName),
		LOB:        input.LOB,
		Priority:   input.Priority,
		RiskRating: input.RiskRating,
		Indicators: input.Indicators,
		Status:     domain.CaseStatusUnassigned,
	}

	disposition := classification.Classify(input.Indicators)
	if disposition == classification.AutoComplete {
		outcome := domain.OutcomeRetain
		now := time.Now()
		c.Status = domain.CaseStatusCompleted
		c.Outcome = &outcome
		c.CompletedAt = &now
	} else {
		c.ReviewReasons = classification.Reasons(input.Indicators)
	}

	if err := s.cases.Create(ctx, c); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.appendHistory(ctx, actor, c, domain.CaseStatusUnassigned, domain.HistoryTagTransition, "intake", nil, nil); err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:      events.EventCaseCreated,
		SubjectID: c.ID,
		Payload: events.CaseCreatedPayload{
			LOB:           c.LOB,
			Priority:      c.Priority,
			RiskRating:    c.RiskRating,
			Status:        c.Status,
			ReviewReasons: c.ReviewReasons,
		},
	})
	if c.Status == domain.CaseStatusCompleted {
		s.metrics.RecordTransition(string(domain.CaseStatusUnassigned), string(domain.CaseStatusCompleted))
		s.publish(ctx, actor, events.Event{
			Type:      events.EventCaseCompleted,
			SubjectID: c.ID,
			Payload:   events.CaseCompletedPayload{Outcome: domain.OutcomeRetain},
		})
	}
	return c, nil
}

// AssignCase binds a case to a reviewer and moves it to Assigned. Valid
// from Unassigned and Returned. Analysts may only take a case themselves;
// Managers may name any eligible Analyst/Manager (an explicit target is a
// Manager override and skips the capacity guard) or leave the target empty
// to pull from the capacity-ranked pool.
func (s *WorkflowService) AssignCase(ctx context.Context, actor *domain.User, caseID, target string) (*domain.Case, error) {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, c, domain.CaseStatusAssigned); err != nil {
		return nil, err
	}

	assigneeRoles := []domain.Role{domain.RoleAnalyst, domain.RoleManager}
	var assignee *domain.User
	override := false
	// A Returned case still has a holder; acquiring for the same person
	// again would double-count their load.
	acquired := true
	switch {
	case target == TargetSelf || (actor != nil && target == actor.ID):
		if actor == nil {
			return nil, apperrors.NewUnauthorized("actor required")
		}
		if !actor.CoversLOB(c.LOB) {
			return nil, apperrors.NewForbidden("case outside actor line of business")
		}
		if c.AssigneeID != nil && *c.AssigneeID == actor.ID {
			acquired = false
		} else {
			enforce := !actor.Role.AtLeast(domain.RoleManager)
			ok, aerr := s.assignment.directory.AcquireCase(ctx, actor.ID, enforce)
			if aerr != nil {
				return nil, apperrors.MapError(aerr)
			}
			if !ok {
				return nil, apperrors.NewNoCapacity(c.LOB)
			}
		}
		assignee = actor
	case target == "":
		if actor == nil || !actor.Role.AtLeast(domain.RoleManager) {
			return nil, apperrors.NewForbidden("pool assignment requires manager tier")
		}
		assignee, err = s.assignment.Bind(ctx, c.LOB, assigneeRoles, nil)
		if err != nil {
			return nil, err
		}
	default:
		if actor == nil || !actor.Role.AtLeast(domain.RoleManager) {
			return nil, apperrors.NewForbidden("naming an assignee requires manager tier")
		}
		override = true
		assignee, err = s.assignment.Bind(ctx, c.LOB, assigneeRoles, &target)
		if err != nil {
			return nil, err
		}
	}

	from := c.Status
	oldAssignee := c.AssigneeID
	c.Status = domain.CaseStatusAssigned
	c.AssigneeID = &assignee.ID
	c.PriorAssigneeID = nil
	if err := s.commit(ctx, c, from, actor, "", oldAssignee); err != nil {
		if acquired {
			// Roll the count back so the failed bind does not leak load.
			_ = s.assignment.Release(ctx, assignee.ID)
		}
		return nil, err
	}
	// Unbind the previous holder of a Returned case. When the pool or an
	// override lands on the same person this cancels the extra acquire.
	if acquired && oldAssignee != nil {
		_ = s.assignment.Release(ctx, *oldAssignee)
	}

	s.publish(ctx, actor, events.Event{
		Type:      events.EventCaseAssigned,
		SubjectID: c.ID,
		Payload: events.CaseAssignedPayload{
			AssigneeID: assignee.ID,
			LOB:        c.LOB,
			Override:   override,
		},
	})
	return c, nil
}

// StartCase moves Assigned -> InProgress for the current holder.
func (s *WorkflowService) StartCase(ctx context.Context, actor *domain.User, caseID string) (*domain.Case, error) {
	return s.simpleTransition(ctx, actor, caseID, domain.CaseStatusInProgress, "")
}

// EscalateCase hands the case to the next tier up from the current
// holder's role. The new holder comes from the capacity-ranked pool at the
// target tier; when that tier has no capacity the case stays put.
func (s *WorkflowService) EscalateCase(ctx context.Context, actor *domain.User, caseID string) (*domain.Case, error) {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, c, domain.CaseStatusEscalated); err != nil {
		return nil, err
	}

	targetRole, ok := actor.Role.NextTier()
	if !ok {
		return nil, apperrors.NewInvalidTransition(string(c.Status), string(domain.CaseStatusEscalated), string(actor.Role))
	}
	newHolder, err := s.assignment.Bind(ctx, c.LOB, []domain.Role{targetRole}, nil)
	if err != nil {
		return nil, err
	}

	from := c.Status
	oldAssignee := c.AssigneeID
	c.Status = domain.CaseStatusEscalated
	c.PriorAssigneeID = oldAssignee
	c.AssigneeID = &newHolder.ID
	if err := s.commit(ctx, c, from, actor, "", oldAssignee); err != nil {
		_ = s.assignment.Release(ctx, newHolder.ID)
		return nil, err
	}
	if oldAssignee != nil {
		_ = s.assignment.Release(ctx, *oldAssignee)
	}

	s.publish(ctx, actor, events.Event{
		Type:      events.EventCaseAssigned,
		SubjectID: c.ID,
		Payload:   events.CaseAssignedPayload{AssigneeID: newHolder.ID, LOB: c.LOB},
	})
	return c, nil
}

// ReturnCase sends an escalated case back down with a mandatory reason.
// The receiving holder defaults to the pre-escalation assignee when still
// eligible, else the case re-enters the capacity-ranked Analyst pool.
func (s *WorkflowService) ReturnCase(ctx context.Context, actor *domain.User, caseID, reason string) (*domain.Case, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("return reason required", nil)
	}
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, c, domain.CaseStatusReturned); err != nil {
		return nil, err
	}

	newHolder, err := s.returnHolder(ctx, c)
	if err != nil {
		return nil, err
	}

	from := c.Status
	oldAssignee := c.AssigneeID
	c.Status = domain.CaseStatusReturned
	c.AssigneeID = &newHolder.ID
	c.PriorAssigneeID = nil
	if err := s.commit(ctx, c, from, actor, reason, oldAssignee); err != nil {
		_ = s.assignment.Release(ctx, newHolder.ID)
		return nil, err
	}
	if oldAssignee != nil {
		_ = s.assignment.Release(ctx, *oldAssignee)
	}
	return c, nil
}

// CompleteCase closes the case with the supplied outcome. Only the current
// holder may complete, from InProgress or Escalated. Completed is terminal.
func (s *WorkflowService) CompleteCase(ctx context.Context, actor *domain.User, caseID string, outcome domain.CaseOutcome) (*domain.Case, error) {
	if !domain.ValidOutcome(outcome) {
		return nil, apperrors.NewValidationError("invalid outcome", map[string]any{"outcome": outcome})
	}
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, c, domain.CaseStatusCompleted); err != nil {
		return nil, err
	}

	from := c.Status
	holder := c.AssigneeID
	now := time.Now()
	c.Status = domain.CaseStatusCompleted
	c.Outcome = &outcome
	c.CompletedAt = &now
	if err := s.commit(ctx, c, from, actor, "", holder); err != nil {
		return nil, err
	}
	if holder != nil {
		_ = s.assignment.Release(ctx, *holder)
	}

	s.publish(ctx, actor, events.Event{
		Type:      events.EventCaseCompleted,
		SubjectID: c.ID,
		Payload:   events.CaseCompletedPayload{Outcome: outcome},
	})
	return c, nil
}

// ReassignCase moves the case to a different holder without a status
// change. Manager tier and above only; logged as a reassignment entry.
func (s *WorkflowService) ReassignCase(ctx context.Context, actor *domain.User, caseID, targetUserID string) (*domain.Case, error) {
	if actor == nil || !actor.Role.AtLeast(domain.RoleManager) {
		return nil, apperrors.NewForbidden("reassignment requires manager tier")
	}
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() || c.Status == domain.CaseStatusUnassigned {
		return nil, apperrors.NewInvalidTransition(string(c.Status), string(c.Status), string(actor.Role))
	}
	if c.AssigneeID != nil && *c.AssigneeID == targetUserID {
		return nil, apperrors.NewValidationError("case already held by target", nil)
	}

	newHolder, err := s.assignment.Bind(ctx, c.LOB, []domain.Role{domain.RoleAnalyst, domain.RoleManager, domain.RoleFluAml, domain.RoleGfc}, &targetUserID)
	if err != nil {
		return nil, err
	}

	oldAssignee := c.AssigneeID
	version := c.Version
	c.AssigneeID = &newHolder.ID
	if err := s.cases.UpdateVersioned(ctx, c, version); err != nil {
		_ = s.assignment.Release(ctx, newHolder.ID)
		return nil, apperrors.MapError(err)
	}
	if oldAssignee != nil {
		_ = s.assignment.Release(ctx, *oldAssignee)
	}
	if err := s.appendHistory(ctx, actor, c, c.Status, domain.HistoryTagReassignment, "reassignment", oldAssignee, c.AssigneeID); err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.Event{
		Type:      events.EventCaseReassigned,
		SubjectID: c.ID,
		Payload: events.CaseReassignedPayload{
			OldAssigneeID: oldAssignee,
			NewAssigneeID: newHolder.ID,
		},
	})
	return c, nil
}

// GetCase fetches a case by id.
func (s *WorkflowService) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	return s.getCase(ctx, caseID)
}

// ListCases returns cases matching the reporting filter.
func (s *WorkflowService) ListCases(ctx context.Context, filter repository.CaseFilter) ([]domain.Case, error) {
	cases, err := s.cases.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cases, nil
}

// ListHistory returns the audit trail for a case, oldest first.
func (s *WorkflowService) ListHistory(ctx context.Context, caseID string, limit, offset int) ([]domain.CaseHistory, error) {
	if _, err := s.getCase(ctx, caseID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByCase(ctx, caseID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *WorkflowService) returnHolder(ctx context.Context, c *domain.Case) (*domain.User, error) {
	analystRoles := []domain.Role{domain.RoleAnalyst, domain.RoleManager}
	if s.cfg.ReturnToOriginalHolder && c.PriorAssigneeID != nil {
		prior, err := s.assignment.directory.GetByID(ctx, *c.PriorAssigneeID)
		if err == nil && prior.Active && prior.CoversLOB(c.LOB) && roleAllowed(prior.Role, analystRoles) {
			acquired, aerr := s.assignment.directory.AcquireCase(ctx, prior.ID, true)
			if aerr != nil {
				return nil, apperrors.MapError(aerr)
			}
			if acquired {
				prior.ActiveCaseCount++
				return prior, nil
			}
		} else if err != nil && err != pgx.ErrNoRows {
			return nil, apperrors.MapError(err)
		}
	}
	return s.assignment.Bind(ctx, c.LOB, analystRoles, nil)
}

func (s *WorkflowService) simpleTransition(ctx context.Context, actor *domain.User, caseID string, to domain.CaseStatus, reason string) (*domain.Case, error) {
	c, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, c, to); err != nil {
		return nil, err
	}
	from := c.Status
	c.Status = to
	if err := s.commit(ctx, c, from, actor, reason, c.AssigneeID); err != nil {
		return nil, err
	}
	return c, nil
}

// commit persists the mutated case under its pre-mutation version and
// appends the transition history entry.
func (s *WorkflowService) commit(ctx context.Context, c *domain.Case, from domain.CaseStatus, actor *domain.User, reason string, oldAssignee *string) error {
	if err := s.cases.UpdateVersioned(ctx, c, c.Version); err != nil {
		return apperrors.MapError(err)
	}
	if err := s.appendHistory(ctx, actor, c, from, domain.HistoryTagTransition, reason, oldAssignee, c.AssigneeID); err != nil {
		return err
	}
	s.metrics.RecordTransition(string(from), string(c.Status))
	s.publish(ctx, actor, events.Event{
		Type:      events.EventCaseStatusChanged,
		SubjectID: c.ID,
		Payload: events.CaseStatusChangedPayload{
			OldStatus: from,
			NewStatus: c.Status,
			Reason:    reason,
		},
	})
	return nil
}

func (s *WorkflowService) appendHistory(ctx context.Context, actor *domain.User, c *domain.Case, from domain.CaseStatus, tag domain.HistoryTag, reason string, oldAssignee, newAssignee *string) error {
	actorID := SystemActorID
	var actorRole domain.Role
	if actor != nil {
		actorID = actor.ID
		actorRole = actor.Role
	}
	entry := &domain.CaseHistory{
		CaseID:        c.ID,
		ActorID:       actorID,
		ActorRole:     actorRole,
		Tag:           tag,
		FromStatus:    from,
		ToStatus:      c.Status,
		OldAssigneeID: oldAssignee,
		NewAssigneeID: newAssignee,
		Reason:        reason,
	}
	return apperrors.MapError(s.history.Create(ctx, entry))
}

func (s *WorkflowService) getCase(ctx context.Context, caseID string) (*domain.Case, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return nil, apperrors.MapError(err)
	}
	return c, nil
}

func (s *WorkflowService) publish(ctx context.Context, actor *domain.User, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if actor != nil {
		event.Actor = events.Actor{UserID: actor.ID, Role: actor.Role}
	}
	_ = s.dispatcher.Publish(ctx, event)
}
