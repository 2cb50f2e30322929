package publishing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	assistantstore "github.com/dalemusser/assistanthub/internal/app/store/assistants"
	"github.com/dalemusser/assistanthub/internal/app/system/apperr"
	"github.com/dalemusser/assistanthub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/assistanthub/internal/app/system/metrics"
	"github.com/dalemusser/assistanthub/internal/app/system/status"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const maxNameLen = 128

// Operation names used in logs and metrics.
const (
	opCreate  = "create"
	opPublish = "publish"
	opResume  = "resume"
	opUpdate  = "update"
)

func (s *service) CreateAndPublish(ctx context.Context, spec CreateSpec, actor models.Principal) (models.AssistantView, error) {
	name := strings.TrimSpace(spec.Name)
	switch {
	case name == "":
		return models.AssistantView{}, apperr.Validation("name is required")
	case len(name) > maxNameLen:
		return models.AssistantView{}, apperr.Validationf("name must be at most %d characters", maxNameLen)
	case name == "null":
		return models.AssistantView{}, apperr.Validation(`"null" is reserved and cannot be used as a name`)
	case actor.Email == "":
		return models.AssistantView{}, apperr.Forbidden("an email identity is required to own assistants")
	}

	org, err := s.targetOrg(ctx, spec.OrganizationID, actor)
	if err != nil {
		return models.AssistantView{}, err
	}
	if err := s.checkCanCreateIn(ctx, org, actor); err != nil {
		return models.AssistantView{}, err
	}

	rag := spec.RAG
	if len(rag.Collections) > 0 && !org.Config.Features.RAGEnabled {
		return models.AssistantView{}, apperr.Validation("retrieval is not enabled for this organization")
	}
	if rag.TopK <= 0 {
		rag.TopK = org.Config.AssistantDefaults.RAGTopK
	}

	if err := s.checkRoutingKeyFree(ctx, name, primitive.NilObjectID); err != nil {
		return models.AssistantView{}, err
	}

	a, created, err := s.assistants.Create(ctx, models.Assistant{
		OrganizationID: org.ID,
		Name:           name,
		Owner:          actor.Email,
		Description:    htmlsanitize.Sanitize(spec.Description),
		Config:         spec.Config,
		RAG:            rag,
	})
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("create assistant: %w", err)
	}
	if !created {
		return models.AssistantView{}, apperr.Conflict(fmt.Sprintf("assistant %q already exists", name), nil)
	}

	r := s.newRun(opCreate, actor, a)
	r.completed = append(r.completed, stepCreateAssistant.String())
	s.metrics.Step(stepCreateAssistant.String(), metrics.OutcomeOK)
	s.audit.AssistantCreated(ctx, actor.Email, r.id, a)
	r.logger(s.log).Info("assistant created", zap.String("name", a.Name), zap.String("organization_id", org.ID.Hex()))

	if err := s.publishFrom(ctx, r, stepEnsureGroup); err != nil {
		return models.AssistantView{}, err
	}
	return s.GetWithPublicationStatus(ctx, a.ID)
}

// targetOrg resolves the organization a new assistant lands in.
func (s *service) targetOrg(ctx context.Context, orgID primitive.ObjectID, actor models.Principal) (models.Organization, error) {
	if orgID.IsZero() {
		home, err := s.authz.HomeOrganization(ctx, actor.ID)
		if err != nil {
			return models.Organization{}, fmt.Errorf("home organization: %w", err)
		}
		orgID = home
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Organization{}, apperr.NotFound("organization not found")
	}
	if err != nil {
		return models.Organization{}, fmt.Errorf("load organization: %w", err)
	}
	return org, nil
}

func (s *service) checkCanCreateIn(ctx context.Context, org models.Organization, actor models.Principal) error {
	if org.Status != status.Active && org.Status != status.Trial {
		return apperr.Forbidden("organization is " + org.Status)
	}

	if !s.authz.IsAdmin(actor) {
		member, err := s.authz.IsMember(ctx, actor, org.ID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !member {
			admin, err := s.authz.IsOrgAdmin(ctx, actor.Email, org.ID)
			if err != nil {
				return fmt.Errorf("check org admin: %w", err)
			}
			if !admin {
				return apperr.Forbidden("not a member of this organization")
			}
		}
	}

	limit := org.Config.Limits.MaxAssistants
	if limit == models.Unlimited {
		return nil
	}
	n, err := s.assistants.CountActiveInOrg(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("count assistants: %w", err)
	}
	if n >= int64(limit) {
		return apperr.Conflict(fmt.Sprintf("organization has reached its limit of %d assistants", limit), nil)
	}
	return nil
}

// checkRoutingKeyFree fails when key is published for an assistant other than self.
func (s *service) checkRoutingKeyFree(ctx context.Context, key string, self primitive.ObjectID) error {
	pub, found, err := s.pubs.GetByRoutingKey(ctx, key)
	if err != nil {
		return fmt.Errorf("routing key lookup: %w", err)
	}
	if found && pub.AssistantID != self {
		return apperr.Conflict(fmt.Sprintf("routing key %q belongs to another assistant", key), nil)
	}
	return nil
}

// loadForChange returns the active assistant id if actor may modify it.
func (s *service) loadForChange(ctx context.Context, id primitive.ObjectID, actor models.Principal) (models.Assistant, error) {
	a, found, err := s.assistants.GetRecord(ctx, id)
	if err != nil {
		return models.Assistant{}, fmt.Errorf("load assistant: %w", err)
	}
	if !found {
		return models.Assistant{}, apperr.NotFound("assistant not found")
	}
	ok, err := s.authz.CanModify(ctx, actor, a)
	if err != nil {
		return models.Assistant{}, fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return models.Assistant{}, apperr.Forbidden("not allowed to modify this assistant")
	}
	if a.IsDeleted() {
		return models.Assistant{}, apperr.Conflict("assistant has been deleted", nil)
	}
	return a, nil
}

func (s *service) Publish(ctx context.Context, id primitive.ObjectID, actor models.Principal) (models.AssistantView, error) {
	a, err := s.loadForChange(ctx, id, actor)
	if err != nil {
		return models.AssistantView{}, err
	}
	if err := s.checkRoutingKeyFree(ctx, a.Name, a.ID); err != nil {
		return models.AssistantView{}, err
	}

	r := s.newRun(opPublish, actor, a)
	if err := s.publishFrom(ctx, r, stepEnsureGroup); err != nil {
		return models.AssistantView{}, err
	}
	return s.GetWithPublicationStatus(ctx, a.ID)
}

func (s *service) Resume(ctx context.Context, token string, actor models.Principal) (models.AssistantView, error) {
	st, err := s.decodeResume(token)
	if err != nil {
		return models.AssistantView{}, err
	}
	id, err := primitive.ObjectIDFromHex(st.AssistantID)
	if err != nil {
		return models.AssistantView{}, apperr.Validation("resume token names an invalid assistant")
	}
	a, err := s.loadForChange(ctx, id, actor)
	if err != nil {
		return models.AssistantView{}, err
	}

	r := s.newRun(opResume, actor, a)
	first := step(st.Step)
	if first > stepEnsureGroup && st.GroupID == "" {
		first = stepEnsureGroup
	}
	r.groupID = st.GroupID
	for done := stepCreateAssistant; done < first; done++ {
		r.completed = append(r.completed, done.String())
	}
	r.logger(s.log).Info("resuming publication",
		zap.String("from_step", first.String()), zap.String("previous_run_id", st.RunID))

	if err := s.publishFrom(ctx, r, first); err != nil {
		return models.AssistantView{}, err
	}
	return s.GetWithPublicationStatus(ctx, a.ID)
}

func (s *service) Update(ctx context.Context, id primitive.ObjectID, spec UpdateSpec, actor models.Principal) (models.AssistantView, error) {
	a, err := s.loadForChange(ctx, id, actor)
	if err != nil {
		return models.AssistantView{}, err
	}

	patch := assistantstore.Patch{Config: spec.Config, RAG: spec.RAG}
	if spec.Description != nil {
		d := htmlsanitize.Sanitize(*spec.Description)
		patch.Description = &d
	}
	if patch.Description == nil && patch.Config == nil && patch.RAG == nil {
		return s.GetWithPublicationStatus(ctx, id)
	}

	updated, err := s.assistants.Update(ctx, a.ID, patch)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.AssistantView{}, apperr.NotFound("assistant not found")
	}
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("update assistant: %w", err)
	}

	pub, found, err := s.pubs.GetByAssistant(ctx, a.ID)
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("load publication: %w", err)
	}
	if found && pub.IsPublished() {
		// Keep the platform's model description in line with the record.
		r := s.newRun(opUpdate, actor, updated)
		r.groupID = pub.GroupID
		r.completed = append(r.completed, "update_assistant")
		if _, err := s.execStep(ctx, r, stepEnsureModel); err != nil {
			s.metrics.Step(stepEnsureModel.String(), metrics.OutcomeFailed)
			return models.AssistantView{}, s.fail(ctx, r, stepEnsureModel, err)
		}
		s.metrics.Step(stepEnsureModel.String(), metrics.OutcomeOK)
		s.metrics.Run(opUpdate, metrics.OutcomeOK)
	}
	return s.GetWithPublicationStatus(ctx, a.ID)
}

func (s *service) Unpublish(ctx context.Context, id primitive.ObjectID, actor models.Principal) (models.AssistantView, error) {
	a, err := s.loadForChange(ctx, id, actor)
	if err != nil {
		return models.AssistantView{}, err
	}
	found, err := s.pubs.ClearRoutingKey(ctx, a.ID)
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("clear routing key: %w", err)
	}
	if !found {
		return models.AssistantView{}, apperr.NotFound("assistant is not published")
	}
	s.audit.AssistantUnpublished(ctx, actor.Email, a)
	s.log.Info("assistant unpublished", zap.String("assistant_id", a.ID.Hex()), zap.String("actor", actor.Email))
	return s.GetWithPublicationStatus(ctx, a.ID)
}

// RemovePublication deletes the publication record. The record may outlive its
// assistant after a failed purge, in which case only admins may remove it.
func (s *service) RemovePublication(ctx context.Context, id primitive.ObjectID, actor models.Principal) error {
	a, found, err := s.assistants.GetRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("load assistant: %w", err)
	}
	if found {
		ok, err := s.authz.CanModify(ctx, actor, a)
		if err != nil {
			return fmt.Errorf("check access: %w", err)
		}
		if !ok {
			return apperr.Forbidden("not allowed to modify this assistant")
		}
	} else {
		if !s.authz.IsAdmin(actor) {
			return apperr.NotFound("assistant not found")
		}
		a = models.Assistant{ID: id}
	}

	n, err := s.pubs.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete publication: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("publication not found")
	}
	s.audit.PublicationRemoved(ctx, actor.Email, a)
	s.log.Info("publication removed", zap.String("assistant_id", id.Hex()), zap.String("actor", actor.Email))
	return nil
}

func (s *service) SoftDelete(ctx context.Context, id primitive.ObjectID, actor models.Principal) (DeleteResult, error) {
	a, err := s.loadForChange(ctx, id, actor)
	if err != nil {
		return DeleteResult{}, err
	}

	// Revoke access before the record changes. Cleanup is best effort: the
	// assistant is marked deleted even when members could not be removed, and
	// chat access checks refuse deleted assistants regardless.
	res, err := s.emptyGroup(ctx, a, actor)
	if err != nil {
		res.GroupFailures++
		s.audit.GroupCleanupFailed(ctx, actor.Email, a, err)
		s.log.Warn("group cleanup failed; members left in place",
			zap.String("assistant_id", a.ID.Hex()),
			zap.Error(err))
	}

	found, err := s.assistants.SoftDelete(ctx, a.ID, actor.Email)
	if err != nil {
		return res, fmt.Errorf("soft delete: %w", err)
	}
	if !found {
		return res, apperr.NotFound("assistant not found")
	}
	if _, err := s.pubs.ClearRoutingKey(ctx, a.ID); err != nil {
		s.log.Warn("clear routing key after soft delete", zap.String("assistant_id", a.ID.Hex()), zap.Error(err))
	}

	s.audit.AssistantDeleted(ctx, actor.Email, a, false, res.MembersRemoved, res.MemberFailures)
	s.log.Info("assistant soft-deleted",
		zap.String("assistant_id", a.ID.Hex()),
		zap.String("actor", actor.Email),
		zap.Int("members_removed", res.MembersRemoved),
		zap.Int("member_failures", res.MemberFailures),
		zap.Int("group_failures", res.GroupFailures))
	return res, nil
}

func (s *service) HardDelete(ctx context.Context, id primitive.ObjectID, actor models.Principal) (DeleteResult, error) {
	a, found, err := s.assistants.GetRecord(ctx, id)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("load assistant: %w", err)
	}
	if !found {
		return DeleteResult{}, apperr.NotFound("assistant not found")
	}
	if !strings.EqualFold(a.Owner, actor.Email) {
		return DeleteResult{}, apperr.Forbidden("only the owner can purge an assistant")
	}

	res, err := s.emptyGroup(ctx, a, actor)
	if err != nil {
		return DeleteResult{}, err
	}

	err = s.assistants.HardDelete(ctx, a.ID, actor.Email)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return res, apperr.NotFound("assistant not found")
	case errors.Is(err, assistantstore.ErrNotOwner):
		return res, apperr.Forbidden("only the owner can purge an assistant")
	case err != nil:
		return res, fmt.Errorf("hard delete: %w", err)
	}

	s.audit.AssistantDeleted(ctx, actor.Email, a, true, res.MembersRemoved, res.MemberFailures)
	s.log.Info("assistant purged",
		zap.String("assistant_id", a.ID.Hex()),
		zap.String("actor", actor.Email),
		zap.Int("members_removed", res.MembersRemoved),
		zap.Int("member_failures", res.MemberFailures))
	return res, nil
}

// emptyGroup removes every member of the assistant's group. Individual
// removals are best effort: each failure is logged and counted, never fatal.
// An error means the membership could not be read; SoftDelete carries on
// past it while HardDelete stops so the record is not lost with members left.
func (s *service) emptyGroup(ctx context.Context, a models.Assistant, actor models.Principal) (DeleteResult, error) {
	var res DeleteResult
	pub, found, err := s.pubs.GetByAssistant(ctx, a.ID)
	if err != nil {
		return res, fmt.Errorf("load publication: %w", err)
	}
	if !found || pub.GroupID == "" {
		return res, nil
	}

	log := s.log.With(zap.String("assistant_id", a.ID.Hex()), zap.String("group_id", pub.GroupID))
	members, err := s.platform.ListMembers(ctx, pub.GroupID)
	if err != nil {
		log.Error("list group members", zap.Error(err))
		return res, classify(err, isRetryable(err))
	}

	for _, u := range members {
		if _, err := s.platform.RemoveMember(ctx, pub.GroupID, u.ID); err != nil {
			res.MemberFailures++
			s.metrics.MemberRemoval(metrics.OutcomeFailed)
			s.audit.GroupMemberRemoveFailed(ctx, actor.Email, a, pub.GroupID, u.ID, err)
			log.Warn("remove group member", zap.String("user_id", u.ID), zap.String("email", u.Email), zap.Error(err))
			continue
		}
		res.MembersRemoved++
		s.metrics.MemberRemoval(metrics.OutcomeOK)
		log.Debug("removed group member", zap.String("user_id", u.ID))
	}
	return res, nil
}

func (s *service) GetWithPublicationStatus(ctx context.Context, id primitive.ObjectID) (models.AssistantView, error) {
	v, found, err := s.assistants.Get(ctx, id)
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("load assistant: %w", err)
	}
	if !found {
		return models.AssistantView{}, apperr.NotFound("assistant not found")
	}
	return v, nil
}

// Get returns the assistant if actor may see it: modifiers always, anyone
// with chat access otherwise.
func (s *service) Get(ctx context.Context, id primitive.ObjectID, actor models.Principal) (models.AssistantView, error) {
	a, found, err := s.assistants.GetRecord(ctx, id)
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("load assistant: %w", err)
	}
	if !found {
		return models.AssistantView{}, apperr.NotFound("assistant not found")
	}
	ok, err := s.authz.CanModify(ctx, actor, a)
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("check access: %w", err)
	}
	if !ok {
		ok, err = s.authz.CanAccessForChat(ctx, actor, a)
		if err != nil {
			return models.AssistantView{}, fmt.Errorf("check access: %w", err)
		}
	}
	if !ok {
		return models.AssistantView{}, apperr.NotFound("assistant not found")
	}
	return s.GetWithPublicationStatus(ctx, id)
}

func (s *service) ListForOwner(ctx context.Context, actor models.Principal, limit, offset int) (assistantstore.Page, error) {
	if actor.Email == "" {
		return assistantstore.Page{Items: []models.AssistantView{}}, nil
	}
	page, err := s.assistants.List(ctx, actor.Email, limit, offset)
	if err != nil {
		return assistantstore.Page{}, fmt.Errorf("list assistants: %w", err)
	}
	return page, nil
}

// ResolveForChat maps a routing key to the assistant behind it, if actor may chat with it.
func (s *service) ResolveForChat(ctx context.Context, routingKey string, actor models.Principal) (models.AssistantView, error) {
	pub, found, err := s.pubs.GetByRoutingKey(ctx, routingKey)
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("routing key lookup: %w", err)
	}
	if !found {
		return models.AssistantView{}, apperr.NotFound("no assistant is published under this key")
	}
	a, found, err := s.assistants.GetRecord(ctx, pub.AssistantID)
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("load assistant: %w", err)
	}
	if !found {
		return models.AssistantView{}, apperr.NotFound("no assistant is published under this key")
	}
	ok, err := s.authz.CanAccessForChat(ctx, actor, a)
	if err != nil {
		return models.AssistantView{}, fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return models.AssistantView{}, apperr.Forbidden("no access to this assistant")
	}
	return models.NewAssistantView(a, &pub), nil
}
