package publishing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	publicationstore "github.com/dalemusser/assistanthub/internal/app/store/publications"
	"github.com/dalemusser/assistanthub/internal/app/system/apperr"
	"github.com/dalemusser/assistanthub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/assistanthub/internal/app/system/metrics"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/assistanthub/internal/platform/chatplatform"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type step int

const (
	stepCreateAssistant step = iota
	stepEnsureGroup
	stepAddOwner
	stepEnsureModel
	stepGrantAccess
	stepWriteRecord
)

var stepNames = [...]string{
	stepCreateAssistant: "create_assistant",
	stepEnsureGroup:     "ensure_group",
	stepAddOwner:        "add_owner",
	stepEnsureModel:     "ensure_model",
	stepGrantAccess:     "grant_access",
	stepWriteRecord:     "write_record",
}

func (s step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// GroupName is the platform group backing an assistant.
func GroupName(assistantID primitive.ObjectID) string {
	return "assistant_" + assistantID.Hex()
}

const resumeTokenName = "assistanthub-resume"

// resumeState is the step cursor carried by a resume token.
type resumeState struct {
	AssistantID string `json:"a"`
	Step        int    `json:"s"`
	GroupID     string `json:"g,omitempty"`
	RunID       string `json:"r"`
}

// run is one pass over the publication steps.
type run struct {
	id        string
	operation string
	actor     models.Principal
	assistant models.Assistant
	groupID   string
	completed []string
}

func (s *service) newRun(operation string, actor models.Principal, a models.Assistant) *run {
	return &run{
		id:        s.newRunID(),
		operation: operation,
		actor:     actor,
		assistant: a,
	}
}

func (r *run) logger(base *zap.Logger) *zap.Logger {
	return base.With(
		zap.String("run_id", r.id),
		zap.String("operation", r.operation),
		zap.String("assistant_id", r.assistant.ID.Hex()),
	)
}

// publishFrom executes the steps from first through write_record in order.
func (s *service) publishFrom(ctx context.Context, r *run, first step) error {
	log := r.logger(s.log)
	for st := first; st <= stepWriteRecord; st++ {
		outcome, err := s.execStep(ctx, r, st)
		if err != nil {
			s.metrics.Step(st.String(), metrics.OutcomeFailed)
			return s.fail(ctx, r, st, err)
		}
		s.metrics.Step(st.String(), outcome)
		log.Debug("publication step done", zap.String("step", st.String()), zap.String("outcome", outcome))
		r.completed = append(r.completed, st.String())
	}

	key := r.assistant.Name
	s.audit.AssistantPublished(ctx, r.actor.Email, r.id, r.assistant, key, r.groupID)
	s.metrics.Run(r.operation, metrics.OutcomeOK)
	log.Info("assistant published", zap.String("routing_key", key), zap.String("group_id", r.groupID))
	return nil
}

func (s *service) execStep(ctx context.Context, r *run, st step) (string, error) {
	a := r.assistant
	switch st {
	case stepEnsureGroup:
		name := GroupName(a.ID)
		g, found, err := s.platform.FindGroupByName(ctx, name)
		if err != nil {
			return "", err
		}
		if found {
			r.groupID = g.ID
			return metrics.OutcomeSkipped, nil
		}
		g, err = s.platform.CreateGroup(ctx, name, r.actor.ID, "Access group for assistant "+a.Name)
		if err != nil {
			return "", err
		}
		r.groupID = g.ID
		return metrics.OutcomeOK, nil

	case stepAddOwner:
		added, err := s.platform.AddMemberByEmail(ctx, r.groupID, a.Owner)
		if err != nil {
			return "", err
		}
		if !added {
			return metrics.OutcomeSkipped, nil
		}
		return metrics.OutcomeOK, nil

	case stepEnsureModel:
		created, err := s.platform.CreateOrUpdateModel(ctx, modelFor(a, r.groupID))
		if err != nil {
			return "", err
		}
		if !created {
			return metrics.OutcomeSkipped, nil
		}
		return metrics.OutcomeOK, nil

	case stepGrantAccess:
		granted, err := s.platform.GrantGroupPermission(ctx, a.ID.Hex(), r.groupID, chatplatform.PermissionRead)
		if err != nil {
			return "", err
		}
		if !granted {
			return metrics.OutcomeSkipped, nil
		}
		return metrics.OutcomeOK, nil

	case stepWriteRecord:
		key := a.Name
		_, err := s.pubs.Upsert(ctx, models.Publication{
			AssistantID:    a.ID,
			OrganizationID: a.OrganizationID,
			AssistantName:  a.Name,
			Owner:          a.Owner,
			GroupID:        r.groupID,
			GroupName:      GroupName(a.ID),
			RoutingKey:     &key,
		})
		if errors.Is(err, publicationstore.ErrRoutingKeyTaken) {
			return "", apperr.Conflict(fmt.Sprintf("routing key %q belongs to another assistant", key), err)
		}
		if err != nil {
			return "", err
		}
		return metrics.OutcomeOK, nil
	}
	return "", fmt.Errorf("unknown publication step %d", int(st))
}

// modelFor describes the chat model exposing a.
func modelFor(a models.Assistant, groupID string) chatplatform.Model {
	return chatplatform.Model{
		ID:          a.ID.Hex(),
		Name:        a.Name,
		GroupID:     groupID,
		OwnerLabel:  a.Owner,
		Description: htmlsanitize.StripTags(a.Description),
		Capabilities: map[string]bool{
			"vision":    false,
			"citations": len(a.RAG.Collections) > 0,
		},
	}
}

// fail turns a step failure into the error returned to the caller. A run that
// changed nothing yields a plain classified error; otherwise the caller gets an
// InconsistentStateError with a token for Resume.
func (s *service) fail(ctx context.Context, r *run, st step, cause error) error {
	retryable := isRetryable(cause)
	log := r.logger(s.log)
	s.metrics.Run(r.operation, metrics.OutcomeFailed)
	s.audit.PublishFailed(ctx, r.actor.Email, r.id, r.assistant, st.String(), strings.Join(r.completed, ","), cause)

	if len(r.completed) == 0 {
		log.Warn("publication failed before any step completed",
			zap.String("step", st.String()), zap.Bool("retryable", retryable), zap.Error(cause))
		return classify(cause, retryable)
	}

	token, err := s.encodeResume(resumeState{
		AssistantID: r.assistant.ID.Hex(),
		Step:        int(st),
		GroupID:     r.groupID,
		RunID:       r.id,
	})
	if err != nil {
		log.Error("encode resume token", zap.Error(err))
	}
	log.Error("publication incomplete",
		zap.String("step", st.String()),
		zap.Strings("completed", r.completed),
		zap.Bool("retryable", retryable),
		zap.Error(cause))

	return &apperr.InconsistentStateError{
		AssistantID: r.assistant.ID.Hex(),
		FailedStep:  st.String(),
		Completed:   append([]string(nil), r.completed...),
		Retryable:   retryable,
		ResumeToken: token,
		Err:         cause,
	}
}

// classify maps a step failure onto an apperr kind.
func classify(err error, retryable bool) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, chatplatform.ErrUserNotFound) {
		return apperr.External(false, "owner has no chat platform account", err)
	}
	var pe *chatplatform.Error
	if errors.As(err, &pe) || retryable {
		return apperr.External(retryable, "chat platform request failed", err)
	}
	return fmt.Errorf("publish: %w", err)
}

// isRetryable reports whether repeating the failed step may succeed.
func isRetryable(err error) bool {
	switch {
	case chatplatform.IsRetryable(err):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return true
	}
	return false
}

func (s *service) encodeResume(st resumeState) (string, error) {
	return s.codec.Encode(resumeTokenName, st)
}

func (s *service) decodeResume(token string) (resumeState, error) {
	var st resumeState
	if token == "" {
		return st, apperr.Validation("resume token is required")
	}
	if err := s.codec.Decode(resumeTokenName, token, &st); err != nil {
		return st, apperr.Validation("resume token is invalid or expired")
	}
	if st.Step <= int(stepCreateAssistant) || st.Step > int(stepWriteRecord) {
		return st, apperr.Validation("resume token names an unknown step")
	}
	return st, nil
}
