// Package chatplatform talks to the external chat platform that owns the
// groups, models and permission grants assistants are published through.
package chatplatform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Model permissions understood by GrantGroupPermission.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
)

// Group is an access group on the platform.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	UserIDs     []string `json:"user_ids"`
}

// HasMember reports whether userID belongs to g.
func (g Group) HasMember(userID string) bool {
	for _, id := range g.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// User is a platform account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Model describes a chat-routable model backed by an assistant.
type Model struct {
	ID           string
	Name         string
	GroupID      string
	OwnerLabel   string
	Description  string
	Capabilities map[string]bool
}

// Platform is the set of group, membership and model operations the
// publication workflow needs. Every method is a single attempt; callers own
// retry policy.
type Platform interface {
	FindGroupByName(ctx context.Context, name string) (Group, bool, error)
	CreateGroup(ctx context.Context, name, ownerID, description string) (Group, error)
	// AddMemberByEmail reports false when the user already was a member.
	AddMemberByEmail(ctx context.Context, groupID, email string) (bool, error)
	// RemoveMember reports false when the user was not a member.
	RemoveMember(ctx context.Context, groupID, userID string) (bool, error)
	ListMembers(ctx context.Context, groupID string) ([]User, error)
	FindUserByEmail(ctx context.Context, email string) (User, bool, error)
	// CreateOrUpdateModel reports true when the model was created.
	CreateOrUpdateModel(ctx context.Context, m Model) (bool, error)
	// GrantGroupPermission reports false when the grant already existed.
	GrantGroupPermission(ctx context.Context, modelID, groupID, permission string) (bool, error)
}

// Directory resolves end-user bearer credentials to platform accounts.
type Directory interface {
	ResolveToken(ctx context.Context, token string) (User, error)
}

var (
	// ErrUserNotFound is returned when an email has no platform account.
	ErrUserNotFound = errors.New("user not found on chat platform")
	// ErrInvalidToken is returned when the platform rejects a bearer credential.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Error is a failed platform call. Status is zero for transport failures.
type Error struct {
	Op        string
	Status    int
	Retryable bool
	Detail    string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("chatplatform %s: %v", e.Op, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("chatplatform %s: status %d: %s", e.Op, e.Status, e.Detail)
	default:
		return fmt.Sprintf("chatplatform %s: status %d", e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// retryableStatus reports whether a response status is worth retrying:
// throttling, timeouts and server-side failures.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// IsRetryable reports whether err is a platform failure that may succeed on retry.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}

// StatusOf returns the HTTP status of a platform error, or zero.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}
