// internal/app/system/authz/authz.go
package authz

import (
	"context"

	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/assistanthub/internal/platform/chatplatform"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ExternalAdminRole is the directory role that marks platform administrators.
const ExternalAdminRole = "admin"

// OrgReader is the part of the organization store the resolver needs.
type OrgReader interface {
	GetSystem(ctx context.Context) (models.Organization, error)
}

// RoleReader is the part of the organization role store the resolver needs.
type RoleReader interface {
	Get(ctx context.Context, orgID primitive.ObjectID, userID string) (models.OrganizationRole, bool, error)
	GetByEmail(ctx context.Context, orgID primitive.ObjectID, email string) (models.OrganizationRole, bool, error)
	RoleFor(ctx context.Context, orgID primitive.ObjectID, userID string) (string, error)
	ListForUser(ctx context.Context, userID string) ([]models.OrganizationRole, error)
}

// UserLookup finds directory accounts by email.
type UserLookup interface {
	FindUserByEmail(ctx context.Context, email string) (chatplatform.User, bool, error)
}

// Resolver makes ownership and role based authorization decisions.
type Resolver struct {
	orgs        OrgReader
	roles       RoleReader
	users       UserLookup
	superuserID string
	log         *zap.Logger
}

// NewResolver constructs a Resolver. superuserID may be empty.
func NewResolver(orgs OrgReader, roles RoleReader, users UserLookup, superuserID string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{orgs: orgs, roles: roles, users: users, superuserID: superuserID, log: logger}
}

// IsAdmin reports whether p is the bootstrap superuser or a directory admin.
func (r *Resolver) IsAdmin(p models.Principal) bool {
	return r.IsSuperuser(p) || text.Fold(p.Role) == ExternalAdminRole
}

// IsSuperuser reports whether p is the configured bootstrap superuser.
func (r *Resolver) IsSuperuser(p models.Principal) bool {
	return r.superuserID != "" && p.ID == r.superuserID
}

// IsSystemAdmin requires both a directory admin account and an admin or
// owner role in the system organization. Either alone is not enough.
func (r *Resolver) IsSystemAdmin(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	u, found, err := r.users.FindUserByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if !found || text.Fold(u.Role) != ExternalAdminRole {
		return false, nil
	}

	sys, err := r.orgs.GetSystem(ctx)
	if err != nil {
		return false, err
	}
	role, found, err := r.roles.GetByEmail(ctx, sys.ID, email)
	if err != nil {
		return false, err
	}
	if !found || !models.IsAdminRole(role.Role) {
		r.log.Debug("directory admin lacks a system organization admin role", zap.String("email", email))
		return false, nil
	}
	return true, nil
}

// IsOrgAdmin reports whether email is a system admin or holds an admin or
// owner role in orgID.
func (r *Resolver) IsOrgAdmin(ctx context.Context, email string, orgID primitive.ObjectID) (bool, error) {
	if email == "" {
		return false, nil
	}
	role, found, err := r.roles.GetByEmail(ctx, orgID, email)
	if err != nil {
		return false, err
	}
	if found && models.IsAdminRole(role.Role) {
		return true, nil
	}
	return r.IsSystemAdmin(ctx, email)
}

// IsOwner compares identities case-insensitively.
func IsOwner(p models.Principal, a models.Assistant) bool {
	return p.Email != "" && text.Fold(p.Email) == text.Fold(a.Owner)
}

// CanModify reports whether p may change or delete a: the owner, or an
// admin of the assistant's organization.
func (r *Resolver) CanModify(ctx context.Context, p models.Principal, a models.Assistant) (bool, error) {
	if IsOwner(p, a) {
		return true, nil
	}
	return r.IsOrgAdmin(ctx, p.Email, a.OrganizationID)
}

// CanAccessForChat reports whether p may chat with a. Deleted assistants are
// unreachable for everyone. Otherwise the owner and members of the
// assistant's organization may chat; see IsMember for how the system
// organization is shared.
func (r *Resolver) CanAccessForChat(ctx context.Context, p models.Principal, a models.Assistant) (bool, error) {
	if a.IsDeleted() {
		return false, nil
	}
	if IsOwner(p, a) {
		return true, nil
	}
	return r.IsMember(ctx, p, a.OrganizationID)
}
