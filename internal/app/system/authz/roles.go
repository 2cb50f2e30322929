// internal/app/system/authz/roles.go
package authz

import (
	"context"

	"github.com/dalemusser/assistanthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RoleIn returns the effective role of userID in orgID; "member" when the
// user has no explicit role there.
func (r *Resolver) RoleIn(ctx context.Context, userID string, orgID primitive.ObjectID) (string, error) {
	return r.roles.RoleFor(ctx, orgID, userID)
}

// HomeOrganization returns the organization of the user's oldest role
// record, or the system organization for users without one.
func (r *Resolver) HomeOrganization(ctx context.Context, userID string) (primitive.ObjectID, error) {
	roles, err := r.roles.ListForUser(ctx, userID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if len(roles) > 0 {
		return roles[0].OrganizationID, nil
	}
	sys, err := r.orgs.GetSystem(ctx)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return sys.ID, nil
}

// IsMember reports whether p belongs to orgID: an explicit role record there,
// or, for the system organization, having no role record anywhere else.
func (r *Resolver) IsMember(ctx context.Context, p models.Principal, orgID primitive.ObjectID) (bool, error) {
	if p.ID == "" {
		return false, nil
	}
	_, found, err := r.roles.Get(ctx, orgID, p.ID)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}

	sys, err := r.orgs.GetSystem(ctx)
	if err != nil {
		return false, err
	}
	if orgID != sys.ID {
		return false, nil
	}
	home, err := r.HomeOrganization(ctx, p.ID)
	if err != nil {
		return false, err
	}
	return home == sys.ID, nil
}
