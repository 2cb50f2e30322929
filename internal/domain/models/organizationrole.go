package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Organization roles. A user with no OrganizationRole document is a member.
const (
	OrgRoleOwner  = "owner"
	OrgRoleAdmin  = "admin"
	OrgRoleMember = "member"
)

// OrganizationRole binds a platform user to an organization.
// Exactly one document per (organization_id, user_id).
type OrganizationRole struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrganizationID primitive.ObjectID `bson:"organization_id" json:"organization_id"`
	UserID         string             `bson:"user_id" json:"user_id"` // platform user id
	Email          string             `bson:"email" json:"email"`
	EmailCI        string             `bson:"email_ci" json:"-"`
	Role           string             `bson:"role" json:"role"` // "owner" | "admin" | "member"
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsAdminRole reports whether role grants organization administration.
func IsAdminRole(role string) bool {
	return role == OrgRoleOwner || role == OrgRoleAdmin
}
