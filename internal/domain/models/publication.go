package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Publication maps an assistant to its external group and chat routing key.
// The document _id is the assistant id, so there is at most one per assistant.
type Publication struct {
	AssistantID    primitive.ObjectID `bson:"_id" json:"assistant_id"`
	OrganizationID primitive.ObjectID `bson:"organization_id" json:"organization_id"`
	AssistantName  string             `bson:"assistant_name" json:"assistant_name"`
	Owner          string             `bson:"owner" json:"owner"`
	GroupID        string             `bson:"group_id" json:"group_id"`
	GroupName      string             `bson:"group_name" json:"group_name"`
	RoutingKey     *string            `bson:"routing_key" json:"routing_key"` // nil when unpublished
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`

	// LegacyKey is the routing key as written by older deployments. Read it
	// through Key; writes always migrate it into RoutingKey.
	LegacyKey *string `bson:"oauth_consumer_name,omitempty" json:"-"`
}

// Key returns the effective routing key, or nil when the assistant is unpublished.
func (p Publication) Key() *string {
	if p.RoutingKey != nil {
		return p.RoutingKey
	}
	return p.LegacyKey
}

// IsPublished reports whether the routing key is set. The literal "null" is
// treated as unset because older writers stored it that way.
func (p Publication) IsPublished() bool {
	k := p.Key()
	return k != nil && *k != "null"
}
