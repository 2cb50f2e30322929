package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeletedOwner is the owner identity reported for soft-deleted assistants.
// The stored owner is never overwritten; only views substitute it.
const DeletedOwner = "deleted_assistant"

// Assistant is a tenant-owned AI assistant definition.
// Name and Owner never change after creation.
type Assistant struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	OrganizationID primitive.ObjectID `bson:"organization_id" json:"organization_id"`
	Name           string             `bson:"name" json:"name"`
	Owner          string             `bson:"owner" json:"owner"` // owner email as given
	OwnerCI        string             `bson:"owner_ci" json:"-"`  // ← always stored
	Description    string             `bson:"description" json:"description"`
	Config         map[string]any     `bson:"config,omitempty" json:"config,omitempty"` // opaque to this service
	RAG            RAGSettings        `bson:"rag" json:"rag"`
	Status         string             `bson:"status" json:"status"` // "active" | "deleted"
	DeletedAt      *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	DeletedBy      string             `bson:"deleted_by,omitempty" json:"deleted_by,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

type RAGSettings struct {
	Collections []string `bson:"collections,omitempty" json:"collections,omitempty"`
	TopK        int      `bson:"top_k" json:"top_k"`
}

// IsDeleted reports whether the assistant has been soft-deleted.
func (a Assistant) IsDeleted() bool {
	return a.Status == "deleted"
}

// AssistantView is an assistant joined with its publication state.
type AssistantView struct {
	ID             primitive.ObjectID `json:"id"`
	OrganizationID primitive.ObjectID `json:"organization_id"`
	Name           string             `json:"name"`
	Owner          string             `json:"owner"`
	Description    string             `json:"description"`
	Config         map[string]any     `json:"config,omitempty"`
	RAG            RAGSettings        `json:"rag"`
	Status         string             `json:"status"`
	Published      bool               `json:"published"`
	GroupID        string             `json:"group_id,omitempty"`
	RoutingKey     *string            `json:"routing_key"`
	DeletedAt      *time.Time         `json:"deleted_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`

	// StoredOwner keeps the real owner of a deleted assistant for recovery tooling.
	StoredOwner string `json:"-"`
}

// NewAssistantView joins a with its publication record. pub may be nil.
func NewAssistantView(a Assistant, pub *Publication) AssistantView {
	v := AssistantView{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		Name:           a.Name,
		Owner:          a.Owner,
		Description:    a.Description,
		Config:         a.Config,
		RAG:            a.RAG,
		Status:         a.Status,
		DeletedAt:      a.DeletedAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		StoredOwner:    a.Owner,
	}
	if a.IsDeleted() {
		v.Owner = DeletedOwner
	}
	if pub != nil {
		v.GroupID = pub.GroupID
		if pub.IsPublished() {
			v.RoutingKey = pub.Key()
			v.Published = true
		}
	}
	return v
}
