// internal/app/features/assistants/types.go
package assistants

import "github.com/dalemusser/assistanthub/internal/domain/models"

type ragInput struct {
	Collections []string `json:"collections" validate:"max=20,dive,required,max=200" label:"Collections"`
	TopK        int      `json:"top_k" validate:"gte=0,lte=50" label:"Top K"`
}

func (in *ragInput) settings() models.RAGSettings {
	if in == nil {
		return models.RAGSettings{}
	}
	return models.RAGSettings{Collections: in.Collections, TopK: in.TopK}
}

// createInput defines validation rules for creating an assistant.
type createInput struct {
	Name           string         `json:"name" validate:"required,max=128" label:"Name"`
	Description    string         `json:"description" validate:"max=4000" label:"Description"`
	OrganizationID string         `json:"organization_id" validate:"omitempty,objectid" label:"Organization"`
	Config         map[string]any `json:"config"`
	RAG            *ragInput      `json:"rag"`
}

// updateInput holds the mutable fields; omitted fields are kept.
type updateInput struct {
	Description *string        `json:"description" validate:"omitempty,max=4000" label:"Description"`
	Config      map[string]any `json:"config"`
	RAG         *ragInput      `json:"rag"`
}

type resumeInput struct {
	Token string `json:"token" validate:"required" label:"Resume token"`
}

type listResponse struct {
	Items      []models.AssistantView `json:"items"`
	Total      int64                  `json:"total"`
	Limit      int                    `json:"limit"`
	Offset     int                    `json:"offset"`
	NextOffset *int                   `json:"next_offset"`
}

type deleteResponse struct {
	ID             string `json:"id"`
	Deleted        bool   `json:"deleted"`
	Purged         bool   `json:"purged"`
	MembersRemoved int    `json:"members_removed"`
	MemberFailures int    `json:"member_failures"`
}
