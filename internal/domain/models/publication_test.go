package models

import "testing"

func strptr(s string) *string { return &s }

func TestPublicationKey(t *testing.T) {
	tests := []struct {
		name      string
		pub       Publication
		wantKey   string
		published bool
	}{
		{"unpublished", Publication{}, "", false},
		{"current field", Publication{RoutingKey: strptr("Tutor")}, "Tutor", true},
		{"legacy field", Publication{LegacyKey: strptr("Old Tutor")}, "Old Tutor", true},
		{"current wins", Publication{RoutingKey: strptr("New"), LegacyKey: strptr("Old")}, "New", true},
		{"null literal", Publication{RoutingKey: strptr("null")}, "null", false},
		{"legacy null literal", Publication{LegacyKey: strptr("null")}, "null", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := tt.pub.Key()
			got := ""
			if k != nil {
				got = *k
			}
			if got != tt.wantKey {
				t.Errorf("Key() = %q, want %q", got, tt.wantKey)
			}
			if tt.pub.IsPublished() != tt.published {
				t.Errorf("IsPublished() = %v, want %v", tt.pub.IsPublished(), tt.published)
			}
		})
	}
}

func TestNewAssistantView(t *testing.T) {
	a := Assistant{Name: "Tutor", Owner: "owner@test.com", Status: "active"}

	v := NewAssistantView(a, nil)
	if v.Published || v.RoutingKey != nil {
		t.Errorf("view without publication = %+v", v)
	}

	v = NewAssistantView(a, &Publication{GroupID: "g1", RoutingKey: strptr("Tutor")})
	if !v.Published || v.RoutingKey == nil || *v.RoutingKey != "Tutor" || v.GroupID != "g1" {
		t.Errorf("published view = %+v", v)
	}

	v = NewAssistantView(a, &Publication{GroupID: "g1", RoutingKey: strptr("null")})
	if v.Published || v.RoutingKey != nil {
		t.Errorf("a \"null\" key must read as unpublished: %+v", v)
	}

	a.Status = "deleted"
	v = NewAssistantView(a, nil)
	if v.Owner != DeletedOwner {
		t.Errorf("deleted owner = %q, want %q", v.Owner, DeletedOwner)
	}
	if v.StoredOwner != "owner@test.com" {
		t.Errorf("StoredOwner = %q", v.StoredOwner)
	}
}
