// internal/app/store/assistants/assistantstore.go
package assistantstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/assistanthub/internal/app/system/txn"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	StatusActive  = "active"
	StatusDeleted = "deleted"

	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrNotOwner is returned by HardDelete when the caller does not own the assistant.
var ErrNotOwner = errors.New("only the owner can permanently delete this assistant")

type Store struct {
	db   *mongo.Database
	c    *mongo.Collection
	pubs *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		db:   db,
		c:    db.Collection("assistants"),
		pubs: db.Collection("assistant_publications"),
	}
}

// Page is one window of a listing plus the total number of matches.
type Page struct {
	Items []models.AssistantView `json:"items"`
	Total int64                  `json:"total"`
}

// Patch holds the mutable fields of an assistant. Nil fields are left unchanged.
type Patch struct {
	Description *string
	Config      map[string]any
	RAG         *models.RAGSettings
}

// Create inserts a. When an active assistant with the same organization, name
// and owner already exists, nothing is written and created is false.
func (s *Store) Create(ctx context.Context, a models.Assistant) (out models.Assistant, created bool, err error) {
	a.OwnerCI = text.Fold(a.Owner)

	if _, found, err := s.findActive(ctx, a.OrganizationID, a.OwnerCI, a.Name); err != nil {
		return models.Assistant{}, false, err
	} else if found {
		return models.Assistant{}, false, nil
	}

	now := time.Now().UTC()
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	a.Status = StatusActive
	a.DeletedAt = nil
	a.DeletedBy = ""
	a.CreatedAt = now
	a.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, a); err != nil {
		// Lost a race against a concurrent create of the same name.
		if wafflemongo.IsDup(err) {
			return models.Assistant{}, false, nil
		}
		return models.Assistant{}, false, err
	}
	return a, true, nil
}

func (s *Store) findActive(ctx context.Context, orgID primitive.ObjectID, ownerCI, name string) (models.Assistant, bool, error) {
	return s.findOne(ctx, bson.M{
		"organization_id": orgID,
		"name":            name,
		"owner_ci":        ownerCI,
		"status":          StatusActive,
	})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Assistant, bool, error) {
	var a models.Assistant
	err := s.c.FindOne(ctx, filter).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return models.Assistant{}, false, nil
	}
	if err != nil {
		return models.Assistant{}, false, err
	}
	return a, true, nil
}

// GetRecord returns the stored assistant, deleted or not, without its publication.
func (s *Store) GetRecord(ctx context.Context, id primitive.ObjectID) (models.Assistant, bool, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// Get returns the assistant joined with its publication. Deleted assistants
// are returned too; their view reports the sentinel owner.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.AssistantView, bool, error) {
	a, found, err := s.GetRecord(ctx, id)
	if err != nil || !found {
		return models.AssistantView{}, found, err
	}
	v, err := s.view(ctx, a)
	return v, true, err
}

// GetByName finds the active assistant named name owned by owner in orgID.
func (s *Store) GetByName(ctx context.Context, orgID primitive.ObjectID, owner, name string) (models.AssistantView, bool, error) {
	a, found, err := s.findActive(ctx, orgID, text.Fold(owner), name)
	if err != nil || !found {
		return models.AssistantView{}, found, err
	}
	v, err := s.view(ctx, a)
	return v, true, err
}

func (s *Store) view(ctx context.Context, a models.Assistant) (models.AssistantView, error) {
	var p models.Publication
	err := s.pubs.FindOne(ctx, bson.M{"_id": a.ID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return models.NewAssistantView(a, nil), nil
	}
	if err != nil {
		return models.AssistantView{}, err
	}
	return models.NewAssistantView(a, &p), nil
}

// joined is one aggregation row: the assistant plus its (0 or 1) publications.
type joined struct {
	models.Assistant `bson:",inline"`
	Publications     []models.Publication `bson:"publications"`
}

func (j joined) toView() models.AssistantView {
	if len(j.Publications) == 0 {
		return models.NewAssistantView(j.Assistant, nil)
	}
	return models.NewAssistantView(j.Assistant, &j.Publications[0])
}

func lookupPublication() bson.D {
	return bson.D{{Key: "$lookup", Value: bson.M{
		"from":         "assistant_publications",
		"localField":   "_id",
		"foreignField": "_id",
		"as":           "publications",
	}}}
}

// List returns the owner's active assistants, newest first, with the total
// count computed in the same aggregation.
func (s *Store) List(ctx context.Context, owner string, limit, offset int) (Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	pipe := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"owner_ci": text.Fold(owner), "status": StatusActive}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		bson.D{{Key: "$facet", Value: bson.M{
			"total": []bson.M{{"$count": "count"}},
			"data": bson.A{
				bson.M{"$skip": offset},
				bson.M{"$limit": limit},
				lookupPublication(),
			},
		}}},
	}

	cur, err := s.c.Aggregate(ctx, pipe)
	if err != nil {
		return Page{}, err
	}
	defer cur.Close(ctx)

	var agg struct {
		Total []struct {
			Count int64 `bson:"count"`
		} `bson:"total"`
		Data []joined `bson:"data"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&agg); err != nil {
			return Page{}, err
		}
	}
	if err := cur.Err(); err != nil {
		return Page{}, err
	}

	page := Page{Items: make([]models.AssistantView, 0, len(agg.Data))}
	if len(agg.Total) > 0 {
		page.Total = agg.Total[0].Count
	}
	for _, j := range agg.Data {
		page.Items = append(page.Items, j.toView())
	}
	return page, nil
}

// ListAll returns every assistant, deleted ones included, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]models.AssistantView, error) {
	pipe := mongo.Pipeline{
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		lookupPublication(),
	}
	cur, err := s.c.Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []joined
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]models.AssistantView, 0, len(rows))
	for _, j := range rows {
		out = append(out, j.toView())
	}
	return out, nil
}

// Update applies p to an active assistant and returns the stored result.
// It returns mongo.ErrNoDocuments when no active assistant has id.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, p Patch) (models.Assistant, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Config != nil {
		set["config"] = p.Config
	}
	if p.RAG != nil {
		set["rag"] = *p.RAG
	}

	var out models.Assistant
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": StatusActive},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return models.Assistant{}, err
	}
	return out, nil
}

// SoftDelete marks an active assistant deleted. Name and owner are kept, so
// the record can be recovered by hand; the unique index only covers active
// assistants, which frees the name for reuse. found is false when there is
// no active assistant with id.
func (s *Store) SoftDelete(ctx context.Context, id primitive.ObjectID, actor string) (found bool, err error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": StatusActive},
		bson.M{"$set": bson.M{
			"status":     StatusDeleted,
			"deleted_at": now,
			"deleted_by": actor,
			"updated_at": now,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// HardDelete removes the assistant and its publication record. The caller
// must be the stored owner. It returns mongo.ErrNoDocuments when the
// assistant does not exist and ErrNotOwner when owner does not match.
func (s *Store) HardDelete(ctx context.Context, id primitive.ObjectID, owner string) error {
	a, found, err := s.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return mongo.ErrNoDocuments
	}
	if a.OwnerCI != text.Fold(owner) {
		return ErrNotOwner
	}

	return txn.Run(ctx, s.db, zap.L(), func(ctx context.Context) error {
		if _, err := s.pubs.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return err
		}
		_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
		return err
	})
}

// CountActiveInOrg returns the number of active assistants in orgID.
func (s *Store) CountActiveInOrg(ctx context.Context, orgID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"organization_id": orgID, "status": StatusActive})
}
