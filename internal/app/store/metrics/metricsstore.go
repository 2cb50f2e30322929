package metricsstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of totals exported as gauges on /metrics.
type Counts struct {
	Organizations int64
	Assistants    int64 // active
	Deleted       int64
	Published     int64
}

// FetchCounts returns the high-level totals.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchCounts(ctx context.Context, db *mongo.Database) Counts {
	var out Counts

	if n, err := db.Collection("organizations").CountDocuments(ctx, bson.M{}); err == nil {
		out.Organizations = n
	}
	if n, err := db.Collection("assistants").CountDocuments(ctx, bson.M{"status": "active"}); err == nil {
		out.Assistants = n
	}
	if n, err := db.Collection("assistants").CountDocuments(ctx, bson.M{"status": "deleted"}); err == nil {
		out.Deleted = n
	}

	// "null" is the placeholder older writers stored for an unpublished key.
	published := bson.M{"$or": bson.A{
		bson.M{"routing_key": bson.M{"$type": "string", "$ne": "null"}},
		bson.M{"routing_key": nil, "oauth_consumer_name": bson.M{"$type": "string", "$ne": "null"}},
	}}
	if n, err := db.Collection("assistant_publications").CountDocuments(ctx, published); err == nil {
		out.Published = n
	}

	return out
}
