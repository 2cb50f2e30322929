// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/assistanthub/internal/app/system/cache"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Cache is nil when no Redis address is configured or Redis was
	// unreachable at startup.
	Cache *cache.PrincipalCache
}
