// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/store/mongostore"
	"github.com/dalemusser/whoseturn/internal/app/system/workers"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Store is always set. The Mongo fields are nil on the memory backend.
type DBDeps struct {
	Store docstore.Store

	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Mongo         *mongostore.Store

	// Retention prunes old history. Nil unless history_retention is set on
	// the MongoDB backend.
	Retention *workers.HistoryRetention
}
