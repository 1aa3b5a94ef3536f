// internal/app/store/turnlog/store.go
package turnlog

import (
	"context"
	"time"

	"github.com/dalemusser/whoseturn/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holds every history entry of every group, keyed by gid.
const Collection = "turn_log"

// DefaultLimit caps a query that does not set one.
const DefaultLimit = 100

// QueryFilter defines filters for querying history entries.
type QueryFilter struct {
	GroupID   string
	Type      models.LogType // optional
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int64
	Offset    int64
}

// Store manages history entries.
type Store struct {
	c *mongo.Collection
}

// New creates a new turn log Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// Collection exposes the underlying collection for change streams.
func (s *Store) Collection() *mongo.Collection { return s.c }

// Append inserts an entry. ID and CompletedAt must already be set.
func (s *Store) Append(ctx context.Context, e models.LogEntry) error {
	_, err := s.c.InsertOne(ctx, models.ToLogDoc(e))
	return err
}

// Get returns one entry of gid, or mongo.ErrNoDocuments.
func (s *Store) Get(ctx context.Context, gid, id string) (models.LogEntry, error) {
	var d models.LogDoc
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "gid": gid}).Decode(&d); err != nil {
		return nil, err
	}
	return d.Entry()
}

// MarkUndone flags a completed turn as undone. It reports whether a
// not-yet-undone completion matched.
func (s *Store) MarkUndone(ctx context.Context, gid, id string) (bool, error) {
	res, err := s.c.UpdateOne(ctx, bson.M{
		"_id":       id,
		"gid":       gid,
		"type":      models.LogTurnCompleted,
		"is_undone": bson.M{"$ne": true},
	}, bson.M{"$set": bson.M{"is_undone": true}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func filterQuery(filter QueryFilter) bson.M {
	query := bson.M{"gid": filter.GroupID}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.StartTime != nil || filter.EndTime != nil {
		timeQuery := bson.M{}
		if filter.StartTime != nil {
			timeQuery["$gte"] = *filter.StartTime
		}
		if filter.EndTime != nil {
			timeQuery["$lte"] = *filter.EndTime
		}
		query["completed_at"] = timeQuery
	}
	return query
}

// Query retrieves entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]models.LogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "completed_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, filterQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.LogDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.LogEntry, 0, len(docs))
	for _, d := range docs {
		e, err := d.Entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// CountByFilter returns the count of entries matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filterQuery(filter))
}

// Recent retrieves the newest limit entries of gid.
func (s *Store) Recent(ctx context.Context, gid string, limit int64) ([]models.LogEntry, error) {
	return s.Query(ctx, QueryFilter{GroupID: gid, Limit: limit})
}

// DeleteByGroup removes every entry of gid and returns how many went.
func (s *Store) DeleteByGroup(ctx context.Context, gid string) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"gid": gid})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteBefore removes every entry older than cutoff and returns how many
// went.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"completed_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
