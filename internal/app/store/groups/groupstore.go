// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holds one document per group aggregate.
const Collection = "groups"

var (
	// ErrExists is returned by Insert when the id is taken.
	ErrExists = errors.New("group already exists")
	// ErrRevisionMismatch is returned by Replace when another writer got
	// there first.
	ErrRevisionMismatch = errors.New("group revision changed")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// Collection exposes the underlying collection for change streams.
func (s *Store) Collection() *mongo.Collection { return s.c }

// Get returns the aggregate, or mongo.ErrNoDocuments.
func (s *Store) Get(ctx context.Context, gid string) (*models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": gid}).Decode(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Insert stores a new aggregate at revision 1.
func (s *Store) Insert(ctx context.Context, g *models.Group) error {
	now := time.Now().UTC()
	doc := g.Clone()
	doc.NameCI = text.Fold(doc.Name)
	doc.Revision = 1
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrExists
		}
		return err
	}
	return nil
}

// Replace writes g over the stored aggregate if its revision still equals
// g.Revision, and stores it at the next revision. It returns mongo.
// ErrNoDocuments when the group is gone and ErrRevisionMismatch when the
// revision moved.
func (s *Store) Replace(ctx context.Context, g *models.Group) error {
	doc := g.Clone()
	doc.NameCI = text.Fold(doc.Name)
	doc.Revision = g.Revision + 1
	doc.UpdatedAt = time.Now().UTC()

	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": g.ID, "revision": g.Revision}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": g.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return mongo.ErrNoDocuments
		}
		return ErrRevisionMismatch
	}
	return nil
}

// Delete removes a group by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, gid string) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": gid})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// MemberFilter matches every group uid holds a slot in.
func MemberFilter(uid string) bson.M {
	return bson.M{"participant_uids." + uid: true}
}

// ListForUID returns the groups uid belongs to, ordered by folded name.
func (s *Store) ListForUID(ctx context.Context, uid string) ([]*models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, MemberFilter(uid), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*models.Group
	for cur.Next(ctx) {
		var g models.Group
		if err := cur.Decode(&g); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, cur.Err()
}
