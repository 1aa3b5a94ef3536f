package indexes_test

import (
	"testing"

	"github.com/dalemusser/whoseturn/internal/app/system/indexes"
	"github.com/dalemusser/whoseturn/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_RenamesMisnamedIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Same keys as idx_turnlog_gid_type under another name.
	_, err := db.Collection("turn_log").Indexes().CreateOne(ctx, mongoIndex("old_name"))
	if err != nil {
		t.Fatalf("seed index failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names := indexNames(t, db.Collection("turn_log"))
	if names["old_name"] {
		t.Error("misnamed index should have been replaced")
	}
	for _, want := range []string{"idx_turnlog_gid_completed", "idx_turnlog_gid_type"} {
		if !names[want] {
			t.Errorf("index %s missing; have %v", want, names)
		}
	}
}

func TestEnsureAll_CreatesGroupIndex(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	if !indexNames(t, db.Collection("groups"))["idx_groups_nameci__id"] {
		t.Error("groups name index missing")
	}
}

func mongoIndex(name string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "gid", Value: 1}, {Key: "type", Value: 1}},
		Options: options.Index().SetName(name),
	}
}

func indexNames(t *testing.T, c *mongo.Collection) map[string]bool {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cur, err := c.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("list indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := map[string]bool{}
	for cur.Next(ctx) {
		var idx struct {
			Name string `bson:"name"`
		}
		if err := cur.Decode(&idx); err != nil {
			t.Fatalf("decode index failed: %v", err)
		}
		names[idx.Name] = true
	}
	return names
}
