package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/whoseturn/internal/app/system/validators"
	"github.com/dalemusser/whoseturn/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := validators.EnsureAll(ctx, db, zap.NewNop()); err != nil {
			t.Fatalf("EnsureAll call %d: %v", i+1, err)
		}
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames: %v", err)
	}
	got := map[string]bool{}
	for _, n := range names {
		got[n] = true
	}
	for _, want := range []string{"groups", "turn_log"} {
		if !got[want] {
			t.Errorf("expected collection %q to exist", want)
		}
	}
}

func TestGroupsValidator(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := validators.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	valid := func() bson.M {
		return bson.M{
			"name":      "Dishes",
			"name_ci":   "dishes",
			"owner_uid": "uid-alice",
			"participants": bson.A{
				bson.M{"id": "p1", "uid": "uid-alice", "role": "admin", "turn_count": int64(0)},
				bson.M{"id": "p2", "uid": nil, "nickname": "Kid", "role": "member", "turn_count": int64(3)},
			},
			"turn_order":       bson.A{"p1", "p2"},
			"participant_uids": bson.M{"uid-alice": true},
			"admin_uids":       bson.M{"uid-alice": true},
			"revision":         int64(1),
			"created_at":       time.Now(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(d bson.M)
		wantErr bool
	}{
		{"valid", func(d bson.M) {}, false},
		{"blank name", func(d bson.M) { d["name"] = "  " }, true},
		{"missing owner", func(d bson.M) { delete(d, "owner_uid") }, true},
		{"bad role", func(d bson.M) {
			d["participants"] = bson.A{bson.M{"id": "p1", "role": "owner", "turn_count": int64(0)}}
		}, true},
		{"negative count", func(d bson.M) {
			d["participants"] = bson.A{bson.M{"id": "p1", "role": "member", "turn_count": int64(-1)}}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			_, err := db.Collection("groups").InsertOne(ctx, d)
			if (err != nil) != tt.wantErr {
				t.Errorf("InsertOne: got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestTurnLogValidator(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := validators.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	tests := []struct {
		name    string
		doc     bson.M
		wantErr bool
	}{
		{"completed", bson.M{"gid": "g1", "type": "turnCompleted", "completed_at": time.Now(), "actor_uid": "uid-alice", "participant_id": "p1"}, false},
		{"unknown type", bson.M{"gid": "g1", "type": "turnShuffled", "completed_at": time.Now(), "actor_uid": "uid-alice"}, true},
		{"no group", bson.M{"type": "countsReset", "completed_at": time.Now(), "actor_uid": "uid-alice"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Collection("turn_log").InsertOne(ctx, tt.doc)
			if (err != nil) != tt.wantErr {
				t.Errorf("InsertOne: got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
