package db

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// testDatabase connects to MONGO_URI and returns a freshly dropped database.
// The test is skipped when no server is configured or reachable.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	database := client.Database("test_fleet_compliance")
	require.NoError(t, database.Drop(context.Background()))
	require.NoError(t, EnsureIndexes(context.Background(), database))
	return database
}

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestNilCollections(t *testing.T) {
	ctx := context.Background()
	id := primitive.NewObjectID()

	err := (&MongoCredentialTypeCollection{}).InsertCredentialType(ctx, &models.CredentialType{})
	assert.ErrorIs(t, err, errNilCollection)

	_, _, err = (&MongoInstanceCollection{}).EnsureInstance(ctx, id, models.SubjectRef{}, time.Now())
	assert.ErrorIs(t, err, errNilCollection)

	err = (&MongoAuditCollection{}).AppendAudit(ctx, models.AuditEntry{})
	assert.ErrorIs(t, err, errNilCollection)

	_, err = (&MongoVehicleCollection{}).FindVehicleByID(ctx, id, id)
	assert.ErrorIs(t, err, errNilCollection)
}

func TestMongoInstanceCollection_EnsureInstance_Integration(t *testing.T) {
	database := testDatabase(t)
	store := NewMongoStore(database)
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	ref := models.SubjectRef{
		Kind:             models.CategoryDriver,
		SubjectID:        primitive.NewObjectID(),
		CredentialTypeID: primitive.NewObjectID(),
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	first, created, err := store.Instances.EnsureInstance(ctx, tenantID, ref, now)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.InstanceNotSubmitted, first.Status)

	second, created, err := store.Instances.EnsureInstance(ctx, tenantID, ref, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var wg sync.WaitGroup
	ids := make([]primitive.ObjectID, 8)
	otherRef := ref
	otherRef.CredentialTypeID = primitive.NewObjectID()
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, _, err := store.Instances.EnsureInstance(ctx, tenantID, otherRef, now)
			if assert.NoError(t, err) {
				ids[i] = inst.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMongoInstanceCollection_ReviewAndSubmit_Integration(t *testing.T) {
	database := testDatabase(t)
	store := NewMongoStore(database)
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	ref := models.SubjectRef{Kind: models.CategoryVehicle, SubjectID: primitive.NewObjectID(), CredentialTypeID: primitive.NewObjectID()}
	now := time.Now().UTC().Truncate(time.Millisecond)

	inst, _, err := store.Instances.EnsureInstance(ctx, tenantID, ref, now)
	require.NoError(t, err)

	submitted, err := store.Instances.MarkSubmitted(ctx, inst.ID, models.Submission{
		SubmittedAt:  now,
		DocumentRefs: []string{"uploads/registration.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceSubmitted, submitted.Status)
	assert.Equal(t, 1, submitted.SubmissionVersion)

	queue, err := store.Instances.FindInstancesByStatus(ctx, tenantID, models.AwaitingReview)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	reviewer := primitive.NewObjectID()
	expires := now.AddDate(1, 0, 0)
	reviewed, err := store.Instances.UpdateReview(ctx, inst.ID, models.ReviewUpdate{
		Status:     models.InstanceApproved,
		ReviewedAt: &now,
		ReviewedBy: &reviewer,
		ExpiresAt:  &expires,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceApproved, reviewed.Status)
	require.NotNil(t, reviewed.ExpiresAt)
	assert.True(t, expires.Equal(*reviewed.ExpiresAt))

	_, err = store.Instances.UpdateReview(ctx, primitive.NewObjectID(), models.ReviewUpdate{}, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoProgressCollection_Integration(t *testing.T) {
	database := testDatabase(t)
	store := NewMongoStore(database)
	ctx := context.Background()
	instanceID := primitive.NewObjectID()

	_, err := store.Progress.FindProgress(ctx, instanceID)
	assert.ErrorIs(t, err, ErrNotFound)

	p := models.Progress{InstanceID: instanceID, CurrentStepID: "step-1", Steps: map[string]models.StepState{
		"step-1": {Completed: true, Blocks: map[string]models.BlockValue{"b1": {Value: "x"}}},
	}}
	require.NoError(t, store.Progress.UpsertProgress(ctx, p))
	p.CurrentStepID = "step-2"
	require.NoError(t, store.Progress.UpsertProgress(ctx, p))

	found, err := store.Progress.FindProgress(ctx, instanceID)
	require.NoError(t, err)
	assert.Equal(t, "step-2", found.CurrentStepID)
	assert.Equal(t, "x", found.Steps["step-1"].Blocks["b1"].Value)

	require.NoError(t, store.Progress.DeleteProgress(ctx, instanceID))
	_, err = store.Progress.FindProgress(ctx, instanceID)
	assert.ErrorIs(t, err, ErrNotFound)
}
