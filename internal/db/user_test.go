package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestUser(tenantID primitive.ObjectID) models.User {
	return models.User{
		TenantID:     tenantID,
		Username:     "testuser",
		Email:        "test@example.com",
		PasswordHash: "hashedpassword",
		Role:         models.RoleAdmin,
		FirstName:    "Test",
		LastName:     "User",
	}
}

func TestMongoUserCollection_InsertUser(t *testing.T) {
	database := testDatabase(t)
	collection := database.Collection(UsersCollection)
	userCollection := &MongoUserCollection{Collection: collection}

	user := newTestUser(primitive.NewObjectID())
	err := userCollection.InsertUser(context.Background(), user)
	assert.NoError(t, err)

	var foundUser models.User
	err = collection.FindOne(context.Background(), bson.M{"username": "testuser"}).Decode(&foundUser)
	assert.NoError(t, err)
	assert.Equal(t, user.Username, foundUser.Username)
	assert.Equal(t, user.TenantID, foundUser.TenantID)
	assert.True(t, foundUser.IsActive)
	assert.NotZero(t, foundUser.CreatedAt)
}

func TestMongoUserCollection_Lookups(t *testing.T) {
	database := testDatabase(t)
	userCollection := &MongoUserCollection{Collection: database.Collection(UsersCollection)}
	ctx := context.Background()
	tenantID := primitive.NewObjectID()

	require.NoError(t, userCollection.InsertUser(ctx, newTestUser(tenantID)))

	byName, err := userCollection.FindUserByUsername(ctx, "testuser")
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", byName.Email)

	byID, err := userCollection.FindUserByID(ctx, byName.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, byName.Username, byID.Username)

	byEmail, err := userCollection.FindUserByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	assert.Equal(t, byName.ID, byEmail.ID)

	_, err = userCollection.FindUserByUsername(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = userCollection.FindUserByID(ctx, "invalid-id")
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := userCollection.FindUsersByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestMongoUserCollection_UpdateUser(t *testing.T) {
	database := testDatabase(t)
	userCollection := &MongoUserCollection{Collection: database.Collection(UsersCollection)}
	ctx := context.Background()

	require.NoError(t, userCollection.InsertUser(ctx, newTestUser(primitive.NewObjectID())))
	user, err := userCollection.FindUserByUsername(ctx, "testuser")
	require.NoError(t, err)

	user.FirstName = "Updated"
	require.NoError(t, userCollection.UpdateUser(ctx, user.ID.Hex(), *user))
	require.NoError(t, userCollection.UpdateLastLogin(ctx, user.ID.Hex()))

	updated, err := userCollection.FindUserByID(ctx, user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Updated", updated.FirstName)
	assert.NotNil(t, updated.LastLogin)

	err = userCollection.UpdateUser(ctx, primitive.NewObjectID().Hex(), *user)
	assert.ErrorIs(t, err, ErrNotFound)
}
