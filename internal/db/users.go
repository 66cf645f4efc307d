package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(database *mongo.Database) *UserRepository {
	return &UserRepository{collection: database.Collection(UsersCollection)}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (string, error) {
	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	return result.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// List returns every user without password hashes.
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	projection := bson.D{{Key: "password", Value: 0}}
	cur, err := r.collection.Find(ctx, bson.D{}, options.Find().SetProjection(projection).SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// SetPremium flags the user as premium, keeping the earliest premium_since.
// It reports false when no user has that email.
func (r *UserRepository) SetPremium(ctx context.Context, email string, at time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{"premium": true}, "$min": bson.M{"premium_since": at}},
	)
	if err != nil {
		return false, fmt.Errorf("set premium: %w", err)
	}
	return res.MatchedCount > 0, nil
}
