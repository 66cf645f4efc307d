package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User model
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName     string             `bson:"fullname" json:"fullname"`
	Email        string             `bson:"email" json:"email"`
	HPassword    string             `bson:"password,omitempty" json:"-"`
	Premium      bool               `bson:"premium" json:"premium"`
	PremiumSince *time.Time         `bson:"premium_since,omitempty" json:"premium_since,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}
