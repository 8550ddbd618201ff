package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	Dictionary struct {
		ID        primitive.ObjectID `json:"-" bson:"_id,omitempty"`
		Version   string             `json:"version" bson:"version"`
		Digest    string             `json:"digest" bson:"digest"`
		Words     []string           `json:"words" bson:"words"`
		CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	}
)
