package dictionary

import (
	"context"
	"errors"
	"fmt"

	"word_armor/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrVersionExists = errors.New("dictionary: version already stored")

type (
	DictionaryRepo struct {
		collection *mongo.Collection
	}
)

func NewDictionaryRepo(db *mongo.Database) *DictionaryRepo {
	return &DictionaryRepo{
		collection: db.Collection("dictionaries"),
	}
}

// GetByVersion returns nil, nil when the version is not stored.
func (r *DictionaryRepo) GetByVersion(ctx context.Context, version string) (*model.Dictionary, error) {
	filter := bson.M{
		"version": version,
	}

	var dict model.Dictionary
	err := r.collection.FindOne(ctx, filter).Decode(&dict)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &dict, nil
}

// Create stores a new version. A stored version is never replaced.
func (r *DictionaryRepo) Create(ctx context.Context, dict *model.Dictionary) (primitive.ObjectID, error) {
	existing, err := r.GetByVersion(ctx, dict.Version)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if existing != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrVersionExists, dict.Version)
	}

	res, err := r.collection.InsertOne(ctx, dict)
	if err != nil {
		return primitive.NilObjectID, err
	}

	id := res.InsertedID.(primitive.ObjectID)
	dict.ID = id
	return id, nil
}
