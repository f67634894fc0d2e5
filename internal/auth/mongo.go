package auth

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoSessions reads login sessions from the `sessions` collection. The
// session document id is the access token itself.
type MongoSessions struct {
	db *mongo.Database
}

func NewMongoSessions(db *mongo.Database) *MongoSessions {
	return &MongoSessions{db: db}
}

type sessionDoc struct {
	User struct {
		ID          bson.ObjectID `bson:"_id"`
		IsActivated bool          `bson:"is_activated"`
		State       string        `bson:"state"`
	} `bson:"user"`
}

func (m *MongoSessions) SessionByToken(ctx context.Context, token string) (*Session, error) {
	var doc sessionDoc
	err := m.db.Collection("sessions").FindOne(ctx, bson.M{"_id": token}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &Session{
		Token: token,
		User: SessionUser{
			ID:          doc.User.ID.Hex(),
			IsActivated: doc.User.IsActivated,
			State:       doc.User.State,
		},
	}, nil
}
