package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/comunidad/backend/internal/models"
)

type ledgerCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
}

var ledgerProjection = bson.M{
	"points":          1,
	"badges":          1,
	"membershipLevel": 1,
	"servicesCount":   1,
	"eventsCount":     1,
}

// MongoLedgerStore keeps ledgers on the user documents of a Mongo collection, keyed by _id.
type MongoLedgerStore struct {
	users ledgerCollection
}

func NewMongoLedgerStore(users ledgerCollection) *MongoLedgerStore {
	return &MongoLedgerStore{users: users}
}

// ApplyDelta runs a single FindOneAndUpdate with an aggregation pipeline. The second
// stage reads the incremented points, so the tier is written by the same operation
// and concurrent actions cannot leave it stale.
func (s *MongoLedgerStore) ApplyDelta(ctx context.Context, userID string, delta LedgerDelta) (LedgerUpdate, error) {
	if s == nil || s.users == nil {
		return LedgerUpdate{}, errors.New("mongo ledger store is not initialized")
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(ledgerProjection)

	var before models.UserLedger
	err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": userID}, ledgerPipeline(delta), opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return LedgerUpdate{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return LedgerUpdate{}, fmt.Errorf("apply ledger delta: %w", err)
	}
	before.UserID = userID

	return LedgerUpdate{Before: before, After: ApplyDeltaTo(before, delta)}, nil
}

func (s *MongoLedgerStore) Get(ctx context.Context, userID string) (models.UserLedger, error) {
	if s == nil || s.users == nil {
		return models.UserLedger{}, errors.New("mongo ledger store is not initialized")
	}

	var ledger models.UserLedger
	err := s.users.FindOne(ctx, bson.M{"_id": userID}, options.FindOne().SetProjection(ledgerProjection)).Decode(&ledger)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.UserLedger{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return models.UserLedger{}, fmt.Errorf("load ledger: %w", err)
	}
	ledger.UserID = userID
	return ledger, nil
}

func ledgerPipeline(delta LedgerDelta) mongo.Pipeline {
	increments := bson.D{
		{Key: "points", Value: bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$points", 0}}, delta.Points}}},
	}

	if delta.Counter != CounterNone {
		field := string(delta.Counter)
		increments = append(increments, bson.E{
			Key:   field,
			Value: bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + field, 0}}, 1}},
		})
	}

	if badge := strings.TrimSpace(delta.Badge); badge != "" {
		current := bson.M{"$ifNull": bson.A{"$badges", bson.A{}}}
		literal := bson.M{"$literal": badge}
		increments = append(increments, bson.E{
			Key: "badges",
			Value: bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{literal, current}},
				current,
				bson.M{"$concatArrays": bson.A{current, bson.A{literal}}},
			}},
		})
	}

	return mongo.Pipeline{
		{{Key: "$set", Value: increments}},
		{{Key: "$set", Value: bson.D{{Key: "membershipLevel", Value: levelSwitch("$points")}}}},
	}
}

// levelSwitch mirrors models.LevelForPoints as an aggregation expression.
func levelSwitch(pointsExpr string) bson.M {
	return bson.M{"$switch": bson.M{
		"branches": bson.A{
			bson.M{"case": bson.M{"$gte": bson.A{pointsExpr, models.EmbajadorThreshold}}, "then": string(models.LevelEmbajador)},
			bson.M{"case": bson.M{"$gte": bson.A{pointsExpr, models.PilarComunidadThreshold}}, "then": string(models.LevelPilarComunidad)},
			bson.M{"case": bson.M{"$gte": bson.A{pointsExpr, models.ColaboradorActivoThreshold}}, "then": string(models.LevelColaboradorActivo)},
		},
		"default": string(models.LevelSocio),
	}}
}
