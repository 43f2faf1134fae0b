package orders

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionName = "orders"

// MongoStore keeps orders in a MongoDB collection, one document per order
// keyed by ObjectID with the owning username embedded.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to MongoDB and returns an order store. The
// connection is verified with a bounded ping before use.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(connectCtx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}, nil
}

type orderDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Username string             `bson:"username"`
	Item     string             `bson:"item"`
	Price    float64            `bson:"price"`
}

// Create inserts an order and returns its hex ID.
func (s *MongoStore) Create(ctx context.Context, order Order) (string, error) {
	res, err := s.collection.InsertOne(ctx, orderDoc{
		Username: order.Username,
		Item:     order.Item,
		Price:    order.Price,
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert order: %w", err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted ID type %T", res.InsertedID)
	}

	return id.Hex(), nil
}

// ListByUser returns all orders owned by username.
func (s *MongoStore) ListByUser(ctx context.Context, username string) ([]Order, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"username": username})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []Order{}
	for cursor.Next(ctx) {
		var doc orderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		orders = append(orders, Order{
			ID:       doc.ID.Hex(),
			Username: doc.Username,
			Item:     doc.Item,
			Price:    doc.Price,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("order cursor failed: %w", err)
	}

	return orders, nil
}

// Update applies the non-zero fields of update to the order, scoped to the
// owning username.
func (s *MongoStore) Update(ctx context.Context, id, username string, update Update) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	set := bson.M{}
	if update.Item != "" {
		set["item"] = update.Item
	}
	if update.Price != 0 {
		set["price"] = update.Price
	}
	if len(set) == 0 {
		return nil
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "username": username},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes the order, scoped to the owning username.
func (s *MongoStore) Delete(ctx context.Context, id, username string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": objectID, "username": username})
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping reports point-in-time MongoDB availability.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
