package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

// geoPoint is a GeoJSON point; coordinates are [longitude, latitude].
type geoPoint struct {
	Type        string     `bson:"type"`
	Coordinates [2]float64 `bson:"coordinates"`
}

type lineItemDoc struct {
	Product  string  `bson:"product"`
	Name     string  `bson:"name"`
	Price    float64 `bson:"price"`
	Quantity float64 `bson:"quantity"`
}

type orderDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	User         primitive.ObjectID `bson:"user"`
	Items        []lineItemDoc      `bson:"items"`
	Subtotal     float64            `bson:"subtotal"`
	DeliveryFee  float64            `bson:"deliveryFee"`
	Total        float64            `bson:"total"`
	Location     geoPoint           `bson:"location"`
	Address      string             `bson:"address,omitempty"`
	Status       string             `bson:"status"`
	DeliveryTime *time.Time         `bson:"deliveryTime,omitempty"`
	Archived     bool               `bson:"archived"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func newOrderDoc(order *models.Order, owner primitive.ObjectID) orderDoc {
	doc := orderDoc{
		ID:          primitive.NewObjectID(),
		User:        owner,
		Items:       make([]lineItemDoc, 0, len(order.Items)),
		Subtotal:    order.Subtotal,
		DeliveryFee: order.DeliveryFee,
		Total:       order.Total,
		Location: geoPoint{
			Type:        "Point",
			Coordinates: [2]float64{order.Location.Longitude, order.Location.Latitude},
		},
		Address:      order.Address,
		Status:       string(order.Status),
		DeliveryTime: order.DeliveryTime,
		Archived:     order.Archived,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, lineItemDoc{Product: item.ProductID, Name: item.Name, Price: item.Price, Quantity: item.Quantity})
	}
	return doc
}

func (d orderDoc) toModel() *models.Order {
	order := &models.Order{
		ID:          d.ID.Hex(),
		OwnerID:     d.User.Hex(),
		Items:       make([]models.LineItem, 0, len(d.Items)),
		Subtotal:    d.Subtotal,
		DeliveryFee: d.DeliveryFee,
		Total:       d.Total,
		Location: models.GeoPoint{
			Longitude: d.Location.Coordinates[0],
			Latitude:  d.Location.Coordinates[1],
		},
		Address:   d.Address,
		Status:    models.OrderStatus(d.Status),
		Archived:  d.Archived,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, models.LineItem{ProductID: item.Product, Name: item.Name, Price: item.Price, Quantity: item.Quantity})
	}
	if d.DeliveryTime != nil {
		at := d.DeliveryTime.UTC()
		order.DeliveryTime = &at
	}
	return order
}

type OrderStore struct {
	collection *mongo.Collection
}

func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	owner, ok := parseID(order.OwnerID)
	if !ok {
		return fmt.Errorf("invalid owner id %q", order.OwnerID)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	doc := newOrderDoc(order, owner)
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return mapError(err)
	}
	order.ID = doc.ID.Hex()
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	oid, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	var doc orderDoc
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return doc.toModel(), nil
}

func (s *OrderStore) List(ctx context.Context, filter store.OrderFilter) ([]*models.Order, error) {
	query := bson.M{}
	if filter.OwnerID != "" {
		owner, ok := parseID(filter.OwnerID)
		if !ok {
			return []*models.Order{}, nil
		}
		query["user"] = owner
	}
	if filter.Archived != nil {
		query["archived"] = *filter.Archived
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	orders := make([]*models.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.toModel())
	}
	return orders, nil
}

// TransitionStatus matches the guard and applies the update in a single
// findAndModify, so concurrent writers cannot both succeed.
func (s *OrderStore) TransitionStatus(ctx context.Context, id string, guard store.TransitionGuard, to models.OrderStatus) (*models.Order, error) {
	oid, ok := parseID(id)
	if !ok {
		return nil, store.ErrStatusConflict
	}
	filter := bson.M{
		"_id":    oid,
		"status": bson.M{"$in": store.StatusStrings(guard.From)},
	}
	if guard.OwnerID != "" {
		owner, ok := parseID(guard.OwnerID)
		if !ok {
			return nil, store.ErrStatusConflict
		}
		filter["user"] = owner
	}
	if !guard.CreatedAfter.IsZero() {
		filter["createdAt"] = bson.M{"$gte": guard.CreatedAfter}
	}
	update := bson.M{"$set": bson.M{"status": string(to), "updatedAt": time.Now().UTC()}}

	var doc orderDoc
	err := s.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if err = mapError(err); errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrStatusConflict
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *OrderStore) SetDeliveryTime(ctx context.Context, id string, at time.Time) (*models.Order, error) {
	oid, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	update := bson.M{"$set": bson.M{"deliveryTime": at, "updatedAt": time.Now().UTC()}}

	var doc orderDoc
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mapError(err)
	}
	return doc.toModel(), nil
}

func (s *OrderStore) ArchiveTerminal(ctx context.Context) (int64, error) {
	filter := bson.M{
		"archived": bson.M{"$ne": true},
		"status":   bson.M{"$in": store.StatusStrings(store.TerminalStatuses)},
	}
	update := bson.M{"$set": bson.M{"archived": true, "updatedAt": time.Now().UTC()}}
	result, err := s.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (s *OrderStore) Delete(ctx context.Context, id string) error {
	oid, ok := parseID(id)
	if !ok {
		return store.ErrNotFound
	}
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
