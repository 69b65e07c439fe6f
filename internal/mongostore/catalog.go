package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

type productDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	Price     float64            `bson:"price"`
	Stock     bool               `bson:"stock"`
	Image     string             `bson:"image,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d productDoc) toModel() *models.Product {
	return &models.Product{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Price:     d.Price,
		InStock:   d.Stock,
		Image:     d.Image,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type ProductStore struct {
	collection *mongo.Collection
}

func (s *ProductStore) Create(ctx context.Context, product *models.Product) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := productDoc{
		ID:        primitive.NewObjectID(),
		Name:      product.Name,
		Price:     product.Price,
		Stock:     product.InStock,
		Image:     product.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return mapError(err)
	}
	product.ID = doc.ID.Hex()
	product.CreatedAt = now
	product.UpdatedAt = now
	return nil
}

func (s *ProductStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	oid, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	var doc productDoc
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return doc.toModel(), nil
}

// GetByIDs skips ids that are malformed or unknown.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, ok := parseID(id); ok {
			oids = append(oids, oid)
		}
	}
	products := make(map[string]*models.Product, len(oids))
	if len(oids) == 0 {
		return products, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc productDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		products[doc.ID.Hex()] = doc.toModel()
	}
	return products, cursor.Err()
}

func (s *ProductStore) List(ctx context.Context) ([]*models.Product, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	products := make([]*models.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.toModel())
	}
	return products, nil
}

func (s *ProductStore) Update(ctx context.Context, product *models.Product) error {
	oid, ok := parseID(product.ID)
	if !ok {
		return store.ErrNotFound
	}
	update := bson.M{"$set": bson.M{
		"name":      product.Name,
		"price":     product.Price,
		"stock":     product.InStock,
		"image":     product.Image,
		"updatedAt": time.Now().UTC().Truncate(time.Millisecond),
	}}

	var doc productDoc
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return mapError(err)
	}
	*product = *doc.toModel()
	return nil
}

func (s *ProductStore) Delete(ctx context.Context, id string) error {
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

type cartItemDoc struct {
	Product  string  `bson:"product"`
	Quantity float64 `bson:"quantity"`
}

// cartDoc is keyed by the owner's id; a user has at most one cart.
type cartDoc struct {
	User      primitive.ObjectID `bson:"_id"`
	Items     []cartItemDoc      `bson:"items"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type CartStore struct {
	collection *mongo.Collection
}

func (s *CartStore) Get(ctx context.Context, ownerID string) (*models.Cart, error) {
	owner, ok := parseID(ownerID)
	if !ok {
		return nil, store.ErrNotFound
	}
	var doc cartDoc
	if err := s.collection.FindOne(ctx, bson.M{"_id": owner}).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	cart := &models.Cart{
		OwnerID:   doc.User.Hex(),
		Items:     make([]models.CartItem, 0, len(doc.Items)),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, models.CartItem{ProductID: item.Product, Quantity: item.Quantity})
	}
	return cart, nil
}

func (s *CartStore) Save(ctx context.Context, cart *models.Cart) error {
	owner, ok := parseID(cart.OwnerID)
	if !ok {
		return store.ErrNotFound
	}
	doc := cartDoc{
		User:      owner,
		Items:     make([]cartItemDoc, 0, len(cart.Items)),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDoc{Product: item.ProductID, Quantity: item.Quantity})
	}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": owner}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return mapError(err)
	}
	cart.UpdatedAt = doc.UpdatedAt
	return nil
}

// Delete is idempotent.
func (s *CartStore) Delete(ctx context.Context, ownerID string) error {
	owner, ok := parseID(ownerID)
	if !ok {
		return nil
	}
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": owner})
	return err
}
