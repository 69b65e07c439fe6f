package mongostore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/freshbasket/freshbasket/internal/crypto"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

// userDoc omits empty contacts so the sparse unique indexes ignore them.
// Emails are stored lowercased.
type userDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	Mobile    string             `bson:"mobile,omitempty"`
	Email     string             `bson:"email,omitempty"`
	Address   string             `bson:"address,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type UserStore struct {
	collection *mongo.Collection
	crypto     crypto.Encryptor
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	address, err := s.sealAddress(user.Address)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := userDoc{
		ID:        primitive.NewObjectID(),
		Name:      user.Name,
		Mobile:    strings.TrimSpace(user.Mobile),
		Email:     normalizeEmail(user.Email),
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return mapError(err)
	}
	user.ID = doc.ID.Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *UserStore) GetByMobile(ctx context.Context, mobile string) (*models.User, error) {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return nil, store.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"mobile": mobile})
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, store.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *UserStore) List(ctx context.Context) ([]*models.User, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := make([]*models.User, 0)
	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		user, err := s.toModel(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, cursor.Err()
}

func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	oid, ok := parseID(user.ID)
	if !ok {
		return store.ErrNotFound
	}
	address, err := s.sealAddress(user.Address)
	if err != nil {
		return err
	}

	set := bson.M{"name": user.Name, "updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	unset := bson.M{}
	for field, value := range map[string]string{
		"mobile":  strings.TrimSpace(user.Mobile),
		"email":   normalizeEmail(user.Email),
		"address": address,
	} {
		if value == "" {
			unset[field] = ""
		} else {
			set[field] = value
		}
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var doc userDoc
	err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return mapError(err)
	}
	user.CreatedAt = doc.CreatedAt.UTC()
	user.UpdatedAt = doc.UpdatedAt.UTC()
	return nil
}

// Delete removes the user and their cart. Orders are kept.
func (s *UserStore) Delete(ctx context.Context, id string) error {
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
	carts := s.collection.Database().Collection(cartsCollection)
	if _, err := carts.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return s.toModel(doc)
}

func (s *UserStore) toModel(doc userDoc) (*models.User, error) {
	user := &models.User{
		ID:        doc.ID.Hex(),
		Name:      doc.Name,
		Mobile:    doc.Mobile,
		Email:     doc.Email,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	if err := crypto.OpenJSON(s.crypto, crypto.PurposeAddress, doc.Address, &user.Address); err != nil {
		return nil, fmt.Errorf("failed to decrypt address: %w", err)
	}
	return user, nil
}

func (s *UserStore) sealAddress(address models.Address) (string, error) {
	if address.IsZero() {
		return "", nil
	}
	sealed, err := crypto.SealJSON(s.crypto, crypto.PurposeAddress, address)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt address: %w", err)
	}
	return sealed, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type adminDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"passwordHash"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

func (d adminDoc) toModel() *models.Admin {
	return &models.Admin{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

type AdminStore struct {
	collection *mongo.Collection
}

func (s *AdminStore) Create(ctx context.Context, admin *models.Admin) error {
	doc := adminDoc{
		ID:           primitive.NewObjectID(),
		Name:         admin.Name,
		Email:        normalizeEmail(admin.Email),
		PasswordHash: admin.PasswordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return mapError(err)
	}
	admin.ID = doc.ID.Hex()
	admin.CreatedAt = doc.CreatedAt
	return nil
}

func (s *AdminStore) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	oid, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *AdminStore) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return s.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (s *AdminStore) List(ctx context.Context) ([]*models.Admin, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []adminDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	admins := make([]*models.Admin, 0, len(docs))
	for _, doc := range docs {
		admins = append(admins, doc.toModel())
	}
	return admins, nil
}

func (s *AdminStore) findOne(ctx context.Context, filter bson.M) (*models.Admin, error) {
	var doc adminDoc
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return doc.toModel(), nil
}
