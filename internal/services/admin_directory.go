package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/comunidad/backend/internal/models"
)

// AdminDirectory looks up who reviews new content.
type AdminDirectory interface {
	// RegionalAdmins returns regional admins whose managed province equals province.
	RegionalAdmins(ctx context.Context, province string) ([]models.AdminUser, error)
	// GlobalAdmins returns every general admin regardless of province.
	GlobalAdmins(ctx context.Context) ([]models.AdminUser, error)
}

type directoryCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

var adminProjection = bson.M{"email": 1, "name": 1, "role": 1, "managedProvince": 1}

// MongoAdminDirectory reads admin roles from the user documents.
type MongoAdminDirectory struct {
	users directoryCollection
}

func NewMongoAdminDirectory(users directoryCollection) *MongoAdminDirectory {
	return &MongoAdminDirectory{users: users}
}

func (d *MongoAdminDirectory) RegionalAdmins(ctx context.Context, province string) ([]models.AdminUser, error) {
	return d.find(ctx, bson.M{"role": models.RoleRegionalAdmin, "managedProvince": province})
}

func (d *MongoAdminDirectory) GlobalAdmins(ctx context.Context) ([]models.AdminUser, error) {
	return d.find(ctx, bson.M{"role": models.RoleAdmin})
}

func (d *MongoAdminDirectory) find(ctx context.Context, filter bson.M) ([]models.AdminUser, error) {
	if d == nil || d.users == nil {
		return nil, errors.New("mongo admin directory is not initialized")
	}

	cur, err := d.users.Find(ctx, filter, options.Find().SetProjection(adminProjection))
	if err != nil {
		return nil, fmt.Errorf("query admins (role=%v): %w", filter["role"], err)
	}
	defer cur.Close(ctx)

	var admins []models.AdminUser
	if err := cur.All(ctx, &admins); err != nil {
		return nil, fmt.Errorf("decode admins (role=%v): %w", filter["role"], err)
	}
	return admins, nil
}
