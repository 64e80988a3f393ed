package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// NewFirebaseApp builds the Firebase app shared by Firestore and Auth. Without inline
// credentials the SDK falls back to Application Default Credentials.
func NewFirebaseApp(ctx context.Context, projectID, credentialsJSON string) (*firebase.App, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(credentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// NewFirestoreClient opens a Firestore client on an existing app.
func NewFirestoreClient(ctx context.Context, app *firebase.App) (*firestore.Client, error) {
	if app == nil {
		return nil, errors.New("firebase app is required")
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open firestore: %w", err)
	}
	return client, nil
}
