package catalog

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// FirestoreSource reads {root}/{appID}/exerciseCatalog
type FirestoreSource struct {
	client *firestore.Client
	root   string
	appID  string
}

// NewFirestoreSource creates a source for the app namespace. root defaults to "apps".
func NewFirestoreSource(client *firestore.Client, root, appID string) (*FirestoreSource, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if appID == "" {
		return nil, fmt.Errorf("app ID is required")
	}
	if root == "" {
		root = "apps"
	}
	return &FirestoreSource{client: client, root: root, appID: appID}, nil
}

// Fetch implements Source
func (s *FirestoreSource) Fetch(ctx context.Context) ([]Entry, error) {
	iter := s.client.Collection(s.root).Doc(s.appID).Collection("exerciseCatalog").Documents(ctx)
	defer iter.Stop()

	var entries []Entry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read exercise catalog: %w", err)
		}

		data := doc.Data()
		name, _ := data["name"].(string)
		if name == "" {
			continue
		}
		entry := Entry{ID: doc.Ref.ID, Name: name}
		if aliases, ok := data["aliases"].([]interface{}); ok {
			for _, a := range aliases {
				if s, ok := a.(string); ok && s != "" {
					entry.Aliases = append(entry.Aliases, s)
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
