package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// NewFirestoreClient создает клиент Firestore. Учетные данные берутся из окружения
// (GOOGLE_APPLICATION_CREDENTIALS или метаданные GCP), эмулятор - из FIRESTORE_EMULATOR_HOST.
func NewFirestoreClient(ctx context.Context, projectID, databaseID string) (*firestore.Client, error) {
	if databaseID == "" {
		databaseID = "(default)"
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать клиент firestore: %w", err)
	}
	return client, nil
}
