package graphbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// AzureTableBookmarkManager persists bookmark sets in an Azure Table,
// letting bookmarks survive process restarts and be shared across driver
// instances. Adapted from aztable.go's entity marshal/unmarshal shape
// (AddEntity/GetEntity/NewClientWithNoCredential) rather than its
// handshake/token/session bootstrap machinery, which this driver has no use
// for (Bolt dials directly, it doesn't bootstrap through blob/queue/table
// endpoints).
type AzureTableBookmarkManager struct {
	client *aztables.Client
	mu     sync.Mutex
}

type bookmarkEntity struct {
	PartitionKey string
	RowKey       string
	Bookmarks    string // JSON-encoded []string
}

// NewAzureTableBookmarkManager builds a BookmarkManager backed by the table
// at tableURL (no credential — use a SAS-qualified URL or a public
// emulator endpoint, matching aztables.NewClientWithNoCredential's usage in
// aztable.go).
func NewAzureTableBookmarkManager(tableURL string) (*AzureTableBookmarkManager, error) {
	client, err := aztables.NewClientWithNoCredential(tableURL, nil)
	if err != nil {
		return nil, fmt.Errorf("graphbolt: bookmark manager table client: %w", err)
	}
	return &AzureTableBookmarkManager{client: client}, nil
}

func (m *AzureTableBookmarkManager) GetBookmarks(database string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, err := m.client.GetEntity(context.Background(), "bookmarks", database, nil)
	if err != nil {
		var re *azcore.ResponseError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil
		}
		return nil
	}
	var e bookmarkEntity
	if json.Unmarshal(resp.Value, &e) != nil {
		return nil
	}
	var bms []string
	if json.Unmarshal([]byte(e.Bookmarks), &bms) != nil {
		return nil
	}
	return bms
}

func (m *AzureTableBookmarkManager) UpdateBookmarks(database string, bookmarks []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	encoded, err := json.Marshal(bookmarks)
	if err != nil {
		return
	}
	entity := bookmarkEntity{PartitionKey: "bookmarks", RowKey: database, Bookmarks: string(encoded)}
	data, err := json.Marshal(entity)
	if err != nil {
		return
	}
	_, _ = m.client.UpsertEntity(context.Background(), data, nil)
}

var _ BookmarkManager = (*AzureTableBookmarkManager)(nil)
