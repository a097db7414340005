package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

// Meili implements Mirror via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	index   string
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the notes index.
// If the initial connection fails the client starts unhealthy and the
// background monitor reconfigures the index once the service recovers.
func NewMeili(host, apiKey, index string) *Meili {
	client := meili.New(host, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		index:  index,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", host, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", m.index, err)
	}

	index := m.client.Index(m.index)
	filterable := []interface{}{"userId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", m.index, err)
	}
	searchable := []string{"title", "content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", m.index, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Upsert adds or fully overwrites an entry in the index.
func (m *Meili) Upsert(entry Entry) error {
	if !m.healthy.Load() {
		return fmt.Errorf("upsert %s: %w", entry.ID, ErrUnavailable)
	}
	if _, err := m.client.Index(m.index).AddDocuments([]Entry{entry}, nil); err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("upsert %s: %w: %v", entry.ID, ErrUnavailable, err)
	}
	return nil
}

// Remove deletes an entry by identifier. Removing an identifier that was
// never indexed is not an error.
func (m *Meili) Remove(id string) error {
	if !m.healthy.Load() {
		return fmt.Errorf("remove %s: %w", id, ErrUnavailable)
	}
	if _, err := m.client.Index(m.index).DeleteDocument(id, nil); err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("remove %s: %w: %v", id, ErrUnavailable, err)
	}
	return nil
}

// Query returns entries owned by userID that match text under the index's
// own relevance ranking.
func (m *Meili) Query(text string, userID int64) ([]Entry, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("query: %w", ErrUnavailable)
	}

	resp, err := m.client.Index(m.index).Search(text, &meili.SearchRequest{
		Filter: ownerFilter(userID),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("query: %w: %v", ErrUnavailable, err)
	}

	entries := make([]Entry, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		entries = append(entries, hitToEntry(hit))
	}
	return entries, nil
}

func ownerFilter(userID int64) string {
	return fmt.Sprintf("userId = %d", userID)
}

func hitToEntry(hit meili.Hit) Entry {
	var entry Entry
	raw, err := json.Marshal(hit)
	if err != nil {
		return entry
	}
	_ = json.Unmarshal(raw, &entry)
	return entry
}
