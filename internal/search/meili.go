package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxMoods = "pairmood_moods"

// Meili indexes and searches mood entries via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the mood index.
// The client is returned even when the initial connection fails; the
// health monitor reconfigures the index once Meilisearch recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
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
		Uid:        idxMoods,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxMoods, err)
	}

	index := m.client.Index(idxMoods)
	filterable := []interface{}{"userId", "mood"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxMoods, err)
	}
	searchable := []string{"note", "mood"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxMoods, err)
	}
	sortable := []string{"timestamp"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("search: update sortable attrs for %s: %v", idxMoods, err)
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

// Search queries the mood index restricted to the query's user ids.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if len(q.UserIDs) == 0 {
		return nil, 0, nil
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	quoted := make([]string, len(q.UserIDs))
	for i, id := range q.UserIDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}

	sr := &meili.SearchRequest{
		Limit:                 limit,
		Filter:                fmt.Sprintf("userId IN [%s]", strings.Join(quoted, ", ")),
		Sort:                  []string{"timestamp:desc"},
		AttributesToHighlight: []string{"note"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}

	resp, err := m.client.Index(idxMoods).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:        decodeString(hit, "id"),
		UserID:    decodeString(hit, "userId"),
		Mood:      decodeString(hit, "mood"),
		Intensity: decodeInt(hit, "intensity"),
		Snippet:   firstNonBlank(decodeFormattedString(hit, "note"), decodeString(hit, "note")),
		CreatedAt: decodeString(hit, "timestamp"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexMood adds or updates a mood entry in the search index.
func (m *Meili) IndexMood(record MoodRecord) error {
	_, err := m.client.Index(idxMoods).AddDocuments([]MoodRecord{record}, nil)
	return err
}

// IndexMoods bulk-indexes mood entries.
func (m *Meili) IndexMoods(records []MoodRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxMoods).AddDocuments(records, nil)
	return err
}
