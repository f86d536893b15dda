package store

import (
	"context"
	"errors"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/menusense/pipeline/engine/domain"
	"github.com/menusense/pipeline/pkg/repo"
)

var errUnexpectedRecordShape = errors.New("unexpected record shape for menu item")

// ItemStore persists domain.MenuItem nodes.
type ItemStore struct {
	repo   *repo.Neo4jRepo[domain.MenuItem, string]
	driver neo4j.DriverWithContext
}

// NewItemStore builds an ItemStore over the given driver.
func NewItemStore(driver neo4j.DriverWithContext) *ItemStore {
	return &ItemStore{
		driver: driver,
		repo: repo.NewNeo4jRepo[domain.MenuItem, string](
			driver, "MenuItem", itemToMap, itemFromRecord,
		),
	}
}

func itemToMap(m domain.MenuItem) map[string]any {
	props := map[string]any{
		"id":         m.ID,
		"session_id": m.SessionID,
		"name":       m.Name,
		"category":   m.Category,
		"price":      m.Price,
		"created_at": m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": m.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	setOptional(props, "translation", m.Translation)
	setOptional(props, "category_translation", m.CategoryTranslation)
	setOptional(props, "description", m.Description)
	setOptional(props, "allergy", m.Allergy)
	setOptional(props, "ingredient", m.Ingredient)
	setOptional(props, "search_images", m.SearchImages)
	return props
}

func setOptional(props map[string]any, key string, v *string) {
	if v != nil {
		props[key] = *v
	}
}

func itemFromRecord(rec *neo4j.Record) (domain.MenuItem, error) {
	var m domain.MenuItem
	raw, ok := rec.Values[0].(map[string]any)
	if !ok {
		return m, errUnexpectedRecordShape
	}
	m.ID = stringOf(raw["id"])
	m.SessionID = stringOf(raw["session_id"])
	m.Name = stringOf(raw["name"])
	m.Category = stringOf(raw["category"])
	m.Price = stringOf(raw["price"])
	m.Translation = optionalString(raw["translation"])
	m.CategoryTranslation = optionalString(raw["category_translation"])
	m.Description = optionalString(raw["description"])
	m.Allergy = optionalString(raw["allergy"])
	m.Ingredient = optionalString(raw["ingredient"])
	m.SearchImages = optionalString(raw["search_images"])
	m.CreatedAt = timeOf(raw["created_at"])
	m.UpdatedAt = timeOf(raw["updated_at"])
	return m, nil
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// Get loads one item by ID.
func (s *ItemStore) Get(ctx context.Context, id string) (domain.MenuItem, error) {
	return s.repo.Get(ctx, id)
}

// Update writes a partial update to one item (e.g. the translation or
// description field a worker task just produced).
func (s *ItemStore) Update(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	return s.repo.Update(ctx, item)
}

// ListBySession returns every item belonging to a session.
func (s *ItemStore) ListBySession(ctx context.Context, sessionID string) ([]domain.MenuItem, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (n:MenuItem {session_id: $sid}) RETURN n ORDER BY n.id`, map[string]any{"sid": sessionID})
	if err != nil {
		return nil, err
	}
	var items []domain.MenuItem
	for res.Next(ctx) {
		raw, ok := res.Record().Get("n")
		if !ok {
			continue
		}
		node, ok := raw.(neo4j.Node)
		if !ok {
			continue
		}
		item, err := itemFromRecord(&neo4j.Record{Values: []any{node.Props}, Keys: []string{"n"}})
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// BulkSave creates every item from the categorized menu in a single
// transaction, via UNWIND — the batch-insert idiom for writing many rows
// without one round trip per row.
func (s *ItemStore) BulkSave(ctx context.Context, items []domain.MenuItem) error {
	if len(items) == 0 {
		return nil
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	rows := make([]map[string]any, len(items))
	for i, item := range items {
		rows[i] = itemToMap(item)
	}

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `UNWIND $items AS item CREATE (n:MenuItem) SET n = item`, map[string]any{"items": rows})
	})
	return err
}
