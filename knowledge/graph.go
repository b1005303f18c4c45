package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Graph mirrors the knowledge base into neo4j: Advice nodes linked to their
// Category and Tag nodes. It is enrichment only; the advisor works without
// it.
type Graph struct {
	driver neo4j.DriverWithContext
}

func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{driver: driver}
}

func (g *Graph) SyncAdvice(ctx context.Context, doc Document) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":           doc.ID,
		"title":        doc.Title,
		"category":     doc.Category,
		"last_updated": doc.LastUpdated,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (a:Advice {id: $id})
			SET a.title = $title,
			    a.category = $category,
			    a.last_updated = $last_updated,
			    a.synced_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert advice node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (a:Advice {id: $id})-[r:IN_CATEGORY]->(:Category)
			DELETE r
		`, params); err != nil {
			return nil, fmt.Errorf("remove stale category relation: %w", err)
		}
		if doc.Category != "" {
			if _, err := tx.Run(ctx, `
				MATCH (a:Advice {id: $id})
				MERGE (c:Category {name: $category})
				MERGE (a)-[:IN_CATEGORY]->(c)
			`, params); err != nil {
				return nil, fmt.Errorf("upsert category relation: %w", err)
			}
		}

		if _, err := tx.Run(ctx, `
			MATCH (a:Advice {id: $id})-[r:TAGGED]->(:Tag)
			DELETE r
		`, params); err != nil {
			return nil, fmt.Errorf("clear existing tags: %w", err)
		}
		for _, tag := range doc.Tags {
			if tag == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (a:Advice {id: $id})
				MERGE (t:Tag {name: $tag})
				MERGE (a)-[:TAGGED]->(t)
			`, map[string]any{"id": doc.ID, "tag": tag}); err != nil {
				return nil, fmt.Errorf("upsert tag relation: %w", err)
			}
		}

		return nil, nil
	})

	if err == nil {
		if _, cleanupErr := session.Run(ctx, `
			MATCH (t:Tag)
			WHERE NOT (t)<-[:TAGGED]-(:Advice)
			DELETE t
		`, nil); cleanupErr != nil {
			err = cleanupErr
		}
	}

	return err
}

// Purge removes every advice node and its category/tag neighborhood.
func (g *Graph) Purge(ctx context.Context) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (a:Advice) DETACH DELETE a`, nil); err != nil {
			return nil, fmt.Errorf("delete advice nodes: %w", err)
		}
		if _, err := tx.Run(ctx, `MATCH (c:Category) WHERE NOT (c)<-[:IN_CATEGORY]-() DELETE c`, nil); err != nil {
			return nil, fmt.Errorf("delete orphan categories: %w", err)
		}
		if _, err := tx.Run(ctx, `MATCH (t:Tag) WHERE NOT (t)<-[:TAGGED]-() DELETE t`, nil); err != nil {
			return nil, fmt.Errorf("delete orphan tags: %w", err)
		}
		return nil, nil
	})
	return err
}

type RelatedAdvice struct {
	ID    string
	Title string
}

// Related returns, for each given advice id, other documents sharing its
// category or at least one tag, capped per id.
func (g *Graph) Related(ctx context.Context, ids []string, limit int) (map[string][]RelatedAdvice, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(ids) == 0 {
		return map[string][]RelatedAdvice{}, nil
	}
	if limit <= 0 {
		limit = 3
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Advice)
		WHERE a.id IN $ids
		OPTIONAL MATCH (a)-[:IN_CATEGORY]->(:Category)<-[:IN_CATEGORY]-(sibling:Advice)
		OPTIONAL MATCH (a)-[:TAGGED]->(:Tag)<-[:TAGGED]-(tagged:Advice)
		WITH a, collect(DISTINCT sibling) + collect(DISTINCT tagged) AS neighbors
		RETURN a.id AS id,
		       [n IN neighbors WHERE n IS NOT NULL AND n.id <> a.id | {id: n.id, title: n.title}][0..$limit] AS related
	`, map[string]any{"ids": ids, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("run related advice query: %w", err)
	}

	related := make(map[string][]RelatedAdvice, len(ids))
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		relVal, _ := record.Get("related")
		id, ok := idVal.(string)
		if !ok {
			continue
		}
		related[id] = convertRelated(relVal)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("related advice result error: %w", err)
	}
	return related, nil
}

func convertRelated(value any) []RelatedAdvice {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]RelatedAdvice, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := data["id"].(string)
		title, _ := data["title"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, RelatedAdvice{ID: id, Title: title})
	}
	return out
}
