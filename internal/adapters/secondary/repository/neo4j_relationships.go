package repository

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
)

// Neo4jRelationshipRepo est le backend graphe : chaque ensemble est une arête
// typée (:Account {id: storeId})-[:MEMBER {set}]->(:Account {id: value}).
type Neo4jRelationshipRepo struct {
	driver  neo4j.DriverWithContext
	storeID string
}

func NewNeo4jRelationshipRepo(driver neo4j.DriverWithContext, storeID string) *Neo4jRelationshipRepo {
	return &Neo4jRelationshipRepo{driver: driver, storeID: storeID}
}

// EnsureSchema crée la contrainte d'unicité (et donc l'index) sur Account.id
func (r *Neo4jRelationshipRepo) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `CREATE CONSTRAINT account_id_unique IF NOT EXISTS FOR (a:Account) REQUIRE a.id IS UNIQUE`
		_, err := tx.Run(ctx, query, nil)
		return nil, err
	})
	return err
}

func (r *Neo4jRelationshipRepo) AddMember(ctx context.Context, set domain.SetName, value string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// MERGE est idempotent ; le marqueur posé par ON CREATE dit si l'arête vient d'être créée
		query := `
			MERGE (o:Account {id: $storeId})
			MERGE (m:Account {id: $value})
			MERGE (o)-[r:MEMBER {set: $set}]->(m)
			ON CREATE SET r.created_at = datetime(), r.fresh = true
			WITH r, coalesce(r.fresh, false) AS fresh
			REMOVE r.fresh
			RETURN CASE WHEN fresh THEN 1 ELSE 0 END AS created
		`
		res, err := tx.Run(ctx, query, r.params(set, value))
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := rec.Get("created")
		return n.(int64) > 0, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j add member %s: %w", set, err)
	}
	if !created.(bool) {
		return domain.ErrAlreadyPresent
	}
	return nil
}

func (r *Neo4jRelationshipRepo) RemoveMember(ctx context.Context, set domain.SetName, value string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (:Account {id: $storeId})-[r:MEMBER {set: $set}]->(:Account {id: $value})
			DELETE r
			RETURN count(r) AS deleted
		`
		res, err := tx.Run(ctx, query, r.params(set, value))
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := rec.Get("deleted")
		return n.(int64) > 0, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j remove member %s: %w", set, err)
	}
	if !deleted.(bool) {
		return domain.ErrNotPresent
	}
	return nil
}

func (r *Neo4jRelationshipRepo) Contains(ctx context.Context, set domain.SetName, value string) (bool, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			OPTIONAL MATCH (:Account {id: $storeId})-[r:MEMBER {set: $set}]->(:Account {id: $value})
			RETURN r IS NOT NULL AS member
		`
		res, err := tx.Run(ctx, query, r.params(set, value))
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			member, _ := res.Record().Get("member")
			return member.(bool), nil
		}
		return false, res.Err()
	})
	if err != nil {
		return false, fmt.Errorf("neo4j contains %s: %w", set, err)
	}
	return result.(bool), nil
}

func (r *Neo4jRelationshipRepo) AllMembers(ctx context.Context, set domain.SetName) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `MATCH (:Account {id: $storeId})-[:MEMBER {set: $set}]->(m:Account) RETURN m.id AS memberId`
		res, err := tx.Run(ctx, query, map[string]any{"storeId": r.storeID, "set": string(set)})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0)
		for res.Next(ctx) {
			id, _ := res.Record().Get("memberId")
			ids = append(ids, id.(string))
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j members %s: %w", set, err)
	}
	return result.([]string), nil
}

func (r *Neo4jRelationshipRepo) params(set domain.SetName, value string) map[string]any {
	return map[string]any{
		"storeId": r.storeID,
		"set":     string(set),
		"value":   value,
	}
}
