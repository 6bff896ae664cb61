package search

import (
	"context"
	"log"
	"strings"
)

// Service is the facade that tries Meilisearch first and falls back to the
// PostgreSQL scan.
type Service struct {
	meili *Meili
	pg    *PgUsers
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pg *PgUsers) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch if healthy, otherwise falls back to PostgreSQL.
// Blank queries return an empty result set without touching either backend.
func (s *Service) Search(q Query) Response {
	if strings.TrimSpace(q.Text) == "" {
		return Response{Results: []UserRecord{}, Total: 0, Query: q.Text}
	}
	q = q.Bounded()

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return Response{Results: []UserRecord{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexUser pushes a user into the index (fire-and-forget to Meilisearch).
func (s *Service) IndexUser(user UserRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexUser(user); err != nil {
			log.Printf("search: index user %s: %v", user.ID, err)
		}
	}()
}

// ReindexAllFromPG reindexes every profile from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	records, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexUsers(records); err != nil {
		log.Printf("search: reindex users: %v", err)
	}
}

func nonNil(r []UserRecord) []UserRecord {
	if r == nil {
		return []UserRecord{}
	}
	return r
}
