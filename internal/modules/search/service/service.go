package service

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
)

const circlesIndex = "circles"

// CircleSearchService keeps a Meilisearch index of public circles for the
// directory search. Private circles are never indexed.
type CircleSearchService interface {
	IndexCircle(circle *entity.Circle) error
	DeleteCircle(id string) error
	// Search returns ids of public circles matching q, excluding those
	// created by excludeCreator.
	Search(q string, excludeCreator string, limit int) ([]string, error)
}

type circleSearchService struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
}

func NewCircleSearchService(client meilisearch.ServiceManager) CircleSearchService {
	s := &circleSearchService{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
	}
	s.initIndexes()
	return s
}

func (s *circleSearchService) initIndexes() {
	filterableAttrs := []string{"creator_id"}
	filterableInterface := make([]any, len(filterableAttrs))
	for i, v := range filterableAttrs {
		filterableInterface[i] = v
	}
	_, err := s.client.Index(circlesIndex).UpdateFilterableAttributes(&filterableInterface)
	if err != nil {
		log.Printf("Failed to update circles filterable attributes: %v", err)
	}

	sortableAttrs := []string{"created_at"}
	_, err = s.client.Index(circlesIndex).UpdateSortableAttributes(&sortableAttrs)
	if err != nil {
		log.Printf("Failed to update circles sortable attributes: %v", err)
	}

	log.Println("Meilisearch circles index initialized")
}

type meiliCircleDoc struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatorID   string `json:"creator_id"`
	CreatedAt   int64  `json:"created_at"`
}

func (s *circleSearchService) IndexCircle(circle *entity.Circle) error {
	if circle.IsPrivate {
		// A circle flipped to private must drop out of the directory.
		return s.DeleteCircle(circle.ID.String())
	}

	doc := meiliCircleDoc{
		ID:          circle.ID.String(),
		Name:        s.sanitizer.Sanitize(circle.Name),
		Description: s.sanitizer.Sanitize(circle.Description),
		CreatorID:   circle.CreatorID.String(),
		CreatedAt:   circle.CreatedAt.Unix(),
	}

	task, err := s.client.Index(circlesIndex).AddDocuments([]meiliCircleDoc{doc}, strPtr("id"))
	if err != nil {
		return err
	}
	log.Printf("Indexed circle %s, task id: %d", circle.ID, task.TaskUID)
	return nil
}

func (s *circleSearchService) DeleteCircle(id string) error {
	_, err := s.client.Index(circlesIndex).DeleteDocument(id)
	return err
}

func (s *circleSearchService) Search(q string, excludeCreator string, limit int) ([]string, error) {
	req := &meilisearch.SearchRequest{
		Limit:  int64(limit),
		Filter: fmt.Sprintf("creator_id != %q", excludeCreator),
	}

	resp, err := s.client.Index(circlesIndex).Search(q, req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			continue
		}
		var doc meiliCircleDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		ids = append(ids, doc.ID)
	}

	return ids, nil
}

func strPtr(s string) *string {
	return &s
}
