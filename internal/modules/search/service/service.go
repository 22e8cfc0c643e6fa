package service

import (
	"encoding/json"
	"html"
	"log"
	"strings"

	"anoa.com/studentportfolio/internal/entity"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
)

const studentsIndex = "students"

// StudentIndexer keeps the recruiter search index in step with live profiles.
type StudentIndexer interface {
	IndexStudent(student *entity.Student) error
	DeleteStudent(studentID string) error
}

type meiliSearchService struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
}

func NewMeiliSearchService(client meilisearch.ServiceManager) StudentIndexer {
	s := &meiliSearchService{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
	}
	s.initIndexes()
	return s
}

func (s *meiliSearchService) initIndexes() {
	filterable := []string{"skills", "it_skills"}
	filterableInterface := make([]any, len(filterable))
	for i, v := range filterable {
		filterableInterface[i] = v
	}
	if _, err := s.client.Index(studentsIndex).UpdateFilterableAttributes(&filterableInterface); err != nil {
		log.Printf("[Search] failed to update students filterable attributes: %v", err)
	}

	sortable := []string{"updated_at"}
	if _, err := s.client.Index(studentsIndex).UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("[Search] failed to update students sortable attributes: %v", err)
	}
}

type studentDoc struct {
	ID               string   `json:"id"`
	FullName         string   `json:"full_name"`
	SelfIntroduction string   `json:"self_introduction"`
	Hobbies          string   `json:"hobbies"`
	SpecialSkills    string   `json:"special_skills"`
	Skills           []string `json:"skills"`
	ITSkills         []string `json:"it_skills"`
	UpdatedAt        int64    `json:"updated_at"`
}

func (s *meiliSearchService) cleanText(p *string) string {
	if p == nil {
		return ""
	}
	sanitized := s.sanitizer.Sanitize(*p)
	return strings.Join(strings.Fields(html.UnescapeString(sanitized)), " ")
}

// skillNames accepts either ["go", ...] or [{"name": "go", ...}, ...].
func skillNames(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			names = append(names, v)
		case map[string]any:
			if n, ok := v["name"].(string); ok {
				names = append(names, n)
			}
		}
	}
	return names
}

func buildStudentDoc(s *meiliSearchService, student *entity.Student) studentDoc {
	return studentDoc{
		ID:               student.StudentID,
		FullName:         student.FullName,
		SelfIntroduction: s.cleanText(student.SelfIntroduction),
		Hobbies:          s.cleanText(student.Hobbies),
		SpecialSkills:    s.cleanText(student.SpecialSkills),
		Skills:           skillNames(student.Skills),
		ITSkills:         skillNames(student.ITSkills),
		UpdatedAt:        student.UpdatedAt.Unix(),
	}
}

// IndexStudent indexes visible profiles and drops hidden ones.
func (s *meiliSearchService) IndexStudent(student *entity.Student) error {
	if !student.Visibility {
		return s.DeleteStudent(student.StudentID)
	}

	doc := buildStudentDoc(s, student)
	task, err := s.client.Index(studentsIndex).AddDocuments([]studentDoc{doc}, strPtr("id"))
	if err != nil {
		return err
	}
	log.Printf("[Search] indexed student %s, task id: %d", student.StudentID, task.TaskUID)
	return nil
}

func (s *meiliSearchService) DeleteStudent(studentID string) error {
	_, err := s.client.Index(studentsIndex).DeleteDocument(studentID)
	return err
}

func strPtr(s string) *string {
	return &s
}
