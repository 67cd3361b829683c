package app

import (
	"context"
	"time"

	"studyhub-quiz-service/internal/domain"
)

// CourseService serves the course catalog.
type CourseService struct {
	catalog CourseCatalog
	timeout time.Duration
}

func NewCourseService(catalog CourseCatalog, timeout time.Duration) *CourseService {
	return &CourseService{catalog: catalog, timeout: timeout}
}

// List returns every course with quiz content, ordered by course id.
func (s *CourseService) List(ctx context.Context) ([]domain.Course, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	courses, err := s.catalog.ListCourses(ctx)
	if err != nil {
		return nil, storeErr("list courses", err)
	}
	if courses == nil {
		courses = []domain.Course{}
	}
	return courses, nil
}
