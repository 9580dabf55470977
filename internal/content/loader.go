package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-learn/internal/progress"
)

// Catalog holds the loaded courses.
type Catalog struct {
	courses map[string]Course
	mu      sync.RWMutex
}

// NewCatalog builds a catalog from already parsed courses.
func NewCatalog(courses ...Course) *Catalog {
	c := &Catalog{courses: make(map[string]Course)}
	for _, course := range courses {
		c.add(course, "")
	}
	return c
}

// Load reads every *.yaml / *.yml course file under rootDir.
func Load(rootDir string) (*Catalog, error) {
	if _, err := os.Stat(rootDir); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	c := NewCatalog()
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return c.loadCourse(path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded", "courses", c.Len())
	return c, nil
}

// Course returns a course by ID.
func (c *Catalog) Course(id string) (Course, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.courses[id]
	return course, ok
}

// Courses returns all courses ordered by ID.
func (c *Catalog) Courses() []Course {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Course, 0, len(c.courses))
	for _, course := range c.courses {
		out = append(out, course)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of courses.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.courses)
}

// ChaptersAt returns the chapters of courseID tagged with d, in catalog order.
func (c *Catalog) ChaptersAt(courseID string, d progress.Difficulty) []Chapter {
	course, ok := c.Course(courseID)
	if !ok {
		return []Chapter{}
	}
	out := []Chapter{}
	for _, ch := range course.Chapters {
		if ch.Difficulty == d {
			out = append(out, ch)
		}
	}
	return out
}

func (c *Catalog) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var course Course
	if err := yaml.Unmarshal(data, &course); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}
	if course.ID == "" {
		return nil // Not a course file
	}

	c.add(course, path)
	return nil
}

// add normalises difficulty tags and drops chapters whose tag is unknown.
func (c *Catalog) add(course Course, path string) {
	fold := cases.Fold()
	chapters := make([]Chapter, 0, len(course.Chapters))
	for _, ch := range course.Chapters {
		ch.Difficulty = progress.Difficulty(fold.String(strings.TrimSpace(string(ch.Difficulty))))
		if !ch.Difficulty.Valid() {
			slog.Warn("skipping chapter with unknown difficulty",
				"course_id", course.ID,
				"chapter_id", ch.ID,
				"difficulty", ch.Difficulty,
				"path", path,
			)
			continue
		}
		chapters = append(chapters, ch)
	}
	course.Chapters = chapters

	c.mu.Lock()
	c.courses[course.ID] = course
	c.mu.Unlock()
}
