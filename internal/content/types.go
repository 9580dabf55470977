// Package content serves course chapters filtered by a learner's difficulty placement.
package content

import "github.com/p-n-ai/pai-learn/internal/progress"

// Course is a catalog entry loaded from YAML.
type Course struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description" json:"description"`
	Chapters    []Chapter `yaml:"chapters" json:"chapters"`
}

// Chapter is one unit of course content tagged with the placement it targets.
type Chapter struct {
	ID          string              `yaml:"id" json:"id"`
	Title       string              `yaml:"title" json:"title"`
	Description string              `yaml:"description" json:"description"`
	Content     string              `yaml:"content" json:"content"`
	Difficulty  progress.Difficulty `yaml:"difficulty" json:"difficulty"`
	Quiz        []Question          `yaml:"quiz" json:"quiz"`
}

// Question is a multiple-choice quiz item. CorrectAnswer indexes Options.
type Question struct {
	Question      string   `yaml:"question" json:"question"`
	Options       []string `yaml:"options" json:"options"`
	CorrectAnswer int      `yaml:"correctAnswer" json:"correctAnswer"`
}
