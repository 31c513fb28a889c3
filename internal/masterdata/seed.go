package masterdata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document used to bootstrap a curated taxonomy.
type Seed struct {
	Lessons       []SeedLesson       `yaml:"lessons"`
	Prerequisites []SeedPrerequisite `yaml:"prerequisites"`
}

type SeedLesson struct {
	Name        string      `yaml:"name"`
	DisplayName string      `yaml:"display_name"`
	Profile     string      `yaml:"profile"`
	Topics      []SeedTopic `yaml:"topics"`
}

type SeedTopic struct {
	Name        string         `yaml:"name"`
	DisplayName string         `yaml:"display_name"`
	Description string         `yaml:"description"`
	Subtopics   []SeedSubtopic `yaml:"subtopics"`
}

type SeedSubtopic struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

type SeedPrerequisite struct {
	Key        string     `yaml:"key"`
	Name       string     `yaml:"name"`
	ConceptIDs []int64    `yaml:"concept_ids"`
	Edges      []SeedEdge `yaml:"edges"`
}

type SeedEdge struct {
	Lesson    string `yaml:"lesson"`
	Topic     string `yaml:"topic"`
	Subtopic  string `yaml:"subtopic"`
	Strength  string `yaml:"strength"`
	Frequency int    `yaml:"frequency"`
}

func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

func ParseSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty seed document", ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: decode seed: %v", ErrInvalidInput, err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks names and references before anything touches the database.
func (s *Seed) Validate() error {
	topicsByLesson := make(map[string]map[string]map[string]bool)
	for i, l := range s.Lessons {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return fmt.Errorf("%w: lessons[%d].name is required", ErrInvalidInput, i)
		}
		if l.Profile != "" && ParsePatternProfile(l.Profile) == "" {
			return fmt.Errorf("%w: lessons[%d].profile %q is unknown", ErrInvalidInput, i, l.Profile)
		}
		lk := strings.ToLower(name)
		if _, dup := topicsByLesson[lk]; dup {
			return fmt.Errorf("%w: duplicate lesson %q", ErrInvalidInput, name)
		}
		topics := make(map[string]map[string]bool)
		for j, t := range l.Topics {
			tn := strings.ToLower(strings.TrimSpace(t.Name))
			if tn == "" {
				return fmt.Errorf("%w: lessons[%d].topics[%d].name is required", ErrInvalidInput, i, j)
			}
			if _, dup := topics[tn]; dup {
				return fmt.Errorf("%w: duplicate topic %q in lesson %q", ErrInvalidInput, t.Name, name)
			}
			subs := make(map[string]bool)
			for k, st := range t.Subtopics {
				sn := strings.ToLower(strings.TrimSpace(st.Name))
				if sn == "" {
					return fmt.Errorf("%w: lessons[%d].topics[%d].subtopics[%d].name is required", ErrInvalidInput, i, j, k)
				}
				if subs[sn] {
					return fmt.Errorf("%w: duplicate subtopic %q in topic %q", ErrInvalidInput, st.Name, t.Name)
				}
				subs[sn] = true
			}
			topics[tn] = subs
		}
		topicsByLesson[lk] = topics
	}

	for i, p := range s.Prerequisites {
		if strings.TrimSpace(p.Key) == "" || strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: prerequisites[%d] key and name are required", ErrInvalidInput, i)
		}
		for j, e := range p.Edges {
			if _, ok := ParseEdgeStrength(e.Strength); !ok {
				return fmt.Errorf("%w: prerequisites[%d].edges[%d].strength %q is invalid", ErrInvalidInput, i, j, e.Strength)
			}
			if e.Frequency < 0 {
				return fmt.Errorf("%w: prerequisites[%d].edges[%d].frequency must not be negative", ErrInvalidInput, i, j)
			}
			topics, ok := topicsByLesson[strings.ToLower(strings.TrimSpace(e.Lesson))]
			if !ok {
				return fmt.Errorf("%w: prerequisites[%d].edges[%d] references unknown lesson %q", ErrInvalidInput, i, j, e.Lesson)
			}
			subs, ok := topics[strings.ToLower(strings.TrimSpace(e.Topic))]
			if !ok {
				return fmt.Errorf("%w: prerequisites[%d].edges[%d] references unknown topic %q", ErrInvalidInput, i, j, e.Topic)
			}
			if e.Subtopic != "" && !subs[strings.ToLower(strings.TrimSpace(e.Subtopic))] {
				return fmt.Errorf("%w: prerequisites[%d].edges[%d] references unknown subtopic %q", ErrInvalidInput, i, j, e.Subtopic)
			}
		}
	}
	return nil
}
