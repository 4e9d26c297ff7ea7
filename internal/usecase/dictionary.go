package usecase

import (
	"fmt"
	"strings"

	"github.com/talentforge/assessor/internal/domain"
)

// DictionaryService manages competency dictionaries. Dictionaries referenced
// by any report are immutable; Update returns a conflict for them.
type DictionaryService struct {
	Dicts domain.DictionaryRepository
}

// NewDictionaryService constructs a DictionaryService.
func NewDictionaryService(d domain.DictionaryRepository) DictionaryService {
	return DictionaryService{Dicts: d}
}

// Create validates the dictionary shape and persists it.
func (s DictionaryService) Create(ctx domain.Context, d domain.Dictionary) (string, error) {
	if err := validateDictionary(d); err != nil {
		return "", err
	}
	return s.Dicts.Create(ctx, d)
}

// Get loads a dictionary by id.
func (s DictionaryService) Get(ctx domain.Context, id string) (domain.Dictionary, error) {
	return s.Dicts.Get(ctx, id)
}

// Update replaces a dictionary that no report references yet.
func (s DictionaryService) Update(ctx domain.Context, d domain.Dictionary) error {
	if err := validateDictionary(d); err != nil {
		return err
	}
	inUse, err := s.Dicts.InUse(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("op=dictionary.update: %w", err)
	}
	if inUse {
		return fmt.Errorf("op=dictionary.update: %w: dictionary %s is referenced by a report", domain.ErrConflict, d.ID)
	}
	return s.Dicts.Update(ctx, d)
}

// validateDictionary enforces the shape the pipeline depends on: named
// competencies with ladders numbered contiguously from 1, each rung carrying
// at least one key behavior.
func validateDictionary(d domain.Dictionary) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("op=dictionary.validate: %w: name required", domain.ErrInvalidArgument)
	}
	if len(d.Competencies) == 0 {
		return fmt.Errorf("op=dictionary.validate: %w: at least one competency required", domain.ErrInvalidArgument)
	}
	seen := map[string]struct{}{}
	for _, c := range d.Competencies {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("op=dictionary.validate: %w: competency name required", domain.ErrInvalidArgument)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("op=dictionary.validate: %w: duplicate competency %q", domain.ErrInvalidArgument, name)
		}
		seen[name] = struct{}{}
		if len(c.Levels) == 0 {
			return fmt.Errorf("op=dictionary.validate: %w: competency %q has no levels", domain.ErrInvalidArgument, name)
		}
		for i, l := range c.Levels {
			if l.Level != i+1 {
				return fmt.Errorf("op=dictionary.validate: %w: competency %q levels must be contiguous from 1", domain.ErrInvalidArgument, name)
			}
			if len(l.KeyBehaviors) == 0 {
				return fmt.Errorf("op=dictionary.validate: %w: competency %q level %d has no key behaviors", domain.ErrInvalidArgument, name, l.Level)
			}
		}
	}
	return nil
}
