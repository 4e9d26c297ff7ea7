package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/talentforge/assessor/internal/domain"
)

// DictionaryRepo persists competency dictionaries.
type DictionaryRepo struct{ Pool PgxPool }

// NewDictionaryRepo constructs a DictionaryRepo with the given pool.
func NewDictionaryRepo(p PgxPool) *DictionaryRepo { return &DictionaryRepo{Pool: p} }

// Create inserts a dictionary and returns its id.
func (r *DictionaryRepo) Create(ctx domain.Context, d domain.Dictionary) (string, error) {
	tracer := otel.Tracer("repo.dictionaries")
	ctx, span := tracer.Start(ctx, "dictionaries.Create")
	defer span.End()
	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}
	comps, err := json.Marshal(d.Competencies)
	if err != nil {
		return "", fmt.Errorf("op=dictionary.create: %w", err)
	}
	q := `INSERT INTO dictionaries (id, name, version, competencies, created_at) VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.Pool.Exec(ctx, q, id, d.Name, d.Version, comps, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=dictionary.create: %w", err)
	}
	return id, nil
}

// Get loads a dictionary by id.
func (r *DictionaryRepo) Get(ctx domain.Context, id string) (domain.Dictionary, error) {
	tracer := otel.Tracer("repo.dictionaries")
	ctx, span := tracer.Start(ctx, "dictionaries.Get")
	defer span.End()
	q := `SELECT id, name, version, competencies, created_at FROM dictionaries WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var d domain.Dictionary
	var comps []byte
	if err := row.Scan(&d.ID, &d.Name, &d.Version, &comps, &d.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Dictionary{}, fmt.Errorf("op=dictionary.get: %w", domain.ErrNotFound)
		}
		return domain.Dictionary{}, fmt.Errorf("op=dictionary.get: %w", err)
	}
	if err := json.Unmarshal(comps, &d.Competencies); err != nil {
		return domain.Dictionary{}, fmt.Errorf("op=dictionary.get: decode competencies: %w", err)
	}
	return d, nil
}

// Update replaces a dictionary's content and bumps its version.
func (r *DictionaryRepo) Update(ctx domain.Context, d domain.Dictionary) error {
	tracer := otel.Tracer("repo.dictionaries")
	ctx, span := tracer.Start(ctx, "dictionaries.Update")
	defer span.End()
	comps, err := json.Marshal(d.Competencies)
	if err != nil {
		return fmt.Errorf("op=dictionary.update: %w", err)
	}
	q := `UPDATE dictionaries SET name=$2, version=version+1, competencies=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, d.ID, d.Name, comps)
	if err != nil {
		return fmt.Errorf("op=dictionary.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=dictionary.update: %w", domain.ErrNotFound)
	}
	return nil
}

// InUse reports whether any report references the dictionary.
func (r *DictionaryRepo) InUse(ctx domain.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.dictionaries")
	ctx, span := tracer.Start(ctx, "dictionaries.InUse")
	defer span.End()
	q := `SELECT EXISTS(SELECT 1 FROM reports WHERE dictionary_id=$1)`
	var used bool
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&used); err != nil {
		return false, fmt.Errorf("op=dictionary.in_use: %w", err)
	}
	return used, nil
}
