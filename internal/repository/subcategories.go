package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmoiron/sqlx"
)

type SubcategoriesRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*model.Subcategory, error)
	// Upsert writes the catalogue in one transaction; used by `seed`.
	Upsert(ctx context.Context, items []model.Subcategory) (int, error)
}

type SubcategoriesRepositoryImpl struct {
	db *sqlx.DB
}

var _ SubcategoriesRepository = (*SubcategoriesRepositoryImpl)(nil)

func NewSubcategoriesRepository(db *sqlx.DB) *SubcategoriesRepositoryImpl {
	return &SubcategoriesRepositoryImpl{db: db}
}

func (r *SubcategoriesRepositoryImpl) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM subcategories WHERE id = ?`, id); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SubcategoriesRepositoryImpl) Get(ctx context.Context, id string) (*model.Subcategory, error) {
	var s model.Subcategory
	err := r.db.GetContext(ctx, &s, `SELECT id, name, category_group FROM subcategories WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SubcategoriesRepositoryImpl) Upsert(ctx context.Context, items []model.Subcategory) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subcategories (id, name, category_group)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE name = VALUES(name), category_group = VALUES(category_group)
		`, s.ID, s.Name, s.CategoryGroup)
		if err != nil {
			return 0, fmt.Errorf("upsert subcategory %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(items), nil
}
