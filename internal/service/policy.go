package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/circulation-system/internal/model"
)

// PolicyCatalog выдаёт правила выдачи по категории читателя.
type PolicyCatalog struct {
	repo PolicyRepository
}

// NewPolicyCatalog создаёт каталог политик.
func NewPolicyCatalog(repo PolicyRepository) *PolicyCatalog {
	return &PolicyCatalog{repo: repo}
}

// Policy возвращает правила категории.
func (c *PolicyCatalog) Policy(ctx context.Context, categoryID string) (model.Policy, error) {
	p, err := c.repo.GetPolicy(ctx, categoryID)
	if err != nil {
		return model.Policy{}, fmt.Errorf("policy %q: %w", categoryID, err)
	}
	return p, nil
}

// For возвращает правила категории читателя.
func (c *PolicyCatalog) For(ctx context.Context, patron model.Patron) (model.Policy, error) {
	return c.Policy(ctx, patron.CategoryID)
}

// Upsert проверяет и сохраняет правила категории.
func (c *PolicyCatalog) Upsert(ctx context.Context, p model.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return c.repo.UpsertPolicy(ctx, p)
}
