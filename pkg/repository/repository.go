package repository

import (
	"context"
	"errors"

	"advocacy-engine/pkg/db/option"

	"gorm.io/gorm"
)

// Repository is the shared typed store used by every service. FindOne
// returns (nil, nil) when no row matches so callers can distinguish absence
// from infrastructure failure.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	BatchCreate(ctx context.Context, resources []*T) error
	BatchUpdate(ctx context.Context, resources []*T) error
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	tx := s.db.WithContext(ctx).Model(new(T)).Where(query)
	for _, opt := range opts {
		tx = opt(tx)
	}

	var resources []*T
	if err := tx.Find(&resources).Error; err != nil {
		return nil, err
	}

	return resources, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	tx := s.db.WithContext(ctx).Model(new(T)).Where(query)
	for _, opt := range opts {
		tx = opt(tx)
	}

	var resource T
	if err := tx.First(&resource).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &resource, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	return s.db.WithContext(ctx).Model(new(T)).Where("id = ?", resourceID).Updates(resource).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(resources, 100).Error
}

func (s *store[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Save(resources).Error
}

func (s *store[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	tx := s.db.WithContext(ctx).Model(new(T)).Where(query)
	for _, opt := range opts {
		tx = opt(tx)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return 0, err
	}

	return total, nil
}
