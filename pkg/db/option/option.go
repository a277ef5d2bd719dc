package option

import (
	"fmt"
	"strings"

	"advocacy-engine/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm query before execution. Options compose left to
// right on Find/FindOne calls.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// QuerySortBy sorts by an allow-listed column. SortBy outside Allow falls
// back to created_at so callers can pass user input directly.
type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := "created_at"
		if sort.SortBy != "" && sort.Allow[sort.SortBy] {
			column = sort.SortBy
		}

		order := "ASC"
		if strings.EqualFold(sort.OrderBy, "desc") {
			order = "DESC"
		}

		return db.Order(fmt.Sprintf("%s %s", column, order))
	}
}

func ApplyOperator(cond Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	}
}

// ApplyPagination fetches one row past the limit; BuildCursorPageInfo uses
// the extra row to detect another page and callers trim it before returning.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = 10
		}
		db = db.Limit(limit + 1)

		if p.Cursor != "" {
			cursor, err := pagination.DecodeCursor(p.Cursor)
			if err == nil && cursor.CreatedAt != "" {
				db = db.Where("created_at < ?", cursor.CreatedAt)
			}
		}

		return db
	}
}

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE. sqlite has no
// row locks (its single writer already serializes), so it is a no-op there.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return LockingUpdate(db)
	}
}
