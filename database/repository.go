package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Table 单表泛型存取，T 为 gorm 模型。只写不删，冲突时按业务键覆盖；
// 所有语句经 DB.Guard 执行，受数据库熔断器保护.
type Table[T any] struct {
	db *DB
}

func NewTable[T any](db *DB) *Table[T] {
	return &Table[T]{db: db}
}

// Upsert 按 key 列冲突时只更新 columns；columns 为空时更新全部列.
func (t *Table[T]) Upsert(ctx context.Context, row *T, key []string, columns ...string) error {
	oc := clause.OnConflict{UpdateAll: len(columns) == 0}
	for _, k := range key {
		oc.Columns = append(oc.Columns, clause.Column{Name: k})
	}
	if len(columns) > 0 {
		oc.DoUpdates = clause.AssignmentColumns(columns)
	}
	return t.db.Guard(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(oc).Create(row).Error; err != nil {
			return xerrors.WrapInternal(err, "failed to upsert row")
		}
		return nil
	})
}

// Query 组合条件的只读查询.
type Query struct {
	Conds []Cond
	Order string
	Limit int
}

// Cond 一个 where 子句.
type Cond struct {
	Expr string
	Args []any
}

// Where 构造条件.
func Where(expr string, args ...any) Cond {
	return Cond{Expr: expr, Args: args}
}

// Find 按 q 查询，结果为空时返回空切片.
func (t *Table[T]) Find(ctx context.Context, q Query) ([]T, error) {
	var rows []T
	err := t.db.Guard(ctx, func(tx *gorm.DB) error {
		for _, c := range q.Conds {
			tx = tx.Where(c.Expr, c.Args...)
		}
		if q.Order != "" {
			tx = tx.Order(q.Order)
		}
		if q.Limit > 0 {
			tx = tx.Limit(q.Limit)
		}
		if err := tx.Find(&rows).Error; err != nil {
			return xerrors.WrapInternal(err, "failed to query rows")
		}
		return nil
	})
	return rows, err
}

// First 返回第一条匹配，没有时返回 NotFound.
func (t *Table[T]) First(ctx context.Context, conds ...Cond) (T, error) {
	rows, err := t.Find(ctx, Query{Conds: conds, Limit: 1})
	if err != nil || len(rows) == 0 {
		var zero T
		if err == nil {
			err = xerrors.NotFound("row not found")
		}
		return zero, err
	}
	return rows[0], nil
}
