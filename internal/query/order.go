package query

import (
	"context"
	"log/slog"
	"strings"

	"gorm.io/gorm/clause"
)

// Order resolves orderBy to a sort column. An empty or unknown name falls
// back to newest-first by creation time; an unknown name is also logged.
func (b *Builder) Order(ctx context.Context, orderBy string, ascending bool) clause.OrderByColumn {
	if strings.TrimSpace(orderBy) != "" {
		if f, ok := b.fields.Lookup(orderBy); ok {
			return clause.OrderByColumn{Column: column(f), Desc: !ascending}
		}
		b.logger.WarnContext(ctx, "ordering skipped: unknown property",
			slog.String("entity", b.fields.Entity()),
			slog.String("property", orderBy),
		)
	}
	return b.DefaultOrder()
}

// DefaultOrder is created_at DESC.
func (b *Builder) DefaultOrder() clause.OrderByColumn {
	return clause.OrderByColumn{
		Column: clause.Column{Table: clause.CurrentTable, Name: b.fields.Column("CreatedAt")},
		Desc:   true,
	}
}

// Where joins the non-nil expressions into one WHERE clause with AND.
func Where(exprs ...clause.Expression) (clause.Where, bool) {
	w := clause.Where{Exprs: make([]clause.Expression, 0, len(exprs))}
	for _, e := range exprs {
		if e == nil {
			continue
		}
		// GORM joins a lone OR condition to its siblings with OR; unwrap it.
		if or, ok := e.(clause.OrConditions); ok && len(or.Exprs) == 1 {
			e = or.Exprs[0]
		}
		w.Exprs = append(w.Exprs, e)
	}
	return w, len(w.Exprs) > 0
}
