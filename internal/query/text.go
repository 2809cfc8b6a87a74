package query

import (
	"strings"

	"gorm.io/gorm/clause"
)

// Text matches records where any text field contains term, ignoring case.
// It returns nil for a blank term or an entity without text fields.
func (b *Builder) Text(term string) clause.Expression {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"

	lower := "LOWER"
	if b.dialect == "sqlite" {
		lower = foldFunc
	}
	cond := `(? IS NOT NULL AND ? <> '' AND ` + lower + `(?) LIKE ? ESCAPE '\')`

	fields := b.fields.TextFields()
	exprs := make([]clause.Expression, 0, len(fields))
	for _, f := range fields {
		col := column(f)
		exprs = append(exprs, clause.Expr{
			SQL:  cond,
			Vars: []any{col, col, col, pattern},
		})
	}

	switch len(exprs) {
	case 0:
		return nil
	case 1:
		// A single-element OR would be joined to sibling conditions with OR.
		return exprs[0]
	}
	return clause.Or(exprs...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
