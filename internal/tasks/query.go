package tasks

import (
	"strings"
)

// Ordering is a sort key for task listings, e.g. "-created_at".
type Ordering struct {
	Field string
	Desc  bool
}

var DefaultOrdering = Ordering{Field: "created_at", Desc: true}

// ListQuery narrows and sorts the tasks returned for one owner.
// The zero value lists everything newest first.
type ListQuery struct {
	Search   string
	Ordering Ordering
}

var orderColumns = map[string]string{
	"id":          "id",
	"title":       "title",
	"description": "description",
	"created_at":  "created_at",
}

// ParseOrdering parses a field name with an optional leading "-".
// An empty string yields DefaultOrdering.
func ParseOrdering(s string) (Ordering, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultOrdering, nil
	}

	o := Ordering{Field: s}
	if strings.HasPrefix(s, "-") {
		o = Ordering{Field: s[1:], Desc: true}
	}
	if _, ok := orderColumns[o.Field]; !ok {
		return Ordering{}, invalid("ordering", "unknown ordering field "+o.Field)
	}
	return o, nil
}

func (o Ordering) String() string {
	if o.Desc {
		return "-" + o.Field
	}
	return o.Field
}

func (q ListQuery) ordering() Ordering {
	if q.Ordering.Field == "" {
		return DefaultOrdering
	}
	return q.Ordering
}

// orderBy renders an ORDER BY clause; ties are broken by id in the same direction.
// A non-empty collation is applied to text columns.
func (o Ordering) orderBy(collation string) string {
	col, ok := orderColumns[o.Field]
	if !ok {
		col = "created_at"
	}
	dir := " ASC"
	if o.Desc {
		dir = " DESC"
	}
	if col == "id" {
		return "ORDER BY id" + dir
	}
	if collation != "" && (col == "title" || col == "description") {
		col += " COLLATE " + collation
	}
	return "ORDER BY " + col + dir + ", id" + dir
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring LIKE pattern using '\' as the escape character.
func likePattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}
