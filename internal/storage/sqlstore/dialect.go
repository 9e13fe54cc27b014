package sqlstore

import (
	"database/sql"
	"strconv"
	"strings"
)

// Dialect carries what differs between SQL drivers.
type Dialect struct {
	Name string
	// Rebind rewrites ? placeholders; nil leaves the query unchanged.
	Rebind func(query string) string
	// IsConflict matches driver errors meaning a concurrent transaction won.
	IsConflict func(err error) bool
	// IsUniqueViolation matches unique and primary key violations.
	IsUniqueViolation func(err error) bool
	// TxOptions is passed to BeginTx for every RunTransaction.
	TxOptions *sql.TxOptions
}

func (d Dialect) rebind(query string) string {
	if d.Rebind == nil {
		return query
	}
	return d.Rebind(query)
}

// Dollar rewrites ? placeholders to $1, $2, ... Queries in this package
// never contain a literal question mark.
func Dollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
