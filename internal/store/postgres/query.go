package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// listQuery appends the ListOpts time window, newest-first ordering and
// paging to base. tsCol names the timestamp column; id breaks ties.
func listQuery(base, tsCol string, opts domain.ListOpts) (string, []any) {
	var (
		b    strings.Builder
		args []any
		conj = " WHERE "
	)
	b.WriteString(base)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Since != nil {
		b.WriteString(conj + tsCol + " >= " + arg(*opts.Since))
		conj = " AND "
	}
	if opts.Until != nil {
		b.WriteString(conj + tsCol + " <= " + arg(*opts.Until))
	}
	b.WriteString(" ORDER BY " + tsCol + " DESC, id DESC")
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + arg(opts.Offset))
	}
	return b.String(), args
}
