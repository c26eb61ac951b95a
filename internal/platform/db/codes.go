package db

import (
	"context"
	"fmt"
)

// LastCode returns the highest document code issued in table, or "" when the
// table is empty. Longer codes sort first so BN10000 ranks above BN9999.
func LastCode(ctx context.Context, q DBTX, table string) (string, error) {
	var code string
	err := q.QueryRow(ctx,
		`SELECT code FROM `+table+` ORDER BY length(code) DESC, code DESC LIMIT 1`,
	).Scan(&code)
	if IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last %s code: %w", table, err)
	}
	return code, nil
}
