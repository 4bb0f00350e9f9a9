package sqlite

import (
	"context"
	"database/sql"

	"github.com/salewatch/salewatch/internal/types"
)

// UpsertLookups writes reference entities with INSERT OR IGNORE: lookups are
// global across credentials and the first-seen name for a key wins, so
// concurrent writers never fight over the same row.
func (s *Store) UpsertLookups(ctx context.Context, set *types.LookupSet) error {
	if set == nil || set.Empty() {
		return nil
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		for table, m := range map[string]map[int64]string{
			"apps":       set.Apps,
			"packages":   set.Packages,
			"bundles":    set.Bundles,
			"partners":   set.Partners,
			"game_items": set.GameItems,
		} {
			for id, name := range m {
				_, err := conn.ExecContext(ctx,
					"INSERT OR IGNORE INTO "+table+" (id, name) VALUES (?, ?)", id, name)
				if err != nil {
					return wrapDBError("upsert "+table, err)
				}
			}
		}
		for code, c := range set.Countries {
			_, err := conn.ExecContext(ctx,
				"INSERT OR IGNORE INTO countries (code, name, region) VALUES (?, ?, ?)",
				code, c.Name, c.Region)
			if err != nil {
				return wrapDBError("upsert countries", err)
			}
		}
		for id, d := range set.Discounts {
			_, err := conn.ExecContext(ctx,
				"INSERT OR IGNORE INTO discounts (id, name, percentage) VALUES (?, ?, ?)",
				id, d.Name, d.Percentage)
			if err != nil {
				return wrapDBError("upsert discounts", err)
			}
		}
		return nil
	})
}
