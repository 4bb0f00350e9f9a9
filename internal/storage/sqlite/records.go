package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/salewatch/salewatch/internal/types"
)

// recordInsertBatch caps rows per multi-row INSERT. 25 columns per row keeps
// this well under SQLite's default 32k variable limit.
const recordInsertBatch = 500

// DeleteRecordsForDates removes every sales record a credential holds for the
// given dates. Runs as a single statement so a re-sync never observes a
// half-deleted date.
func (s *Store) DeleteRecordsForDates(ctx context.Context, apiKeyID string, dates []string) error {
	if len(dates) == 0 {
		return nil
	}
	args := make([]any, 0, len(dates)+1)
	args = append(args, apiKeyID)
	for _, d := range dates {
		args = append(args, d)
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM sales_records WHERE api_key_id = ? AND date IN ("+placeholders(len(dates))+")",
		args...)
	if err != nil {
		return wrapDBError("delete records for dates", err)
	}
	return nil
}

// InsertRecords appends sales records in chunked multi-row inserts, each chunk
// in its own transaction.
func (s *Store) InsertRecords(ctx context.Context, records []*types.SalesRecord) error {
	for len(records) > 0 {
		n := len(records)
		if n > recordInsertBatch {
			n = recordInsertBatch
		}
		if err := s.insertRecordChunk(ctx, records[:n]); err != nil {
			return err
		}
		records = records[n:]
	}
	return nil
}

func (s *Store) insertRecordChunk(ctx context.Context, records []*types.SalesRecord) error {
	const cols = `api_key_id, date, line_item_type,
		app_id, package_id, bundle_id, partner_id, game_item_id,
		country_code, platform, currency,
		base_price, sale_price, avg_sale_price_usd,
		gross_sales_usd, gross_returns_usd, net_sales_usd, net_tax_usd,
		gross_units_sold, gross_units_returned, gross_units_activated, net_units_sold,
		discount_id, discount_percentage, created_at`
	const nCols = 25

	now := time.Now().UTC()
	query := "INSERT INTO sales_records (" + cols + ") VALUES "
	args := make([]any, 0, len(records)*nCols)
	for i, r := range records {
		if i > 0 {
			query += ", "
		}
		query += "(" + placeholders(nCols) + ")"
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		args = append(args,
			r.APIKeyID, r.Date, r.LineItemType,
			r.AppID, r.PackageID, r.BundleID, r.PartnerID, r.GameItemID,
			r.CountryCode, r.Platform, r.Currency,
			r.BasePriceCents, r.SalePriceCents, r.AvgSalePriceUSD,
			r.GrossSalesUSD, r.GrossReturnsUSD, r.NetSalesUSD, r.NetTaxUSD,
			r.GrossUnitsSold, r.GrossUnitsReturned, r.GrossUnitsActivated, r.NetUnitsSold,
			r.DiscountID, r.DiscountPercentage, createdAt)
	}

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return wrapDBError("insert records", err)
		}
		return nil
	})
}

// PurgeRecords deletes a credential's sales records in the inclusive date
// range [fromDate, toDate] and returns the number of rows removed. Empty
// bounds are open-ended.
func (s *Store) PurgeRecords(ctx context.Context, apiKeyID, fromDate, toDate string) (int64, error) {
	for _, d := range []string{fromDate, toDate} {
		if d == "" {
			continue
		}
		if err := types.ValidateDate(d); err != nil {
			return 0, fmt.Errorf("purge records: %w", err)
		}
	}

	query := "DELETE FROM sales_records WHERE api_key_id = ?"
	args := []any{apiKeyID}
	if fromDate != "" {
		query += " AND date >= ?"
		args = append(args, fromDate)
	}
	if toDate != "" {
		query += " AND date <= ?"
		args = append(args, toDate)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapDBError("purge records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("purge records", err)
	}
	return n, nil
}
