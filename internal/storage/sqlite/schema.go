package sqlite

// schema defines the SQLite database schema.
//
// All child tables reference credentials(id) with ON DELETE CASCADE, so
// deleting a credential removes its sync state, audit rows, tasks, and
// sales records in one statement. Cascades require foreign_keys=ON, which
// the connection string enforces.
const schema = `
CREATE TABLE IF NOT EXISTS credentials (
    id            TEXT PRIMARY KEY,
    display_name  TEXT NOT NULL DEFAULT '',
    key_hash      TEXT NOT NULL DEFAULT '',
    encrypted_key TEXT NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_state (
    api_key_id    TEXT PRIMARY KEY,
    highwatermark INTEGER NOT NULL DEFAULT 0,
    last_sync_at  DATETIME,
    FOREIGN KEY (api_key_id) REFERENCES credentials(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS changed_dates_queries (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    api_key_id        TEXT NOT NULL,
    highwatermark_in  INTEGER NOT NULL DEFAULT 0,
    highwatermark_out INTEGER NOT NULL DEFAULT 0,
    dates_found       INTEGER NOT NULL DEFAULT 0,
    note              TEXT NOT NULL DEFAULT '',
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (api_key_id) REFERENCES credentials(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_changed_dates_queries_key
    ON changed_dates_queries(api_key_id, created_at);

CREATE TABLE IF NOT EXISTS sync_tasks (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    api_key_id   TEXT NOT NULL,
    date         TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending'
                 CHECK (status IN ('pending', 'in_progress', 'completed', 'failed')),
    error        TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    started_at   DATETIME,
    completed_at DATETIME,
    UNIQUE (api_key_id, date),
    FOREIGN KEY (api_key_id) REFERENCES credentials(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sync_tasks_status ON sync_tasks(api_key_id, status);

CREATE TABLE IF NOT EXISTS sales_records (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    api_key_id            TEXT NOT NULL,
    date                  TEXT NOT NULL,
    line_item_type        TEXT NOT NULL DEFAULT '',
    app_id                INTEGER,
    package_id            INTEGER,
    bundle_id             INTEGER,
    partner_id            INTEGER,
    game_item_id          INTEGER,
    country_code          TEXT NOT NULL DEFAULT '',
    platform              TEXT NOT NULL DEFAULT '',
    currency              TEXT NOT NULL DEFAULT '',
    base_price            INTEGER,
    sale_price            INTEGER,
    avg_sale_price_usd    INTEGER NOT NULL DEFAULT 0,
    gross_sales_usd       INTEGER NOT NULL DEFAULT 0,
    gross_returns_usd     INTEGER NOT NULL DEFAULT 0,
    net_sales_usd         INTEGER NOT NULL DEFAULT 0,
    net_tax_usd           INTEGER NOT NULL DEFAULT 0,
    gross_units_sold      INTEGER NOT NULL DEFAULT 0,
    gross_units_returned  INTEGER NOT NULL DEFAULT 0,
    gross_units_activated INTEGER NOT NULL DEFAULT 0,
    net_units_sold        INTEGER NOT NULL DEFAULT 0,
    discount_id           INTEGER,
    discount_percentage   INTEGER,
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (api_key_id) REFERENCES credentials(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sales_records_date ON sales_records(date);
CREATE INDEX IF NOT EXISTS idx_sales_records_key_date ON sales_records(api_key_id, date);
CREATE INDEX IF NOT EXISTS idx_sales_records_app ON sales_records(app_id);
CREATE INDEX IF NOT EXISTS idx_sales_records_country ON sales_records(country_code);
-- Covering index for revenue rollups by date.
CREATE INDEX IF NOT EXISTS idx_sales_records_date_revenue
    ON sales_records(date, gross_sales_usd, net_units_sold);

CREATE TABLE IF NOT EXISTS apps (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS packages (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bundles (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS partners (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS game_items (
    id   INTEGER PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS countries (
    code   TEXT PRIMARY KEY,
    name   TEXT NOT NULL DEFAULT '',
    region TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS discounts (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    percentage INTEGER
);
`
