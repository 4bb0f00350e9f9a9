package mysql

// schemaStatements is the MySQL schema, one statement per entry because
// go-sql-driver executes a single statement per Exec by default. Secondary
// indexes are declared inline since MySQL has no CREATE INDEX IF NOT EXISTS.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS credentials (
		id            VARCHAR(64) PRIMARY KEY,
		display_name  VARCHAR(255) NOT NULL DEFAULT '',
		key_hash      VARCHAR(16) NOT NULL DEFAULT '',
		encrypted_key TEXT NOT NULL,
		created_at    DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS sync_state (
		api_key_id    VARCHAR(64) PRIMARY KEY,
		highwatermark BIGINT UNSIGNED NOT NULL DEFAULT 0,
		last_sync_at  DATETIME(6),
		CONSTRAINT fk_sync_state_credential
			FOREIGN KEY (api_key_id) REFERENCES credentials(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS changed_dates_queries (
		id                BIGINT PRIMARY KEY AUTO_INCREMENT,
		api_key_id        VARCHAR(64) NOT NULL,
		highwatermark_in  BIGINT UNSIGNED NOT NULL DEFAULT 0,
		highwatermark_out BIGINT UNSIGNED NOT NULL DEFAULT 0,
		dates_found       INT NOT NULL DEFAULT 0,
		note              VARCHAR(255) NOT NULL DEFAULT '',
		created_at        DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		KEY idx_changed_dates_queries_key (api_key_id, created_at),
		CONSTRAINT fk_cdq_credential
			FOREIGN KEY (api_key_id) REFERENCES credentials(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS sync_tasks (
		id           BIGINT PRIMARY KEY AUTO_INCREMENT,
		api_key_id   VARCHAR(64) NOT NULL,
		date         CHAR(10) NOT NULL,
		status       ENUM('pending', 'in_progress', 'completed', 'failed') NOT NULL DEFAULT 'pending',
		error        TEXT,
		created_at   DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		started_at   DATETIME(6),
		completed_at DATETIME(6),
		UNIQUE KEY uq_sync_tasks_key_date (api_key_id, date),
		KEY idx_sync_tasks_status (api_key_id, status),
		CONSTRAINT fk_sync_tasks_credential
			FOREIGN KEY (api_key_id) REFERENCES credentials(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS sales_records (
		id                    BIGINT PRIMARY KEY AUTO_INCREMENT,
		api_key_id            VARCHAR(64) NOT NULL,
		date                  CHAR(10) NOT NULL,
		line_item_type        VARCHAR(32) NOT NULL DEFAULT '',
		app_id                BIGINT,
		package_id            BIGINT,
		bundle_id             BIGINT,
		partner_id            BIGINT,
		game_item_id          BIGINT,
		country_code          VARCHAR(8) NOT NULL DEFAULT '',
		platform              VARCHAR(32) NOT NULL DEFAULT '',
		currency              VARCHAR(8) NOT NULL DEFAULT '',
		base_price            BIGINT,
		sale_price            BIGINT,
		avg_sale_price_usd    BIGINT NOT NULL DEFAULT 0,
		gross_sales_usd       BIGINT NOT NULL DEFAULT 0,
		gross_returns_usd     BIGINT NOT NULL DEFAULT 0,
		net_sales_usd         BIGINT NOT NULL DEFAULT 0,
		net_tax_usd           BIGINT NOT NULL DEFAULT 0,
		gross_units_sold      BIGINT NOT NULL DEFAULT 0,
		gross_units_returned  BIGINT NOT NULL DEFAULT 0,
		gross_units_activated BIGINT NOT NULL DEFAULT 0,
		net_units_sold        BIGINT NOT NULL DEFAULT 0,
		discount_id           BIGINT,
		discount_percentage   BIGINT,
		created_at            DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		KEY idx_sales_records_date (date),
		KEY idx_sales_records_key_date (api_key_id, date),
		KEY idx_sales_records_app (app_id),
		KEY idx_sales_records_country (country_code),
		KEY idx_sales_records_date_revenue (date, gross_sales_usd, net_units_sold),
		CONSTRAINT fk_sales_records_credential
			FOREIGN KEY (api_key_id) REFERENCES credentials(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS apps (
		id   BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS packages (
		id   BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS bundles (
		id   BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS partners (
		id   BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS game_items (
		id   BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS countries (
		code   VARCHAR(8) PRIMARY KEY,
		name   VARCHAR(255) NOT NULL DEFAULT '',
		region VARCHAR(64) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS discounts (
		id         BIGINT PRIMARY KEY,
		name       VARCHAR(255) NOT NULL DEFAULT '',
		percentage BIGINT
	) ENGINE=InnoDB`,
}
