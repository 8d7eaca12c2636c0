package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/fundfolio/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateTransactionsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		fund_id TEXT NOT NULL,
		isin TEXT NOT NULL,
		date TEXT NOT NULL,
		seq INTEGER NOT NULL,
		side TEXT NOT NULL,
		volume REAL NOT NULL,
		price REAL NOT NULL,
		factor REAL NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_stream
		ON transactions(user_id, fund_id, isin, date, seq);

	CREATE TABLE IF NOT EXISTS annotated_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		fund_id TEXT NOT NULL,
		isin TEXT NOT NULL,
		date TEXT NOT NULL,
		seq INTEGER NOT NULL,
		side TEXT NOT NULL,
		volume REAL NOT NULL,
		price REAL NOT NULL,
		factor REAL NOT NULL,
		corrected_volume REAL NOT NULL,
		position REAL NOT NULL,
		profit REAL NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS daily_holdings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		fund_id TEXT NOT NULL,
		isin TEXT NOT NULL,
		date TEXT NOT NULL,
		volume_sum REAL NOT NULL,
		transaction_count INTEGER NOT NULL,
		mean_price REAL NOT NULL,
		mean_factor REAL NOT NULL,
		position REAL NOT NULL,
		corrected_volume_sum REAL NOT NULL,
		profit_sum REAL NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_daily_holdings_group
		ON daily_holdings(user_id, fund_id, isin, date);

	CREATE TABLE IF NOT EXISTS processing_faults (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		fund_id TEXT NOT NULL,
		isin TEXT NOT NULL,
		date TEXT,
		reason TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateTransactionsTable adds columns introduced after the first schema
// version to existing transactions tables.
func migrateTransactionsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			// Table will be created with the full schema.
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'transactions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'transactions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'transactions'", "error", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'transactions'", "error", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'transactions'", "error", err)
		}
		return
	}

	if _, ok := columnExists["seq"]; !ok {
		if _, err := DB.Exec("ALTER TABLE transactions ADD COLUMN seq INTEGER NOT NULL DEFAULT 1"); err != nil {
			logger.L.Error("Error adding 'seq' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'seq' column to 'transactions' table")
		}
	}
	if _, ok := columnExists["factor"]; !ok {
		if _, err := DB.Exec("ALTER TABLE transactions ADD COLUMN factor REAL NOT NULL DEFAULT 1"); err != nil {
			logger.L.Error("Error adding 'factor' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'factor' column to 'transactions' table")
		}
	}
}
