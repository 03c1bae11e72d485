package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// TimestampLayout 固定宽度的 UTC 时间格式，字典序即时间序
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Open 打开（必要时创建）SQLite 文件并初始化表结构
func Open(dbPath string) (*sqlx.DB, error) {
	dbPath, err := ExpandPath(dbPath)
	if err != nil {
		return nil, err
	}

	// 确保数据目录存在
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("database: create dir %s: %w", dir, err)
		}
	}

	// 添加连接参数：WAL模式、忙等待超时
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping %s: %w", dbPath, err)
	}

	// 限制连接池大小，SQLite 单写多读
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: create tables: %w", err)
	}
	runMigrations(db)

	log.Infof("database: opened %s", dbPath)
	return db, nil
}

func createTables(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		cache_write_tokens INTEGER NOT NULL DEFAULT 0,
		input_cost TEXT NOT NULL DEFAULT '0',
		output_cost TEXT NOT NULL DEFAULT '0',
		total_cost TEXT NOT NULL DEFAULT '0',
		session_id TEXT,
		user_id TEXT,
		tags TEXT NOT NULL DEFAULT '{}',
		is_estimate INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_provider ON usage_records(provider);
	CREATE INDEX IF NOT EXISTS idx_session ON usage_records(session_id);
	CREATE INDEX IF NOT EXISTS idx_user ON usage_records(user_id);
	`
	_, err := db.Exec(schema)
	return err
}

// runMigrations 为旧版本建的表补列，列已存在时忽略错误
func runMigrations(db *sqlx.DB) {
	_, _ = db.Exec(`ALTER TABLE usage_records ADD COLUMN cache_read_cost TEXT NOT NULL DEFAULT '0'`)
	_, _ = db.Exec(`ALTER TABLE usage_records ADD COLUMN cache_write_cost TEXT NOT NULL DEFAULT '0'`)
	_, _ = db.Exec(`ALTER TABLE usage_records ADD COLUMN water_ml TEXT NOT NULL DEFAULT '0'`)
}

// ExpandPath 展开开头的 ~
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("database: resolve home dir: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return p, nil
}
