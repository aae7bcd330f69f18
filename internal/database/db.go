package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect は接続先データベースの種類を表す。
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// sqlitePragmas はSQLite接続時に毎回適用するPRAGMA。
// 外部キー制約はSQLiteでは接続ごとに有効化が必要。
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"

// DetectDialect はデータベースURLのスキームからDialectを判定する。
func DetectDialect(databaseURL string) (Dialect, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme: %q", schemeOf(databaseURL))
	}
}

// Open はデータベースURLに応じた接続を開く。
//   - postgres:// または postgresql:// はlib/pqを使用する
//   - sqlite://<path> はmodernc.org/sqliteを使用する
//
// sqlx.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(databaseURL string) (*sqlx.DB, error) {
	dialect, err := DetectDialect(databaseURL)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectSQLite:
		db, err := sqlx.Open("sqlite", sqliteDSN(databaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// SQLiteは単一ライターのため接続を1本に絞る
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		db, err := sqlx.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil
	}
}

// sqliteDSN は sqlite://<path>[?query] をmodernc.org/sqlite用のDSNに変換する。
func sqliteDSN(databaseURL string) string {
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	if strings.Contains(path, "?") {
		return path + "&" + sqlitePragmas
	}
	return path + "?" + sqlitePragmas
}

func schemeOf(databaseURL string) string {
	if i := strings.Index(databaseURL, "://"); i > 0 {
		return databaseURL[:i]
	}
	return ""
}
