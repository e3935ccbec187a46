package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const defaultTestDSN = "root:root@tcp(localhost:3306)/roomstay_test?charset=utf8mb4&parseTime=true&loc=UTC"

var testTables = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		recipient_name VARCHAR(100) NOT NULL,
		recipient_phone VARCHAR(30) NOT NULL,
		adult_num INT NOT NULL,
		children_num INT NOT NULL DEFAULT 0,
		check_in_date DATE NOT NULL,
		check_out_date DATE NOT NULL,
		total_price BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		cancel_reason VARCHAR(255) NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT UNSIGNED NOT NULL,
		payment_key VARCHAR(200) NOT NULL,
		method VARCHAR(50) NOT NULL,
		amount BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL,
		requested_at DATETIME NOT NULL,
		approved_at DATETIME NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// testDB connects to the integration-test database and prepares the
// tables the repositories under test touch.  The tests are skipped
// when no MySQL instance is reachable.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = defaultTestDSN
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("skipping MySQL integration tests: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, ddl := range testTables {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	for _, tbl := range []string{"payments", "orders", "refresh_tokens"} {
		if _, err := db.Exec("TRUNCATE TABLE " + tbl); err != nil {
			t.Fatalf("truncate %s: %v", tbl, err)
		}
	}
	return db
}

func insertTestOrder(t *testing.T, db *sql.DB, status string) uint64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO orders
		(user_id, recipient_name, recipient_phone, adult_num, children_num,
		 check_in_date, check_out_date, total_price, status)
		VALUES (7, '홍길동', '010-1234-5678', 2, 0, '2026-03-10', '2026-03-12', 400, ?)`,
		status)
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return uint64(id)
}

func orderStatus(t *testing.T, db *sql.DB, id uint64) string {
	t.Helper()
	var status string
	if err := db.QueryRow("SELECT status FROM orders WHERE id = ?", id).Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	return status
}
