//go:build integration

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap/zaptest"

	"github.com/Limetric/schemacrawl/internal/catalog"
	"github.com/Limetric/schemacrawl/internal/connection"
	"github.com/Limetric/schemacrawl/internal/crawl"
	"github.com/Limetric/schemacrawl/internal/filter"
)

func crawlSource(t *testing.T, sourceType, dsn string, creds connection.Credentials, opts *crawl.Options) *crawl.Result {
	t.Helper()
	d, err := crawl.NewDialect(sourceType)
	if err != nil {
		t.Fatal(err)
	}
	open := func(user, password string) (*sql.DB, error) { return d.OpenDB(dsn, user, password) }
	source := connection.New(open, creds, connection.Options{MaxConnections: opts.Workers + 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := crawl.Crawl(ctx, d, source, opts, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("crawl %s: %v", sourceType, err)
	}
	return res
}

func mustTable(t *testing.T, cat *catalog.Catalog, schema, name string) *catalog.Table {
	t.Helper()
	tbl, ok := cat.LookupTable(catalog.TableName{Schema: schema, Name: name})
	if !ok {
		t.Fatalf("table %s.%s not crawled", schema, name)
	}
	return tbl
}

func assertOrder(t *testing.T, ordering catalog.Ordering, names ...string) {
	t.Helper()
	pos := make(map[string]int, len(ordering.Tables))
	for i, tbl := range ordering.Tables {
		pos[tbl.FullName()] = i
	}
	for i := 1; i < len(names); i++ {
		a, aok := pos[names[i-1]]
		b, bok := pos[names[i]]
		if !aok || !bok || a >= b {
			t.Errorf("expected %s before %s in %v", names[i-1], names[i], ordering.Tables)
		}
	}
}

func TestIntegration_MySQL(t *testing.T) {
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		t.Skip("MYSQL_DSN env var required")
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	defer db.Close()
	seedMySQL(t, db)

	dbName := mysqlDBName(t, mysqlDSN)
	opts := crawl.DefaultOptions()
	opts.InfoLevel = crawl.Maximum
	opts.Workers = 2
	res := crawlSource(t, "mysql", mysqlDSN, connection.NewMultiUseCredentials("", ""), opts)

	assertOrder(t, res.Ordering, dbName+".users", dbName+".posts", dbName+".comments")
	if res.Ordering.Cyclic {
		t.Errorf("ordering reported a cycle")
	}

	comments := mustTable(t, res.Catalog, dbName, "comments")
	if got := len(comments.ImportedForeignKeys()); got != 2 {
		t.Errorf("comments has %d foreign keys, want 2", got)
	}
	users := mustTable(t, res.Catalog, dbName, "users")
	if got := len(users.ExportedForeignKeys()); got != 2 {
		t.Errorf("users is referenced by %d foreign keys, want 2", got)
	}
	id, ok := users.Column("id", catalog.CaseSensitive)
	if !ok || !id.AutoIncrement || !id.PartOfPrimaryKey {
		t.Errorf("users.id = %+v, want auto-increment primary key column", id)
	}
	status, ok := mustTable(t, res.Catalog, dbName, "posts").Column("status", catalog.CaseSensitive)
	if !ok || strings.Join(status.DataType.EnumValues, ",") != "draft,published" {
		t.Errorf("posts.status = %+v, want enum values draft,published", status)
	}
	view := mustTable(t, res.Catalog, dbName, "published_posts")
	if !view.IsView() || view.Definition == "" {
		t.Errorf("published_posts: view %t, definition %q", view.IsView(), view.Definition)
	}
}

func TestIntegration_MySQLReadOnlyUser(t *testing.T) {
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		t.Skip("MYSQL_DSN env var required")
	}

	ctx := context.Background()
	admin, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Fatalf("open mysql admin connection: %v", err)
	}
	defer admin.Close()
	seedMySQL(t, admin)

	dbName := mysqlDBName(t, mysqlDSN)
	roUser := fmt.Sprintf("schemacrawl_ro_%d", time.Now().UnixNano()%1_000_000)
	roPass := "schemacrawl_ro_pw"
	if err := createReadOnlyMySQLUser(ctx, admin, dbName, roUser, roPass); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "access denied") {
			t.Skipf("skipping read-only user test: insufficient MySQL privileges to create users (%v)", err)
		}
		t.Fatalf("create read-only user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), fmt.Sprintf("DROP USER IF EXISTS '%s'@'%%'", roUser))
	})

	// Credentials from config override the ones embedded in the DSN.
	opts := crawl.DefaultOptions()
	res := crawlSource(t, "mysql", mysqlDSN, connection.NewSingleUseCredentials(roUser, roPass), opts)

	if res.Catalog.Info == nil || !strings.HasPrefix(res.Catalog.Info.UserName, roUser+"@") {
		t.Errorf("crawled as %+v, want %s", res.Catalog.Info, roUser)
	}
	assertOrder(t, res.Ordering, dbName+".users", dbName+".posts", dbName+".comments")
}

func TestIntegration_Postgres(t *testing.T) {
	pgDSN := os.Getenv("POSTGRES_DSN")
	if pgDSN == "" {
		t.Skip("POSTGRES_DSN env var required")
	}

	const schema = "inttest_crawl"
	db, err := sql.Open("pgx", pgDSN)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()
	seedPostgres(t, db, schema)
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
	})

	opts := crawl.DefaultOptions()
	opts.InfoLevel = crawl.Maximum
	opts.Workers = 2
	opts.Schemas, err = filter.NewRegularExpressionRule(schema, "")
	if err != nil {
		t.Fatal(err)
	}
	res := crawlSource(t, "postgres", pgDSN, connection.NewMultiUseCredentials("", ""), opts)

	if got := len(res.Catalog.Schemas()); got != 1 {
		t.Errorf("crawled %d schemas, want 1", got)
	}
	assertOrder(t, res.Ordering, schema+".customers", schema+".orders", schema+".order_items")

	orders := mustTable(t, res.Catalog, schema, "orders")
	if orders.Remarks != "customer orders" {
		t.Errorf("orders remarks = %q", orders.Remarks)
	}
	status, ok := orders.Column("status", catalog.CaseSensitive)
	if !ok || status.DataType == nil || !status.DataType.UserDefined ||
		strings.Join(status.DataType.EnumValues, ",") != "open,shipped" {
		t.Errorf("orders.status data type = %+v", status)
	}
	if len(res.Catalog.Sequences()) == 0 {
		t.Errorf("no sequences crawled")
	}
	var routine *catalog.Routine
	for _, r := range res.Catalog.Routines() {
		if r.Name == "order_total" {
			routine = r
		}
	}
	if routine == nil || routine.RoutineKind != catalog.Function || len(routine.Parameters) == 0 {
		t.Errorf("order_total routine = %+v", routine)
	}
	if len(orders.Triggers()) != 1 {
		t.Errorf("orders has %d triggers, want 1", len(orders.Triggers()))
	}
}

func seedMySQL(t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		"DROP VIEW IF EXISTS published_posts",
		"DROP TABLE IF EXISTS comments",
		"DROP TABLE IF EXISTS posts",
		"DROP TABLE IF EXISTS users",

		`CREATE TABLE users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(200) NULL COMMENT 'contact address'
		)`,
		`CREATE TABLE posts (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			title VARCHAR(200) NOT NULL,
			status ENUM('draft','published') NOT NULL DEFAULT 'draft',
			FOREIGN KEY (user_id) REFERENCES users(id),
			INDEX idx_posts_title (title)
		)`,
		`CREATE TABLE comments (
			id INT AUTO_INCREMENT PRIMARY KEY,
			post_id INT NOT NULL,
			user_id INT NOT NULL,
			content TEXT,
			FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		"CREATE VIEW published_posts AS SELECT id, title FROM posts WHERE status = 'published'",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed mysql: %v\nSQL: %s", err, stmt)
		}
	}
}

func seedPostgres(t *testing.T, db *sql.DB, schema string) {
	t.Helper()

	stmts := []string{
		"DROP SCHEMA IF EXISTS " + schema + " CASCADE",
		"CREATE SCHEMA " + schema,
		"SET search_path TO " + schema,
		"CREATE TYPE order_status AS ENUM ('open', 'shipped')",
		"CREATE SEQUENCE invoice_seq START 100",
		`CREATE TABLE customers (id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY, email text NOT NULL)`,
		`CREATE TABLE orders (
			id bigserial PRIMARY KEY,
			customer_id bigint NOT NULL REFERENCES customers(id),
			status order_status NOT NULL DEFAULT 'open'
		)`,
		"COMMENT ON TABLE orders IS 'customer orders'",
		`CREATE TABLE order_items (
			order_id bigint NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			sku text NOT NULL,
			qty integer NOT NULL,
			PRIMARY KEY (order_id, sku)
		)`,
		`CREATE FUNCTION order_total(p_order bigint) RETURNS bigint LANGUAGE sql AS
			'SELECT COALESCE(SUM(qty), 0) FROM order_items WHERE order_id = p_order'`,
		`CREATE FUNCTION touch_order() RETURNS trigger LANGUAGE plpgsql AS
			'BEGIN RETURN NEW; END'`,
		`CREATE TRIGGER trg_orders BEFORE INSERT OR UPDATE ON orders
			FOR EACH ROW EXECUTE FUNCTION touch_order()`,
	}
	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("postgres conn: %v", err)
	}
	defer conn.Close()
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("seed postgres: %v\nSQL: %s", err, stmt)
		}
	}
}

func mysqlDBName(t *testing.T, dsn string) string {
	t.Helper()
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if cfg.DBName == "" {
		t.Fatal("MYSQL_DSN must name a database")
	}
	return cfg.DBName
}

func createReadOnlyMySQLUser(ctx context.Context, db *sql.DB, dbName, user, password string) error {
	stmts := []string{
		fmt.Sprintf("DROP USER IF EXISTS '%s'@'%%'", user),
		fmt.Sprintf("CREATE USER '%s'@'%%' IDENTIFIED BY '%s'", user, password),
		fmt.Sprintf("GRANT SELECT, SHOW VIEW ON `%s`.* TO '%s'@'%%'", dbName, user),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
