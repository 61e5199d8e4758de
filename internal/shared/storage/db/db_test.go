package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"
)

type nopDriver struct{}

func (d nopDriver) Open(name string) (driver.Conn, error) {
	return nopConn{}, nil
}

type nopConn struct{}

func (nopConn) Prepare(query string) (driver.Stmt, error) { return nopStmt{}, nil }
func (nopConn) Close() error                              { return nil }
func (nopConn) Begin() (driver.Tx, error)                 { return nopTx{}, nil }
func (nopConn) Ping(ctx context.Context) error            { return nil }

type nopStmt struct{}

func (nopStmt) Close() error                                    { return nil }
func (nopStmt) NumInput() int                                   { return -1 }
func (nopStmt) Exec(args []driver.Value) (driver.Result, error) { return nopResult{}, nil }
func (nopStmt) Query(args []driver.Value) (driver.Rows, error)  { return nopRows{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

type nopResult struct{}

func (nopResult) LastInsertId() (int64, error) { return 0, nil }
func (nopResult) RowsAffected() (int64, error) { return 0, nil }

type nopRows struct{}

func (nopRows) Columns() []string              { return []string{} }
func (nopRows) Close() error                   { return nil }
func (nopRows) Next(dest []driver.Value) error { return driver.ErrBadConn }

var registerTestDriverOnce sync.Once

func ensureTestDriverRegistered() {
	registerTestDriverOnce.Do(func() {
		sql.Register("dbtest", nopDriver{})
	})
}

func withTestDriver(t *testing.T) func() {
	t.Helper()
	ensureTestDriverRegistered()
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		return sql.Open("dbtest", dsn)
	}
	return func() {
		openDB = prev
	}
}

func resetShared(t *testing.T) {
	t.Helper()
	sharedMu.Lock()
	shared = nil
	sharedMu.Unlock()
	t.Cleanup(func() {
		sharedMu.Lock()
		shared = nil
		sharedMu.Unlock()
	})
}

func TestSharedReturnsSamePointer(t *testing.T) {
	restore := withTestDriver(t)
	defer restore()
	resetShared(t)

	db1, err := Shared(context.Background(), "ignored", DefaultOptions(ProfileLambda))
	if err != nil {
		t.Fatalf("Shared first: %v", err)
	}
	db2, err := Shared(context.Background(), "ignored", DefaultOptions(ProfileLambda))
	if err != nil {
		t.Fatalf("Shared second: %v", err)
	}
	if db1 != db2 {
		t.Fatalf("expected shared pointers to match")
	}
}

func TestSharedRetriesAfterFailure(t *testing.T) {
	ensureTestDriverRegistered()
	calls := 0
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		calls++
		if calls == 1 {
			return nil, driver.ErrBadConn
		}
		return sql.Open("dbtest", dsn)
	}
	defer func() { openDB = prev }()
	resetShared(t)

	if _, err := Shared(context.Background(), "ignored", DefaultOptions(ProfileLambda)); !errors.Is(err, driver.ErrBadConn) {
		t.Fatalf("expected first call to fail with ErrBadConn, got %v", err)
	}
	conn, err := Shared(context.Background(), "ignored", DefaultOptions(ProfileLambda))
	if err != nil || conn == nil {
		t.Fatalf("expected second call to succeed: %v", err)
	}
}

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(context.Background(), "  ", DefaultOptions(ProfileCLI)); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestDefaultOptionsProfiles(t *testing.T) {
	tests := []struct {
		profile  Profile
		wantOpen int
	}{
		{profile: ProfileCLI, wantOpen: 1},
		{profile: ProfileLambda, wantOpen: 2},
		{profile: ProfileServer, wantOpen: 10},
		{profile: Profile("unknown"), wantOpen: 1},
	}
	for _, tt := range tests {
		if got := DefaultOptions(tt.profile).MaxOpenConns; got != tt.wantOpen {
			t.Fatalf("DefaultOptions(%s).MaxOpenConns = %d, want %d", tt.profile, got, tt.wantOpen)
		}
	}
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	restore := withTestDriver(t)
	defer restore()

	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := OptionsFromEnv(DefaultOptions(ProfileServer))
	conn, err := Connect(context.Background(), "ignored", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if conn.Stats().MaxOpenConnections != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", conn.Stats().MaxOpenConnections)
	}
	want := Options{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetime: 20 * time.Minute, ConnMaxIdleTime: 45 * time.Second, PingTimeout: time.Second}
	if opts != want {
		t.Fatalf("OptionsFromEnv = %+v, want %+v", opts, want)
	}
}

func TestOptionsFromEnvIgnoresInvalid(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("DB_PING_TIMEOUT", "soon")
	defaults := DefaultOptions(ProfileCLI)
	if got := OptionsFromEnv(defaults); got != defaults {
		t.Fatalf("expected defaults kept, got %+v", got)
	}
}
