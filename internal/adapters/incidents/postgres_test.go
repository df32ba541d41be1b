package incidents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewPostgresStore(db, NewMapper(Mapping{}), "system@fixsmart.dev")
	store.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }
	return store, mock
}

func expectSystemUser(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT id FROM users WHERE email = \$1`).
		WithArgs("system@fixsmart.dev").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1"))
}

func TestLatestFaultWithIncident(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT f\.id, c\.complaint_id, c\.status FROM fault_sync f`).
		WithArgs("101", "Tag16").
		WillReturnRows(sqlmock.NewRows([]string{"id", "complaint_id", "status"}).
			AddRow(int64(42), "KSC0042", "IN_PROGRESS"))

	rec, err := store.LatestFault(context.Background(), "101", "Tag16")
	if err != nil {
		t.Fatalf("latest fault: %v", err)
	}
	if rec == nil || rec.ID != 42 || rec.Incident == nil {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Incident.ID != "KSC0042" || rec.Incident.Status != "IN_PROGRESS" {
		t.Fatalf("incident = %+v", rec.Incident)
	}
}

func TestLatestFaultNoHistory(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT f\.id, c\.complaint_id, c\.status FROM fault_sync f`).
		WithArgs("101", "Tag16").
		WillReturnRows(sqlmock.NewRows([]string{"id", "complaint_id", "status"}))

	rec, err := store.LatestFault(context.Background(), "101", "Tag16")
	if err != nil {
		t.Fatalf("latest fault: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestLatestFaultWithoutComplaint(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT f\.id, c\.complaint_id, c\.status FROM fault_sync f`).
		WithArgs("101", "Tag16").
		WillReturnRows(sqlmock.NewRows([]string{"id", "complaint_id", "status"}).
			AddRow(int64(42), nil, nil))

	rec, err := store.LatestFault(context.Background(), "101", "Tag16")
	if err != nil {
		t.Fatalf("latest fault: %v", err)
	}
	if rec == nil || rec.Incident != nil {
		t.Fatalf("fault without complaint must carry no incident, got %+v", rec)
	}
}

func TestPersistRunsOneTransaction(t *testing.T) {
	store, mock := newTestStore(t)
	c := candidate()

	expectSystemUser(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO fault_sync`).
		WithArgs("101", "Tag16", "0", c.EventTime, "UNIFIED").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(`SELECT id, name, sla_hours FROM complaint_types`).
		WithArgs("Street Lighting").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "sla_hours"}).
			AddRow(int64(3), "Street Lighting", int64(24)))
	mock.ExpectQuery(`SELECT key, value FROM system_config`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("COMPLAINT_ID_PREFIX", "KSC").
			AddRow("COMPLAINT_ID_LENGTH", "4"))
	mock.ExpectQuery(`SELECT complaint_id FROM complaints WHERE complaint_id LIKE \$1`).
		WithArgs("KSC%").
		WillReturnRows(sqlmock.NewRows([]string{"complaint_id"}).AddRow("KSC0041"))
	mock.ExpectExec(`INSERT INTO complaints`).
		WithArgs(sqlmock.AnyArg(), "KSC0042", int64(3), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"Street Lighting", "REGISTERED", "MEDIUM", "ON_TIME", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"System Agent", "9876543210", "system@fixsmart.dev", false, "user-1", int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO status_logs`).
		WithArgs("KSC0042", "user-1", "REGISTERED", "Automated fault registration").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, err := store.Persist(context.Background(), c)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if id != "KSC0042" {
		t.Fatalf("complaint id = %q, want KSC0042", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPersistFirstComplaintUsesStartNumber(t *testing.T) {
	store, mock := newTestStore(t)

	expectSystemUser(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO fault_sync`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT id, name, sla_hours FROM complaint_types`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "sla_hours"}))
	mock.ExpectQuery(`SELECT key, value FROM system_config`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("COMPLAINT_ID_PREFIX", "GRV").
			AddRow("COMPLAINT_ID_START_NUMBER", "100").
			AddRow("COMPLAINT_ID_LENGTH", "6"))
	mock.ExpectQuery(`SELECT complaint_id FROM complaints WHERE complaint_id LIKE \$1`).
		WithArgs("GRV%").
		WillReturnRows(sqlmock.NewRows([]string{"complaint_id"}))
	mock.ExpectExec(`INSERT INTO complaints`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO status_logs`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, err := store.Persist(context.Background(), candidate())
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if id != "GRV000100" {
		t.Fatalf("complaint id = %q, want GRV000100", id)
	}
}

func TestPersistRollsBackOnFailure(t *testing.T) {
	store, mock := newTestStore(t)

	expectSystemUser(mock)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO fault_sync`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := store.Persist(context.Background(), candidate()); err == nil {
		t.Fatal("expected the insert failure surfaced")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSystemUserIsCached(t *testing.T) {
	store, mock := newTestStore(t)
	expectSystemUser(mock)

	if _, err := store.systemUser(context.Background()); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	// Second call must not issue a query.
	id, err := store.systemUser(context.Background())
	if err != nil || id != "user-1" {
		t.Fatalf("cached lookup: %q %v", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSystemUserMissingIsAnError(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT id FROM users WHERE email = \$1`).
		WithArgs("system@fixsmart.dev").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.systemUser(context.Background()); err == nil {
		t.Fatal("missing system user must fail persistence")
	}
}
