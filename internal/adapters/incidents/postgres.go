package incidents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

const defaultSLAHours = 48

// PostgresStore registers fault candidates as complaints in the civic
// grievance schema and answers the deduplication gate's lookups. Every
// Persist runs one transaction: fault log, complaint, status log.
type PostgresStore struct {
	db     *sql.DB
	mapper *Mapper
	email  string
	now    func() time.Time

	mu     sync.Mutex
	userID string
}

func NewPostgresStore(db *sql.DB, mapper *Mapper, systemUserEmail string) *PostgresStore {
	return &PostgresStore{db: db, mapper: mapper, email: systemUserEmail, now: time.Now}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) LatestFault(ctx context.Context, unitID, tag string) (*ports.FaultRecord, error) {
	const query = `SELECT f.id, c.complaint_id, c.status
FROM fault_sync f
LEFT JOIN complaints c ON c.slms_ref = f.id
WHERE f.rtu_number = $1 AND f.tag_no = $2
ORDER BY f.id DESC
LIMIT 1`

	var (
		id          int64
		complaintID sql.NullString
		status      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, unitID, tag).Scan(&id, &complaintID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest fault lookup: %w", err)
	}

	rec := &ports.FaultRecord{ID: id, UnitID: unitID, Tag: tag}
	if complaintID.Valid {
		rec.Incident = &ports.Incident{ID: complaintID.String, Status: status.String}
	}
	return rec, nil
}

func (s *PostgresStore) Persist(ctx context.Context, c domain.FaultCandidate) (string, error) {
	userID, err := s.systemUser(ctx)
	if err != nil {
		return "", err
	}
	d := s.mapper.Render(c)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin persist: %w", err)
	}
	defer tx.Rollback()

	var faultID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO fault_sync (rtu_number, tag_no, tag_value, event_time, source_type)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.UnitID, c.Tag, c.Value, c.EventTime, "UNIFIED",
	).Scan(&faultID)
	if err != nil {
		return "", fmt.Errorf("insert fault log: %w", err)
	}

	typeID, typeName, slaHours, err := s.resolveType(ctx, tx, d.TypeName)
	if err != nil {
		return "", err
	}
	complaintID, err := s.nextComplaintID(ctx, tx)
	if err != nil {
		return "", err
	}

	now := s.now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO complaints (id, complaint_id, complaint_type_id, title, description, type,
status, priority, sla_status, deadline, submitted_on,
contact_name, contact_phone, contact_email, is_anonymous, submitted_by_id, slms_ref, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		uuid.NewString(), complaintID, typeID, d.Title, d.Description, typeName,
		d.Status, d.Priority, "ON_TIME", now.Add(time.Duration(slaHours)*time.Hour), now,
		s.mapper.mapping.ContactName, s.mapper.mapping.ContactPhone, s.mapper.mapping.ContactEmail,
		false, userID, faultID, d.Tags,
	)
	if err != nil {
		return "", fmt.Errorf("insert complaint: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO status_logs (complaint_id, user_id, to_status, comment)
VALUES ($1, $2, $3, $4)`,
		complaintID, userID, d.Status, "Automated fault registration",
	)
	if err != nil {
		return "", fmt.Errorf("insert status log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit persist: %w", err)
	}
	return complaintID, nil
}

// Deliver lets the store serve as the production candidate sink.
func (s *PostgresStore) Deliver(ctx context.Context, c domain.FaultCandidate) (string, error) {
	return s.Persist(ctx, c)
}

// resolveType looks the complaint type up by name. An unknown name is
// not an error: the complaint keeps the configured name with no type
// link and the default SLA.
func (s *PostgresStore) resolveType(ctx context.Context, tx *sql.Tx, name string) (sql.NullInt64, string, int, error) {
	var (
		id  int64
		dbN string
		sla sql.NullInt64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, name, sla_hours FROM complaint_types WHERE name = $1 LIMIT 1`, name,
	).Scan(&id, &dbN, &sla)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullInt64{}, name, defaultSLAHours, nil
	}
	if err != nil {
		return sql.NullInt64{}, "", 0, fmt.Errorf("resolve complaint type: %w", err)
	}

	hours := defaultSLAHours
	if sla.Valid && sla.Int64 > 0 {
		hours = int(sla.Int64)
	}
	return sql.NullInt64{Int64: id, Valid: true}, dbN, hours, nil
}

// nextComplaintID produces the next sequential public identifier,
// prefix and padding driven by system_config.
func (s *PostgresStore) nextComplaintID(ctx context.Context, tx *sql.Tx) (string, error) {
	prefix, start, length := "KSC", 1, 4

	rows, err := tx.QueryContext(ctx,
		`SELECT key, value FROM system_config
WHERE key IN ('COMPLAINT_ID_PREFIX', 'COMPLAINT_ID_START_NUMBER', 'COMPLAINT_ID_LENGTH')`)
	if err != nil {
		return "", fmt.Errorf("id settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return "", err
		}
		switch key {
		case "COMPLAINT_ID_PREFIX":
			if value != "" {
				prefix = value
			}
		case "COMPLAINT_ID_START_NUMBER":
			if n, err := strconv.Atoi(value); err == nil {
				start = n
			}
		case "COMPLAINT_ID_LENGTH":
			if n, err := strconv.Atoi(value); err == nil {
				length = n
			}
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	var last sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT complaint_id FROM complaints WHERE complaint_id LIKE $1 ORDER BY complaint_id DESC LIMIT 1`,
		prefix+"%",
	).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("last complaint id: %w", err)
	}

	next := start
	if last.Valid {
		if n, err := strconv.Atoi(strings.TrimPrefix(last.String, prefix)); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, length, next), nil
}

// systemUser resolves and caches the automation account's id.
func (s *PostgresStore) systemUser(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" {
		return s.userID, nil
	}
	if s.email == "" {
		return "", errors.New("system user email not configured")
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE email = $1 LIMIT 1`, strings.TrimSpace(s.email),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("system user not found for %s", s.email)
	}
	if err != nil {
		return "", fmt.Errorf("system user lookup: %w", err)
	}
	s.userID = id
	return id, nil
}

var (
	_ ports.IncidentStore = (*PostgresStore)(nil)
	_ ports.CandidateSink = (*PostgresStore)(nil)
)
