package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// Config binds a PostgresSource to the telemetry schema. DigitalTags
// and AnalogTags are the tag columns the loaded rules reference; only
// those are selected and expanded into samples.
type Config struct {
	DigitalTable string
	AnalogTable  string
	UnitColumn   string
	TimeColumn   string
	DigitalTags  []string
	AnalogTags   []string

	CommTag       string
	PowerTag      string
	StaleAfter    time.Duration
	PowerLookback time.Duration

	// AbandonAfter excludes units silent for longer than this from
	// communication-fault detection; long-decommissioned units should
	// not raise fresh incidents every run.
	AbandonAfter time.Duration
	// AnalogSilence is how long the analog side must also be quiet
	// before a stale digital side counts as a communication fault.
	AnalogSilence time.Duration
}

func (c *Config) applyDefaults() {
	if c.DigitalTable == "" {
		c.DigitalTable = domain.TableDigital
	}
	if c.AnalogTable == "" {
		c.AnalogTable = domain.TableAnalog
	}
	if c.UnitColumn == "" {
		c.UnitColumn = "rtu_id"
	}
	if c.TimeColumn == "" {
		c.TimeColumn = "event_time"
	}
	if c.CommTag == "" {
		c.CommTag = "Tag8"
	}
	if c.PowerTag == "" {
		c.PowerTag = "Tag16"
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = time.Hour
	}
	if c.PowerLookback <= 0 {
		c.PowerLookback = time.Hour
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = 60 * 24 * time.Hour
	}
	if c.AnalogSilence <= 0 {
		c.AnalogSilence = 24 * time.Hour
	}
}

// PostgresSource reads telemetry rows from the digital and analog
// tables joined on (unit, event time), so one streamed row carries both
// signal families and prerequisite rules can resolve siblings without a
// second query.
type PostgresSource struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

func NewPostgresSource(db *sql.DB, cfg Config) *PostgresSource {
	cfg.applyDefaults()
	return &PostgresSource{db: db, cfg: cfg, now: time.Now}
}

func (p *PostgresSource) Stream(ctx context.Context, since time.Time, fn func(domain.Sample) error) error {
	query := p.streamQuery()
	rows, err := p.db.QueryContext(ctx, query, since)
	if err != nil {
		return fmt.Errorf("stream query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		unit, at, raw, err := p.scanRow(rows)
		if err != nil {
			return err
		}
		for _, s := range p.expand(unit, at, raw) {
			if err := fn(s); err != nil {
				return err
			}
		}
	}
	return rows.Err()
}

func (p *PostgresSource) FetchHistory(ctx context.Context, unitID string, windowHours int) ([]domain.Sample, error) {
	cutoff := p.now().Add(-time.Duration(windowHours) * time.Hour)
	query := p.historyQuery()
	rows, err := p.db.QueryContext(ctx, query, unitID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var out []domain.Sample
	for rows.Next() {
		unit, at, raw, err := p.scanRow(rows)
		if err != nil {
			return nil, err
		}
		// One record per source row; the evaluator resolves the tag
		// it needs from the raw columns.
		out = append(out, domain.Sample{
			UnitID:    unit,
			EventTime: at,
			Source:    domain.SourceUnified,
			Raw:       raw,
		})
	}
	return out, rows.Err()
}

// CommunicationFaults reports a synthetic comm-down sample for every
// unit whose latest digital row is older than the staleness threshold
// but newer than the abandonment floor, and whose analog side has also
// been quiet. Both sides silent distinguishes a dead link from a unit
// that simply stopped publishing one signal family.
func (p *PostgresSource) CommunicationFaults(ctx context.Context) ([]domain.Sample, error) {
	unit := pq.QuoteIdentifier(p.cfg.UnitColumn)
	at := pq.QuoteIdentifier(p.cfg.TimeColumn)
	query := fmt.Sprintf(
		"SELECT d.%s, MAX(d.%s) AS last_seen FROM %s d"+
			" GROUP BY d.%s"+
			" HAVING MAX(d.%s) < $1 AND MAX(d.%s) > $2"+
			" AND NOT EXISTS (SELECT 1 FROM %s a WHERE a.%s = d.%s AND a.%s > $3)"+
			" ORDER BY d.%s",
		unit, at,
		pq.QuoteIdentifier(p.cfg.DigitalTable),
		unit,
		at, at,
		pq.QuoteIdentifier(p.cfg.AnalogTable), unit, unit, at,
		unit,
	)
	now := p.now()
	cutoff := now.Add(-p.cfg.StaleAfter)
	floor := now.Add(-p.cfg.AbandonAfter)
	analogCutoff := now.Add(-p.cfg.AnalogSilence)

	rows, err := p.db.QueryContext(ctx, query, cutoff, floor, analogCutoff)
	if err != nil {
		return nil, fmt.Errorf("comm fault query: %w", err)
	}
	defer rows.Close()

	var out []domain.Sample
	for rows.Next() {
		var (
			unit     any
			lastSeen time.Time
		)
		if err := rows.Scan(&unit, &lastSeen); err != nil {
			return nil, err
		}
		id, _ := stringify(unit)
		out = append(out, domain.Sample{
			UnitID:    id,
			Tag:       p.cfg.CommTag,
			Value:     "0",
			EventTime: lastSeen,
			Source:    domain.SourceComputed,
		})
	}
	return out, rows.Err()
}

// PowerFailures reports a synthetic sample for every unit whose latest
// digital row inside the lookback carries the power tag at zero.
func (p *PostgresSource) PowerFailures(ctx context.Context) ([]domain.Sample, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT ON (%s) %s, %s, %s FROM %s WHERE %s > $1 ORDER BY %s, %s DESC",
		pq.QuoteIdentifier(p.cfg.UnitColumn),
		pq.QuoteIdentifier(p.cfg.UnitColumn),
		pq.QuoteIdentifier(p.cfg.TimeColumn),
		pq.QuoteIdentifier(p.cfg.PowerTag),
		pq.QuoteIdentifier(p.cfg.DigitalTable),
		pq.QuoteIdentifier(p.cfg.TimeColumn),
		pq.QuoteIdentifier(p.cfg.UnitColumn),
		pq.QuoteIdentifier(p.cfg.TimeColumn),
	)
	cutoff := p.now().Add(-p.cfg.PowerLookback)

	rows, err := p.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("power fault query: %w", err)
	}
	defer rows.Close()

	var out []domain.Sample
	for rows.Next() {
		var (
			unit  any
			at    time.Time
			value any
		)
		if err := rows.Scan(&unit, &at, &value); err != nil {
			return nil, err
		}
		v, ok := stringify(value)
		if !ok || v != "0" {
			continue
		}
		id, _ := stringify(unit)
		out = append(out, domain.Sample{
			UnitID:    id,
			Tag:       p.cfg.PowerTag,
			Value:     "0",
			EventTime: at,
			Source:    domain.SourceComputed,
		})
	}
	return out, rows.Err()
}

// streamQuery selects the rule-bearing tag columns from the digital
// table left-joined to the analog table on (unit, time). Analog columns
// are aliased with the Analog prefix so both signal families share one
// namespace in the scanned row.
func (p *PostgresSource) streamQuery() string {
	var b strings.Builder
	b.WriteString("SELECT d.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.UnitColumn))
	b.WriteString(", d.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.TimeColumn))
	for _, tag := range p.cfg.DigitalTags {
		b.WriteString(", d.")
		b.WriteString(pq.QuoteIdentifier(tag))
	}
	for _, tag := range p.cfg.AnalogTags {
		b.WriteString(", a.")
		b.WriteString(pq.QuoteIdentifier(tag))
		b.WriteString(" AS ")
		b.WriteString(pq.QuoteIdentifier("Analog" + tag))
	}
	b.WriteString(" FROM ")
	b.WriteString(pq.QuoteIdentifier(p.cfg.DigitalTable))
	b.WriteString(" d LEFT JOIN ")
	b.WriteString(pq.QuoteIdentifier(p.cfg.AnalogTable))
	b.WriteString(" a ON a.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.UnitColumn))
	b.WriteString(" = d.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.UnitColumn))
	b.WriteString(" AND a.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.TimeColumn))
	b.WriteString(" = d.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.TimeColumn))
	b.WriteString(" WHERE d.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.TimeColumn))
	b.WriteString(" > $1 ORDER BY d.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.UnitColumn))
	b.WriteString(", d.")
	b.WriteString(pq.QuoteIdentifier(p.cfg.TimeColumn))
	return b.String()
}

func (p *PostgresSource) historyQuery() string {
	base := p.streamQuery()
	where := " WHERE d." + pq.QuoteIdentifier(p.cfg.TimeColumn) + " > $1 ORDER BY d."
	replacement := " WHERE d." + pq.QuoteIdentifier(p.cfg.UnitColumn) + " = $1 AND d." +
		pq.QuoteIdentifier(p.cfg.TimeColumn) + " > $2 ORDER BY d."
	return strings.Replace(base, where, replacement, 1)
}

// scanRow reads one joined row into (unit, time, raw column map). Every
// column is scanned loosely and stringified, so integer and numeric tag
// columns compare the same way the rule values are written.
func (p *PostgresSource) scanRow(rows *sql.Rows) (string, time.Time, map[string]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", time.Time{}, nil, err
	}
	vals := make([]any, len(cols))
	for i := range vals {
		vals[i] = new(any)
	}
	if err := rows.Scan(vals...); err != nil {
		return "", time.Time{}, nil, fmt.Errorf("scan row: %w", err)
	}

	var (
		unit string
		at   time.Time
	)
	raw := make(map[string]string, len(cols))
	for i, col := range cols {
		v := *(vals[i].(*any))
		switch col {
		case p.cfg.UnitColumn:
			unit, _ = stringify(v)
		case p.cfg.TimeColumn:
			if t, ok := v.(time.Time); ok {
				at = t
			}
		default:
			if s, ok := stringify(v); ok {
				raw[col] = s
			}
		}
	}
	return unit, at, raw, nil
}

// expand turns one joined row into per-tag samples for the configured
// rule-bearing columns. Null columns produce no sample.
func (p *PostgresSource) expand(unit string, at time.Time, raw map[string]string) []domain.Sample {
	out := make([]domain.Sample, 0, len(p.cfg.DigitalTags)+len(p.cfg.AnalogTags))
	for _, tag := range p.cfg.DigitalTags {
		if v, ok := raw[tag]; ok {
			out = append(out, domain.Sample{
				UnitID: unit, Tag: tag, Value: v,
				EventTime: at, Source: domain.SourceUnified, Raw: raw,
			})
		}
	}
	for _, tag := range p.cfg.AnalogTags {
		if v, ok := raw["Analog"+tag]; ok {
			out = append(out, domain.Sample{
				UnitID: unit, Tag: tag, Value: v,
				EventTime: at, Source: domain.SourceUnified, Raw: raw,
			})
		}
	}
	return out
}

var _ ports.SampleSource = (*PostgresSource)(nil)
