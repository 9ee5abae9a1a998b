package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bugtriage/pkg/report"
)

const (
	DefaultListLimit = 10
	reportColumns    = "report_id, transport, user_id, channel_id, summary, pages, steps, components, status, priority, created_at, updated_at"
)

// Stats summarizes stored reports.
type Stats struct {
	Total      int
	ByStatus   map[report.Status]int
	ByPriority map[report.Priority]int
	Recent     int
}

// SaveReport inserts a new report. Priority is derived from the answers
// when unset.
func (s *Store) SaveReport(ctx context.Context, r report.BugReport) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("report id is required")
	}
	if r.Priority == "" {
		r.Priority = report.DeterminePriority(r.Answers)
	}
	if r.Status == "" {
		r.Status = report.StatusNew
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO bug_reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Channel, r.UserID, r.ChannelID,
		r.Summary(), r.Pages(), r.Steps(), r.Components(),
		string(r.Status), string(r.Priority),
		toUnix(r.CreatedAt), toUnix(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (report.BugReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM bug_reports WHERE report_id = ?`, strings.ToUpper(strings.TrimSpace(id)))
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return report.BugReport{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return report.BugReport{}, fmt.Errorf("get report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns the newest reports, optionally filtered by status.
func (s *Store) ListReports(ctx context.Context, status report.Status, limit int) ([]report.BugReport, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM bug_reports WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?`, string(status), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM bug_reports ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return collectReports(rows)
}

// SearchReports matches query against every answer column.
func (s *Store) SearchReports(ctx context.Context, query string, limit int) ([]report.BugReport, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	term := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM bug_reports
		WHERE summary LIKE ? ESCAPE '\' OR pages LIKE ? ESCAPE '\' OR steps LIKE ? ESCAPE '\' OR components LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC LIMIT ?`, term, term, term, term, limit)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	return collectReports(rows)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status report.Status) error {
	result, err := s.db.ExecContext(ctx, `UPDATE bug_reports SET status = ?, updated_at = ? WHERE report_id = ?`,
		string(status), toUnix(s.now()), strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return fmt.Errorf("update report %s: %w", id, err)
	}
	return requireAffected(result, id)
}

func (s *Store) DeleteReport(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bug_reports WHERE report_id = ?`, strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	return requireAffected(result, id)
}

// Stats counts reports overall, per status, per priority, and in the last
// seven days.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByStatus:   map[report.Status]int{},
		ByPriority: map[report.Priority]int{},
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bug_reports`).Scan(&stats.Total); err != nil {
		return Stats{}, fmt.Errorf("count reports: %w", err)
	}

	if err := s.groupCount(ctx, "status", func(key string, n int) { stats.ByStatus[report.Status(key)] = n }); err != nil {
		return Stats{}, err
	}
	if err := s.groupCount(ctx, "priority", func(key string, n int) { stats.ByPriority[report.Priority(key)] = n }); err != nil {
		return Stats{}, err
	}

	since := s.now().Add(-7 * 24 * time.Hour)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bug_reports WHERE created_at >= ?`, toUnix(since)).Scan(&stats.Recent); err != nil {
		return Stats{}, fmt.Errorf("count recent reports: %w", err)
	}

	return stats, nil
}

func (s *Store) groupCount(ctx context.Context, column string, add func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM bug_reports GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("count reports by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		add(key, n)
	}
	return rows.Err()
}

// NextReportID allocates the next BUG-YYYY-NNN identifier for the year of
// at. The counter lives in the database, so every process sharing it draws
// from one sequence, and a number is never handed out twice even after its
// report is deleted. Reports stored before the counter existed are counted.
func (s *Store) NextReportID(ctx context.Context, at time.Time) (string, error) {
	year := at.UTC().Year()
	prefix := fmt.Sprintf("BUG-%d-", year)

	var n int
	err := s.db.QueryRowContext(ctx, `INSERT INTO report_sequences (year, last)
		VALUES (?1, (SELECT COALESCE(MAX(CAST(substr(report_id, ?2) AS INTEGER)), 0) FROM bug_reports WHERE report_id LIKE ?3) + 1)
		ON CONFLICT(year) DO UPDATE SET last = max(report_sequences.last + 1, excluded.last)
		RETURNING last`,
		year, len(prefix)+1, prefix+"%").Scan(&n)
	if err != nil {
		return "", fmt.Errorf("allocate report id for %d: %w", year, err)
	}
	return report.FormatID(year, n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (report.BugReport, error) {
	var (
		r                                  report.BugReport
		channelID, pages, steps, component sql.NullString
		summary, status, priority          string
		createdAt, updatedAt               int64
	)
	if err := row.Scan(&r.ID, &r.Channel, &r.UserID, &channelID, &summary, &pages, &steps, &component, &status, &priority, &createdAt, &updatedAt); err != nil {
		return report.BugReport{}, err
	}

	r.ChannelID = channelID.String
	r.Status = report.Status(status)
	r.Priority = report.Priority(priority)
	r.CreatedAt = fromUnix(createdAt)
	r.UpdatedAt = fromUnix(updatedAt)
	r.Answers = map[string]string{report.FieldSummary: summary}
	for field, value := range map[string]sql.NullString{report.FieldPages: pages, report.FieldSteps: steps, report.FieldComponents: component} {
		if value.String != "" {
			r.Answers[field] = value.String
		}
	}
	return r, nil
}

func collectReports(rows *sql.Rows) ([]report.BugReport, error) {
	defer rows.Close()

	var reports []report.BugReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
