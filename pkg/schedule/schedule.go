// Package schedule stores recurring simulation batches and runs them on
// cron expressions.
package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mscrnt/scramsim/pkg/db"
)

// ErrNotFound is returned when a schedule does not exist
var ErrNotFound = errors.New("schedule not found")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return s, nil
}

// Store handles schedule persistence
type Store struct {
	db *db.DB
}

// NewStore creates a new schedule store
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const scheduleColumns = `id, name, description, cron_expr, standard, scrambler, trials, params,
	enabled, last_run_id, last_run_time, next_run_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	schedule := &Schedule{}
	err := row.Scan(
		&schedule.ID, &schedule.Name, &schedule.Description, &schedule.CronExpr,
		&schedule.Standard, &schedule.Scrambler, &schedule.Trials, &schedule.Params,
		&schedule.Enabled, &schedule.LastRunID, &schedule.LastRunTime,
		&schedule.NextRunTime, &schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// Create validates and stores a new schedule
func (s *Store) Create(schedule *Schedule) error {
	cronSchedule, err := ParseCron(schedule.CronExpr)
	if err != nil {
		return err
	}
	if _, _, err := schedule.SimConfig(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	now := time.Now()
	nextRun := cronSchedule.Next(now)
	schedule.NextRunTime = &nextRun
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	result, err := s.db.Conn().Exec(
		`INSERT INTO schedules (name, description, cron_expr, standard, scrambler, trials, params,
		 enabled, next_run_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.Name, schedule.Description, schedule.CronExpr,
		schedule.Standard, schedule.Scrambler, schedule.Trials, schedule.Params,
		schedule.Enabled, schedule.NextRunTime, schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	schedule.ID = id
	return nil
}

func (s *Store) getOne(where string, arg interface{}) (*Schedule, error) {
	schedule, err := scanSchedule(s.db.Conn().QueryRow(
		`SELECT `+scheduleColumns+` FROM schedules WHERE `+where+` = ?`, arg,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

// Get retrieves a schedule by ID
func (s *Store) Get(id int64) (*Schedule, error) {
	return s.getOne("id", id)
}

// GetByName retrieves a schedule by name
func (s *Store) GetByName(name string) (*Schedule, error) {
	return s.getOne("name", name)
}

func (s *Store) query(query string, args ...interface{}) ([]*Schedule, error) {
	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// List retrieves schedules based on filters
func (s *Store) List(filter ScheduleFilter) ([]*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE 1=1`
	args := []interface{}{}

	if filter.Standard != "" {
		query += " AND standard = ?"
		args = append(args, filter.Standard)
	}

	if filter.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *filter.Enabled)
	}

	query += " ORDER BY name"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return s.query(query, args...)
}

// Update validates and rewrites a schedule
func (s *Store) Update(schedule *Schedule) error {
	cronSchedule, err := ParseCron(schedule.CronExpr)
	if err != nil {
		return err
	}
	if _, _, err := schedule.SimConfig(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	now := time.Now()
	nextRun := cronSchedule.Next(now)
	schedule.NextRunTime = &nextRun
	schedule.UpdatedAt = now

	_, err = s.db.Conn().Exec(
		`UPDATE schedules SET name = ?, description = ?, cron_expr = ?, standard = ?,
		 scrambler = ?, trials = ?, params = ?, enabled = ?, next_run_time = ?, updated_at = ?
		 WHERE id = ?`,
		schedule.Name, schedule.Description, schedule.CronExpr, schedule.Standard,
		schedule.Scrambler, schedule.Trials, schedule.Params, schedule.Enabled,
		schedule.NextRunTime, schedule.UpdatedAt, schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return nil
}

// nextRun loads a schedule and computes its next firing after now
func (s *Store) nextRun(id int64, now time.Time) (time.Time, error) {
	schedule, err := s.Get(id)
	if err != nil {
		return time.Time{}, err
	}
	cronSchedule, err := ParseCron(schedule.CronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return cronSchedule.Next(now), nil
}

// UpdateLastRun records a finished run and advances the next run time
func (s *Store) UpdateLastRun(scheduleID int64, runID int64) error {
	now := time.Now()
	next, err := s.nextRun(scheduleID, now)
	if err != nil {
		return err
	}

	_, err = s.db.Conn().Exec(
		`UPDATE schedules SET last_run_id = ?, last_run_time = ?, next_run_time = ?
		 WHERE id = ?`,
		runID, now, next, scheduleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last run: %w", err)
	}
	return nil
}

// Enable enables a schedule and recomputes its next run from now
func (s *Store) Enable(id int64) error {
	next, err := s.nextRun(id, time.Now())
	if err != nil {
		return err
	}

	_, err = s.db.Conn().Exec(
		`UPDATE schedules SET enabled = 1, next_run_time = ? WHERE id = ?`,
		next, id,
	)
	if err != nil {
		return fmt.Errorf("failed to enable schedule: %w", err)
	}
	return nil
}

// Disable disables a schedule
func (s *Store) Disable(id int64) error {
	return s.exec(id, `UPDATE schedules SET enabled = 0 WHERE id = ?`, "disable")
}

// Delete deletes a schedule
func (s *Store) Delete(id int64) error {
	return s.exec(id, `DELETE FROM schedules WHERE id = ?`, "delete")
}

func (s *Store) exec(id int64, stmt, action string) error {
	res, err := s.db.Conn().Exec(stmt, id)
	if err != nil {
		return fmt.Errorf("failed to %s schedule: %w", action, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%d: %w", id, ErrNotFound)
	}
	return nil
}

// GetDue returns all enabled schedules whose next run time has passed
func (s *Store) GetDue() ([]*Schedule, error) {
	return s.query(
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE enabled = 1 AND (next_run_time IS NULL OR next_run_time <= ?)
		 ORDER BY next_run_time`,
		time.Now(),
	)
}
