// Package store persists extraction results and rock milestones in SQLite. Every write
// runs in a single transaction so a failed save leaves no partial rows behind.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/theimaginaryfoundation/eos-tracker/meeting"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	DB     *sql.DB
	Auth   Authorizer
	Logger zerolog.Logger
	Now    func() time.Time
}

// Open opens (creating if needed) the database at path with foreign keys on and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db, Auth: AllowAll{}, Logger: zerolog.Nop(), Now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) authorize(ctx context.Context, actor string, action Action, resource string) error {
	auth := s.Auth
	if auth == nil {
		auth = AllowAll{}
	}
	if err := auth.Authorize(ctx, actor, action, resource); err != nil {
		return fmt.Errorf("%s %s by %q: %w", action, resource, actor, err)
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SaveExtraction writes the meeting and every extracted collection in one transaction.
func (s *Store) SaveExtraction(ctx context.Context, actor, meetingID string, res meeting.ExtractionResult) error {
	if meetingID == "" {
		return fmt.Errorf("%w: meeting id is empty", meeting.ErrInvalidRequest)
	}
	if err := s.authorize(ctx, actor, ActionSaveExtraction, meetingID); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO meetings(id,session_summary,segments_total,segments_analyzed,generated_at,saved_by,saved_at) VALUES (?,?,?,?,?,?,?)`,
		meetingID, res.SessionSummary, res.Coverage.Total, res.Coverage.Analyzed, formatTime(res.GeneratedAt), actor, formatTime(s.now())); err != nil {
		return fmt.Errorf("insert meeting %s: %w", meetingID, err)
	}

	for _, is := range res.Issues {
		id, name, orig := refColumns(is.MentionedBy)
		if _, err := tx.ExecContext(ctx, `INSERT INTO issues(id,meeting_id,title,description,mentioned_by_id,mentioned_by_name,mentioned_by_original,spoken_at,status,summary) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			is.ID, meetingID, is.Title, is.Description, id, name, orig, is.Timestamp, string(is.Status), is.Summary); err != nil {
			return fmt.Errorf("insert issue %s: %w", is.ID, err)
		}
	}

	for _, rs := range res.RuntimeSolutions {
		id, name, orig := refColumns(&rs.ResolvedBy)
		if _, err := tx.ExecContext(ctx, `INSERT INTO runtime_solutions(id,meeting_id,issue_id,description,resolved_by_id,resolved_by_name,resolved_by_original,status,summary) VALUES (?,?,?,?,?,?,?,?,?)`,
			rs.ID, meetingID, rs.IssueRef, rs.Description, id, name, orig, rs.Status, rs.Summary); err != nil {
			return fmt.Errorf("insert runtime solution %s: %w", rs.ID, err)
		}
	}

	for _, r := range res.Rocks {
		id, name, orig := refColumns(&r.Owner)
		if _, err := tx.ExecContext(ctx, `INSERT INTO rocks(id,meeting_id,rock_type,title,measurable_success,owner_id,owner_name,owner_original,issue_id,start_date,end_date,status,summary) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			r.ID, meetingID, string(r.RockType), r.Title, r.MeasurableSuccess, id, name, orig, r.IssueRef, formatTime(r.StartDate), formatTime(r.EndDate), string(r.Status), r.Summary); err != nil {
			return fmt.Errorf("insert rock %s: %w", r.ID, err)
		}
		if err := insertMilestones(ctx, tx, r.ID, r.WeeklyMilestones); err != nil {
			return err
		}
	}

	for _, td := range res.Todos {
		id, name, orig := refColumns(&td.Owner)
		if _, err := tx.ExecContext(ctx, `INSERT INTO todos(id,meeting_id,title,description,rock_id,issue_id,owner_id,owner_name,owner_original,created_at,deadline,status,summary) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			td.ID, meetingID, td.Title, td.Description, td.ParentRockRef, td.IssueRef, id, name, orig, formatTime(td.CreatedAt), formatTime(td.Deadline), string(td.Status), td.Summary); err != nil {
			return fmt.Errorf("insert todo %s: %w", td.ID, err)
		}
	}

	for _, is := range res.Issues {
		for _, link := range is.Solutions {
			if _, err := tx.ExecContext(ctx, `INSERT INTO issue_solutions(issue_id,kind,solution_id) VALUES (?,?,?)`,
				is.ID, string(link.Kind), link.ID); err != nil {
				return fmt.Errorf("link issue %s to %s %s: %w", is.ID, link.Kind, link.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.Logger.Info().
		Str("meeting_id", meetingID).
		Str("actor", actor).
		Int("issues", len(res.Issues)).
		Int("todos", len(res.Todos)).
		Int("rocks", len(res.Rocks)).
		Msg("extraction saved")
	return nil
}

func insertMilestones(ctx context.Context, tx *sql.Tx, rockID string, ms []meeting.Milestone) error {
	for _, m := range ms {
		sources, err := json.Marshal(nonNil(m.SourceIDs))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO milestones(id,rock_id,week_number,title,description,status,summary,source_ids) VALUES (?,?,?,?,?,?,?,?)`,
			m.ID, rockID, m.WeekNumber, m.Title, m.Description, string(m.Status), m.Summary, string(sources)); err != nil {
			return fmt.Errorf("insert milestone %s: %w", m.ID, err)
		}
	}
	return nil
}

// LoadRock returns the rock with its milestones ordered by week.
func (s *Store) LoadRock(ctx context.Context, rockID string) (meeting.Rock, error) {
	var (
		r                      meeting.Rock
		ownerID, ownerOriginal sql.NullString
		issueID                sql.NullString
		rockType, status       string
		start, end             string
	)
	err := s.DB.QueryRowContext(ctx, `SELECT id,rock_type,title,measurable_success,owner_id,owner_name,owner_original,issue_id,start_date,end_date,status,summary FROM rocks WHERE id=?`, rockID).
		Scan(&r.ID, &rockType, &r.Title, &r.MeasurableSuccess, &ownerID, &r.Owner.Name, &ownerOriginal, &issueID, &start, &end, &status, &r.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return meeting.Rock{}, fmt.Errorf("rock %s: %w", rockID, ErrNotFound)
	}
	if err != nil {
		return meeting.Rock{}, err
	}
	r.RockType = meeting.RockType(rockType)
	r.Status = meeting.RockStatus(status)
	r.Owner = refFromColumns(ownerID, r.Owner.Name, ownerOriginal)
	r.IssueRef = nullableString(issueID)
	if r.StartDate, err = parseTime(start); err != nil {
		return meeting.Rock{}, fmt.Errorf("rock %s start_date: %w", rockID, err)
	}
	if r.EndDate, err = parseTime(end); err != nil {
		return meeting.Rock{}, fmt.Errorf("rock %s end_date: %w", rockID, err)
	}

	r.WeeklyMilestones, err = s.milestones(ctx, rockID)
	if err != nil {
		return meeting.Rock{}, err
	}
	return r, nil
}

func (s *Store) milestones(ctx context.Context, rockID string) ([]meeting.Milestone, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,week_number,title,description,status,summary,source_ids FROM milestones WHERE rock_id=? ORDER BY week_number, rowid`, rockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []meeting.Milestone
	for rows.Next() {
		m := meeting.Milestone{ParentRockID: rockID}
		var status, sources string
		if err := rows.Scan(&m.ID, &m.WeekNumber, &m.Title, &m.Description, &status, &m.Summary, &sources); err != nil {
			return nil, err
		}
		m.Status = meeting.TaskStatus(status)
		if err := json.Unmarshal([]byte(sources), &m.SourceIDs); err != nil {
			return nil, fmt.Errorf("milestone %s source_ids: %w", m.ID, err)
		}
		if len(m.SourceIDs) == 0 {
			m.SourceIDs = nil
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ReplaceMilestones swaps the rock's milestone set wholesale. Milestones carrying a
// different parent rock are rejected.
func (s *Store) ReplaceMilestones(ctx context.Context, actor, rockID string, ms []meeting.Milestone) error {
	for _, m := range ms {
		if m.ParentRockID != "" && m.ParentRockID != rockID {
			return fmt.Errorf("%w: milestone %s belongs to rock %s, not %s", meeting.ErrInvalidRequest, m.ID, m.ParentRockID, rockID)
		}
		if m.WeekNumber < 1 {
			return fmt.Errorf("%w: milestone %s has week %d", meeting.ErrInvalidRequest, m.ID, m.WeekNumber)
		}
	}
	if err := s.authorize(ctx, actor, ActionReplaceMilestones, rockID); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM rocks WHERE id=?`, rockID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("rock %s: %w", rockID, ErrNotFound)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE rock_id=?`, rockID)
	if err != nil {
		return fmt.Errorf("delete milestones of %s: %w", rockID, err)
	}
	removed, _ := res.RowsAffected()

	if err := insertMilestones(ctx, tx, rockID, ms); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.Logger.Info().
		Str("rock_id", rockID).
		Str("actor", actor).
		Int64("removed", removed).
		Int("inserted", len(ms)).
		Msg("milestones replaced")
	return nil
}

func refColumns(ref *meeting.ParticipantRef) (id *string, name *string, original *string) {
	if ref == nil {
		return nil, nil, nil
	}
	n := ref.Name
	name = &n
	if ref.OriginalName != "" {
		o := ref.OriginalName
		original = &o
	}
	return ref.ID, name, original
}

func refFromColumns(id sql.NullString, name string, original sql.NullString) meeting.ParticipantRef {
	return meeting.ParticipantRef{
		ID:           nullableString(id),
		Name:         name,
		Matched:      id.Valid,
		OriginalName: original.String,
	}
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// OpenIssues returns the meeting's unresolved issues with their solution links.
func (s *Store) OpenIssues(ctx context.Context, meetingID string) ([]meeting.Issue, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,title,description,mentioned_by_id,mentioned_by_name,mentioned_by_original,spoken_at,status,summary FROM issues WHERE meeting_id=? AND status=? ORDER BY rowid`,
		meetingID, string(meeting.IssueOpen))
	if err != nil {
		return nil, err
	}
	var res []meeting.Issue
	for rows.Next() {
		var (
			is                      meeting.Issue
			refID, refName, refOrig sql.NullString
			spokenAt                sql.NullString
			status                  string
		)
		if err := rows.Scan(&is.ID, &is.Title, &is.Description, &refID, &refName, &refOrig, &spokenAt, &status, &is.Summary); err != nil {
			rows.Close()
			return nil, err
		}
		is.Status = meeting.IssueStatus(status)
		is.Timestamp = nullableString(spokenAt)
		if refName.Valid {
			ref := refFromColumns(refID, refName.String, refOrig)
			is.MentionedBy = &ref
		}
		res = append(res, is)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range res {
		links, err := s.DB.QueryContext(ctx, `SELECT kind,solution_id FROM issue_solutions WHERE issue_id=? ORDER BY rowid`, res[i].ID)
		if err != nil {
			return nil, err
		}
		for links.Next() {
			var kind, id string
			if err := links.Scan(&kind, &id); err != nil {
				links.Close()
				return nil, err
			}
			res[i].Solutions = append(res[i].Solutions, meeting.SolutionLink{Kind: meeting.SolutionKind(kind), ID: id})
		}
		if err := links.Close(); err != nil {
			return nil, err
		}
	}
	return res, nil
}
