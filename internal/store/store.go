package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"github.com/rahul/kestrel/internal/convo"
)

// ErrNotFound distinguishes "record missing" from "record empty". Callers
// treat it as "start fresh", never as a user-facing failure.
var ErrNotFound = errors.New("store: not found")

// Store persists plans, session state, conversation history and scheduled
// tasks in a single sqlite database. Single writer per session by contract;
// the embedding host serializes calls per session id.
type Store struct {
	DB *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			mission TEXT,
			steps TEXT,
			open_questions TEXT,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			plan_id TEXT,
			mission TEXT,
			pending_question TEXT,
			answers TEXT,
			updated_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			task_description TEXT,
			interval_seconds INTEGER,
			last_run DATETIME,
			status TEXT DEFAULT 'active'
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// ---- Plans ----

// CreatePlan persists a new plan for the mission with a fresh id. Steps come
// in without positions fixed up; any missing status defaults to pending.
func (s *Store) CreatePlan(mission string, steps []Step) (*Plan, error) {
	for i := range steps {
		steps[i].Position = i + 1
		if steps[i].Status == "" {
			steps[i].Status = StepPending
		}
	}
	now := time.Now().UTC()
	plan := &Plan{
		ID:        uuid.NewString(),
		Mission:   mission,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := s.writePlan(plan, true); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Store) LoadPlan(id string) (*Plan, error) {
	row := s.DB.QueryRow(`SELECT id, mission, steps, open_questions, created_at, updated_at FROM plans WHERE id = ?`, id)

	var plan Plan
	var stepsJSON, questionsJSON, createdAt, updatedAt string
	err := row.Scan(&plan.ID, &plan.Mission, &stepsJSON, &questionsJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	plan.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	plan.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if err := json.Unmarshal([]byte(stepsJSON), &plan.Steps); err != nil {
		return nil, fmt.Errorf("plan %s: corrupt steps: %w", id, err)
	}
	if questionsJSON != "" {
		if err := json.Unmarshal([]byte(questionsJSON), &plan.OpenQuestions); err != nil {
			return nil, fmt.Errorf("plan %s: corrupt open questions: %w", id, err)
		}
	}
	return &plan, nil
}

func (s *Store) SavePlan(plan *Plan) error {
	plan.UpdatedAt = time.Now().UTC()
	return s.writePlan(plan, false)
}

func (s *Store) writePlan(plan *Plan, create bool) error {
	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return err
	}
	questionsJSON, err := json.Marshal(plan.OpenQuestions)
	if err != nil {
		return err
	}
	if create {
		_, err = s.DB.Exec(
			`INSERT INTO plans (id, mission, steps, open_questions, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			plan.ID, plan.Mission, string(stepsJSON), string(questionsJSON),
			plan.CreatedAt.Format(time.RFC3339Nano), plan.UpdatedAt.Format(time.RFC3339Nano))
		return err
	}
	res, err := s.DB.Exec(
		`UPDATE plans SET mission = ?, steps = ?, open_questions = ?, updated_at = ? WHERE id = ?`,
		plan.Mission, string(stepsJSON), string(questionsJSON), plan.UpdatedAt.Format(time.RFC3339Nano), plan.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("plan %s: %w", plan.ID, ErrNotFound)
	}
	return nil
}

// ---- Sessions ----

func (s *Store) LoadSession(sessionID string) (*SessionState, error) {
	row := s.DB.QueryRow(
		`SELECT session_id, plan_id, mission, pending_question, answers FROM sessions WHERE session_id = ?`, sessionID)

	var st SessionState
	var answersJSON string
	err := row.Scan(&st.SessionID, &st.PlanID, &st.Mission, &st.PendingQuestion, &answersJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	st.Answers = map[string]string{}
	if answersJSON != "" {
		if err := json.Unmarshal([]byte(answersJSON), &st.Answers); err != nil {
			return nil, fmt.Errorf("session %s: corrupt answers: %w", sessionID, err)
		}
	}
	return &st, nil
}

func (s *Store) SaveSession(st *SessionState) error {
	answersJSON, err := json.Marshal(st.Answers)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`
		INSERT INTO sessions (session_id, plan_id, mission, pending_question, answers, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			mission = excluded.mission,
			pending_question = excluded.pending_question,
			answers = excluded.answers,
			updated_at = excluded.updated_at`,
		st.SessionID, st.PlanID, st.Mission, st.PendingQuestion, string(answersJSON),
		time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// ---- Conversation history ----

func (s *Store) AddMessage(sessionID string, role convo.Role, content string) error {
	_, err := s.DB.Exec(`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, string(role), content)
	return err
}

// GetHistory returns the most recent messages in chronological order.
func (s *Store) GetHistory(sessionID string, limit int) ([]convo.Message, error) {
	rows, err := s.DB.Query(
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []convo.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		history = append(history, convo.Message{Role: convo.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// ---- Scheduled tasks ----

func (s *Store) AddTask(sessionID string, description string, interval time.Duration) error {
	_, err := s.DB.Exec(
		`INSERT INTO tasks (session_id, task_description, interval_seconds, last_run) VALUES (?, ?, ?, datetime('now', '-365 days'))`,
		sessionID, description, int(interval.Seconds()))
	return err
}

func (s *Store) GetPendingTasks() ([]ScheduledTask, error) {
	rows, err := s.DB.Query(`
		SELECT id, session_id, task_description, interval_seconds, last_run
		FROM tasks
		WHERE status = 'active'
		AND (last_run IS NULL OR (julianday('now') - julianday(last_run)) * 86400 >= interval_seconds)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []ScheduledTask
	for rows.Next() {
		var t ScheduledTask
		var intervalSeconds int
		var lastRun sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Description, &intervalSeconds, &lastRun); err != nil {
			return nil, err
		}
		t.Interval = time.Duration(intervalSeconds) * time.Second
		if lastRun.Valid {
			if parsed, err := time.Parse("2006-01-02 15:04:05", lastRun.String); err == nil {
				t.LastRun = parsed
			}
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) UpdateTaskLastRun(id int) error {
	_, err := s.DB.Exec(`UPDATE tasks SET last_run = datetime('now') WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteTask(sessionID string, taskID int) error {
	_, err := s.DB.Exec(`DELETE FROM tasks WHERE session_id = ? AND id = ?`, sessionID, taskID)
	return err
}

func (s *Store) ClearTasks(sessionID string) error {
	_, err := s.DB.Exec(`DELETE FROM tasks WHERE session_id = ?`, sessionID)
	return err
}
