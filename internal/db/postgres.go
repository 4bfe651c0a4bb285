package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"calendar-sync/internal/models"
)

const insertBatchSize = 500

// PostgresSink keeps the whole state in Postgres. Every Save replaces all
// tables inside one transaction.
type PostgresSink struct {
	db  *sqlx.DB
	log *slog.Logger
}

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, log *slog.Logger) (*PostgresSink, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresSink{db: db, log: log}, nil
}

func runMigrations(db *sqlx.DB, log *slog.Logger) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            seq BIGSERIAL,
            username TEXT PRIMARY KEY,
            secret TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS groups (
            seq BIGSERIAL,
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            created_by TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS group_members (
            seq BIGSERIAL,
            group_id TEXT NOT NULL,
            username TEXT NOT NULL,
            PRIMARY KEY(group_id, username)
        );`,
		`CREATE TABLE IF NOT EXISTS schedules (
            seq BIGSERIAL,
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            start_time TIMESTAMP NOT NULL,
            end_time TIMESTAMP NOT NULL,
            all_day BOOLEAN NOT NULL DEFAULT FALSE,
            group_id TEXT NOT NULL DEFAULT '',
            created_by TEXT NOT NULL,
            is_private BOOLEAN NOT NULL DEFAULT FALSE
        );`,
		`CREATE TABLE IF NOT EXISTS schedule_participants (
            seq BIGSERIAL,
            schedule_id TEXT NOT NULL,
            username TEXT NOT NULL,
            PRIMARY KEY(schedule_id, username)
        );`,
		`CREATE TABLE IF NOT EXISTS chats (
            seq BIGSERIAL,
            id TEXT PRIMARY KEY,
            sender TEXT NOT NULL,
            group_id TEXT NOT NULL,
            message TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Info("database migrations applied")
	return nil
}

type memberRow struct {
	OwnerID  string `db:"owner_id"`
	Username string `db:"username"`
}

// Load reads every table in insertion order.
func (p *PostgresSink) Load(ctx context.Context) (models.Snapshot, error) {
	var snapshot models.Snapshot
	if err := p.db.SelectContext(ctx, &snapshot.Identities, `SELECT username, secret FROM users ORDER BY seq`); err != nil {
		return models.Snapshot{}, fmt.Errorf("load users: %w", err)
	}
	if err := p.db.SelectContext(ctx, &snapshot.Groups, `SELECT id, name, created_by FROM groups ORDER BY seq`); err != nil {
		return models.Snapshot{}, fmt.Errorf("load groups: %w", err)
	}
	if err := p.db.SelectContext(ctx, &snapshot.Schedules, `SELECT id, title, description, start_time, end_time, all_day, group_id, created_by, is_private FROM schedules ORDER BY seq`); err != nil {
		return models.Snapshot{}, fmt.Errorf("load schedules: %w", err)
	}
	if err := p.db.SelectContext(ctx, &snapshot.Chats, `SELECT id, sender, group_id, message, created_at FROM chats ORDER BY seq`); err != nil {
		return models.Snapshot{}, fmt.Errorf("load chats: %w", err)
	}

	members, err := p.loadMembers(ctx, `SELECT group_id AS owner_id, username FROM group_members ORDER BY seq`)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("load group members: %w", err)
	}
	for i := range snapshot.Groups {
		snapshot.Groups[i].Members = members[snapshot.Groups[i].ID]
	}

	participants, err := p.loadMembers(ctx, `SELECT schedule_id AS owner_id, username FROM schedule_participants ORDER BY seq`)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("load schedule participants: %w", err)
	}
	for i := range snapshot.Schedules {
		snapshot.Schedules[i].Participants = participants[snapshot.Schedules[i].ID]
	}
	return snapshot, nil
}

func (p *PostgresSink) loadMembers(ctx context.Context, query string) (map[string][]string, error) {
	var rows []memberRow
	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, r := range rows {
		out[r.OwnerID] = append(out[r.OwnerID], r.Username)
	}
	return out, nil
}

// Save overwrites every table with the snapshot atomically.
func (p *PostgresSink) Save(ctx context.Context, snapshot models.Snapshot) (err error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `TRUNCATE users, groups, group_members, schedules, schedule_participants, chats RESTART IDENTITY`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	var groupMembers, participants []memberRow
	for _, g := range snapshot.Groups {
		for _, m := range g.Members {
			groupMembers = append(groupMembers, memberRow{OwnerID: g.ID, Username: m})
		}
	}
	for _, s := range snapshot.Schedules {
		for _, m := range s.Participants {
			participants = append(participants, memberRow{OwnerID: s.ID, Username: m})
		}
	}

	if err = insertBatches(ctx, tx, `INSERT INTO users (username, secret) VALUES (:username, :secret)`, snapshot.Identities); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	if err = insertBatches(ctx, tx, `INSERT INTO groups (id, name, created_by) VALUES (:id, :name, :created_by)`, snapshot.Groups); err != nil {
		return fmt.Errorf("save groups: %w", err)
	}
	if err = insertBatches(ctx, tx, `INSERT INTO group_members (group_id, username) VALUES (:owner_id, :username)`, groupMembers); err != nil {
		return fmt.Errorf("save group members: %w", err)
	}
	if err = insertBatches(ctx, tx, `INSERT INTO schedules (id, title, description, start_time, end_time, all_day, group_id, created_by, is_private) VALUES (:id, :title, :description, :start_time, :end_time, :all_day, :group_id, :created_by, :is_private)`, snapshot.Schedules); err != nil {
		return fmt.Errorf("save schedules: %w", err)
	}
	if err = insertBatches(ctx, tx, `INSERT INTO schedule_participants (schedule_id, username) VALUES (:owner_id, :username)`, participants); err != nil {
		return fmt.Errorf("save schedule participants: %w", err)
	}
	if err = insertBatches(ctx, tx, `INSERT INTO chats (id, sender, group_id, message, created_at) VALUES (:id, :sender, :group_id, :message, :created_at)`, snapshot.Chats); err != nil {
		return fmt.Errorf("save chats: %w", err)
	}

	return tx.Commit()
}

func (p *PostgresSink) Close() error {
	return p.db.Close()
}

// insertBatches issues one multi-row insert per chunk of rows.
func insertBatches[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := tx.NamedExecContext(ctx, query, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}
