// ABOUTME: SQLite persistence for agent definitions
// ABOUTME: Insert, lookup, filtered find, and partial-field update

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/2389/argon/internal/platform"
	"github.com/2389/argon/internal/principal"
	"github.com/google/uuid"
)

// InsertAgent persists a new agent definition.
func (s *SQLiteStore) InsertAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, action, execute_as, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, agent.ID, agent.Name, agent.Action, string(agent.ExecuteAs),
		fmtTime(agent.CreatedAt), fmtTime(agent.UpdatedAt))
	return err
}

// GetAgent returns a single agent by id, or platform.ErrNotFound.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, action, execute_as, created_at, updated_at
		FROM agents WHERE id = ?
	`, id)

	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, platform.ErrNotFound
	}
	return agent, err
}

// FindAgents returns agents matching the filter, ordered by name.
func (s *SQLiteStore) FindAgents(ctx context.Context, filter AgentFilter, opts FindOptions) ([]*Agent, error) {
	query := `SELECT id, name, action, execute_as, created_at, updated_at FROM agents WHERE 1=1`
	var args []any

	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	if executeAs, ok := principal.NormalizeID(filter.ExecuteAs); ok {
		query += ` AND execute_as = ?`
		args = append(args, string(executeAs))
	}

	query += ` ORDER BY name ASC, id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Skip > 0 {
		query += ` LIMIT -1`
	}
	if opts.Skip > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// UpdateAgent applies a partial-field merge to an existing agent. Returns
// platform.ErrNotFound when the agent does not exist.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, id string, update AgentUpdate) error {
	query := `UPDATE agents SET updated_at = ?`
	args := []any{fmtTime(time.Now().UTC())}

	if update.Name != nil {
		query += `, name = ?`
		args = append(args, *update.Name)
	}
	if update.Action != nil {
		query += `, action = ?`
		args = append(args, *update.Action)
	}
	if update.ExecuteAs != nil {
		query += `, execute_as = ?`
		args = append(args, string(*update.ExecuteAs))
	}

	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return platform.ErrNotFound
	}
	return nil
}

func scanAgent(row scanner) (*Agent, error) {
	var agent Agent
	var executeAs, createdAt, updatedAt string

	err := row.Scan(&agent.ID, &agent.Name, &agent.Action, &executeAs, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	agent.ExecuteAs = principal.ID(executeAs)
	agent.CreatedAt = parseTime(createdAt)
	agent.UpdatedAt = parseTime(updatedAt)

	return &agent, nil
}
