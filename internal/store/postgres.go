package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore implements persistence over database/sql with the pgx driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const projectColumns = `project_id, name, version, v_user, v_agent, data, modified_by, created_at, last_modified`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var p Project
	var data []byte
	if err := row.Scan(&p.ProjectID, &p.Name, &p.Version, &p.VUser, &p.VAgent, &data, &p.ModifiedBy, &p.CreatedAt, &p.LastModified); err != nil {
		return Project{}, err
	}
	p.Data = json.RawMessage(data)
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		ORDER BY last_modified DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE project_id = $1
	`, projectID)
	p, err := scanProject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("get project %s: %w", projectID, err)
	}
	return p, nil
}

// CreateProject inserts the project at version 0 and records the creation
// in version_history so the audit trail starts at the beginning.
func (s *PostgresStore) CreateProject(ctx context.Context, p Project, device string) (Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, fmt.Errorf("begin create project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	data := p.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO projects (project_id, name, data, modified_by)
		VALUES ($1, $2, $3, $4)
		RETURNING `+projectColumns+`
	`, p.ProjectID, p.Name, []byte(data), device)
	created, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}

	changeData, _ := json.Marshal(map[string]any{"name": p.Name})
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO version_history (project_id, version, device, change_type, change_data)
		VALUES ($1, 0, $2, 'project_created', $3)
	`, p.ProjectID, device, changeData); err != nil {
		return Project{}, fmt.Errorf("record project creation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Project{}, fmt.Errorf("commit create project: %w", err)
	}
	return created, nil
}

// ApplyProjectUpdate is the optimistic-concurrency gate. It locks the project
// row, rejects stale callers with ConflictError, runs mutate over the stored
// data payload, bumps the version by exactly one, and records one history row
// per change. All of it commits or none of it does.
func (s *PostgresStore) ApplyProjectUpdate(
	ctx context.Context,
	projectID string,
	currentVersion int,
	device string,
	mutate func(data json.RawMessage) (json.RawMessage, error),
	changes []ChangeRecord,
) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin project update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	var data []byte
	err = tx.QueryRowContext(ctx, `
		SELECT version, data FROM projects WHERE project_id = $1 FOR UPDATE
	`, projectID).Scan(&version, &data)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("lock project %s: %w", projectID, err)
	}

	if version != currentVersion {
		return 0, &ConflictError{Latest: version}
	}

	updated, err := mutate(json.RawMessage(data))
	if err != nil {
		return 0, err
	}

	newVersion := version + 1
	if _, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET data = $1, version = $2, modified_by = $3, last_modified = NOW()
		WHERE project_id = $4
	`, []byte(updated), newVersion, device, projectID); err != nil {
		return 0, fmt.Errorf("update project %s: %w", projectID, err)
	}

	for _, change := range changes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO version_history (project_id, version, device, change_type, change_data)
			VALUES ($1, $2, $3, $4, $5)
		`, projectID, newVersion, device, change.Type, nullableJSON(change.Data)); err != nil {
			return 0, fmt.Errorf("record change %s: %w", change.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit project update: %w", err)
	}
	return newVersion, nil
}

func (s *PostgresStore) History(ctx context.Context, projectID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, version, device, change_type, change_data, created_at
		FROM version_history
		WHERE project_id = $1
		ORDER BY version DESC, id DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var h HistoryEntry
		var changeData []byte
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.Version, &h.Device, &h.ChangeType, &changeData, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.ChangeData = json.RawMessage(changeData)
		items = append(items, h)
	}
	return items, rows.Err()
}

const entryColumns = `id, project_id, parent_id, local_path, entry_type, title, content, url, checked, status_color, version, context_data, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	var parent sql.NullInt64
	var contextData sql.NullString
	err := row.Scan(&e.ID, &e.ProjectID, &parent, &e.LocalPath, &e.EntryType, &e.Title, &e.Content, &e.URL,
		&e.Checked, &e.StatusColor, &e.Version, &contextData, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	if parent.Valid {
		value := parent.Int64
		e.ParentID = &value
	}
	e.ContextData = contextData.String
	return e, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, projectID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE project_id = $1
		ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *PostgresStore) GetEntry(ctx context.Context, projectID string, entryID int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE project_id = $1 AND id = $2
	`, projectID, entryID)
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("get entry %d: %w", entryID, err)
	}
	return e, nil
}

func (s *PostgresStore) ListSiblings(ctx context.Context, projectID string, parentID *int64) ([]Entry, error) {
	var rows *sql.Rows
	var err error
	if parentID == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+entryColumns+`
			FROM entries
			WHERE project_id = $1 AND parent_id IS NULL
			ORDER BY id
		`, projectID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+entryColumns+`
			FROM entries
			WHERE project_id = $1 AND parent_id = $2
			ORDER BY id
		`, projectID, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("list siblings: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// mutateEntries serializes an entry-level write against the shared project
// counter. The project row lock orders concurrent writers; there is no
// version precondition, last writer wins. fn receives the post-increment
// version to stamp on whatever it touches.
func (s *PostgresStore) mutateEntries(
	ctx context.Context,
	projectID, device string,
	change ChangeRecord,
	fn func(tx *sql.Tx, newVersion int) error,
) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin entry mutation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	err = tx.QueryRowContext(ctx, `
		SELECT version FROM projects WHERE project_id = $1 FOR UPDATE
	`, projectID).Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("lock project %s: %w", projectID, err)
	}

	newVersion := version + 1
	if err := fn(tx, newVersion); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE projects SET version = $1, modified_by = $2, last_modified = NOW()
		WHERE project_id = $3
	`, newVersion, device, projectID); err != nil {
		return 0, fmt.Errorf("bump project version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO version_history (project_id, version, device, change_type, change_data)
		VALUES ($1, $2, $3, $4, $5)
	`, projectID, newVersion, device, change.Type, nullableJSON(change.Data)); err != nil {
		return 0, fmt.Errorf("record change %s: %w", change.Type, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit entry mutation: %w", err)
	}
	return newVersion, nil
}

func (s *PostgresStore) CreateEntry(ctx context.Context, e Entry, device string) (Entry, error) {
	var created Entry
	changeData, _ := json.Marshal(map[string]any{"title": e.Title, "parentId": e.ParentID})
	_, err := s.mutateEntries(ctx, e.ProjectID, device, ChangeRecord{Type: "add_entry", Data: changeData},
		func(tx *sql.Tx, newVersion int) error {
			row := tx.QueryRowContext(ctx, `
				INSERT INTO entries (project_id, parent_id, local_path, entry_type, title, content, url, checked, status_color, version, context_data)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				RETURNING `+entryColumns+`
			`, e.ProjectID, nullableID(e.ParentID), e.LocalPath, e.EntryType, e.Title, e.Content, e.URL,
				e.Checked, e.StatusColor, newVersion, nullableString(e.ContextData))
			var err error
			created, err = scanEntry(row)
			if err != nil {
				return fmt.Errorf("insert entry: %w", err)
			}
			return nil
		})
	if err != nil {
		return Entry{}, err
	}
	return created, nil
}

func (s *PostgresStore) UpdateEntry(ctx context.Context, e Entry, device string) (Entry, error) {
	var updated Entry
	changeData, _ := json.Marshal(map[string]any{"entryId": e.ID, "title": e.Title})
	_, err := s.mutateEntries(ctx, e.ProjectID, device, ChangeRecord{Type: "update_entry", Data: changeData},
		func(tx *sql.Tx, newVersion int) error {
			row := tx.QueryRowContext(ctx, `
				UPDATE entries
				SET title = $1, content = $2, url = $3, entry_type = $4, context_data = $5,
					status_color = $6, version = $7, updated_at = NOW()
				WHERE project_id = $8 AND id = $9
				RETURNING `+entryColumns+`
			`, e.Title, e.Content, e.URL, e.EntryType, nullableString(e.ContextData),
				e.StatusColor, newVersion, e.ProjectID, e.ID)
			var err error
			updated, err = scanEntry(row)
			if err != nil {
				return err
			}
			return nil
		})
	if err != nil {
		return Entry{}, err
	}
	return updated, nil
}

// DeleteEntry removes the entry and its whole subtree. Returns how many
// rows went away.
func (s *PostgresStore) DeleteEntry(ctx context.Context, projectID string, entryID int64, device string) (int, error) {
	deleted := 0
	changeData, _ := json.Marshal(map[string]any{"entryId": entryID})
	_, err := s.mutateEntries(ctx, projectID, device, ChangeRecord{Type: "delete_entry", Data: changeData},
		func(tx *sql.Tx, newVersion int) error {
			result, err := tx.ExecContext(ctx, `
				WITH RECURSIVE subtree AS (
					SELECT id FROM entries WHERE project_id = $1 AND id = $2
					UNION ALL
					SELECT e.id FROM entries e JOIN subtree s ON e.parent_id = s.id
				)
				DELETE FROM entries WHERE id IN (SELECT id FROM subtree)
			`, projectID, entryID)
			if err != nil {
				return fmt.Errorf("delete subtree: %w", err)
			}
			affected, _ := result.RowsAffected()
			if affected == 0 {
				return sql.ErrNoRows
			}
			deleted = int(affected)
			return nil
		})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// MoveEntry reparents an entry. The new parent must exist in the same
// project and must not be the entry itself or one of its descendants.
func (s *PostgresStore) MoveEntry(ctx context.Context, projectID string, entryID int64, newParent *int64, device string) (Entry, error) {
	var moved Entry
	changeData, _ := json.Marshal(map[string]any{"entryId": entryID, "parentId": newParent})
	_, err := s.mutateEntries(ctx, projectID, device, ChangeRecord{Type: "move_entry", Data: changeData},
		func(tx *sql.Tx, newVersion int) error {
			if newParent != nil {
				var inSubtree bool
				err := tx.QueryRowContext(ctx, `
					WITH RECURSIVE subtree AS (
						SELECT id FROM entries WHERE project_id = $1 AND id = $2
						UNION ALL
						SELECT e.id FROM entries e JOIN subtree s ON e.parent_id = s.id
					)
					SELECT EXISTS(SELECT 1 FROM subtree WHERE id = $3)
				`, projectID, entryID, *newParent).Scan(&inSubtree)
				if err != nil {
					return fmt.Errorf("check move target: %w", err)
				}
				if inSubtree {
					return ErrCycle
				}
				var parentExists bool
				err = tx.QueryRowContext(ctx, `
					SELECT EXISTS(SELECT 1 FROM entries WHERE project_id = $1 AND id = $2)
				`, projectID, *newParent).Scan(&parentExists)
				if err != nil {
					return fmt.Errorf("check new parent: %w", err)
				}
				if !parentExists {
					return sql.ErrNoRows
				}
			}
			row := tx.QueryRowContext(ctx, `
				UPDATE entries
				SET parent_id = $1, version = $2, updated_at = NOW()
				WHERE project_id = $3 AND id = $4
				RETURNING `+entryColumns+`
			`, nullableID(newParent), newVersion, projectID, entryID)
			var err error
			moved, err = scanEntry(row)
			return err
		})
	if err != nil {
		return Entry{}, err
	}
	return moved, nil
}

func (s *PostgresStore) SetEntryChecked(ctx context.Context, projectID string, entryID int64, checked bool, device string) (Entry, error) {
	var toggled Entry
	changeData, _ := json.Marshal(map[string]any{"entryId": entryID, "checked": checked})
	_, err := s.mutateEntries(ctx, projectID, device, ChangeRecord{Type: "toggle_completed", Data: changeData},
		func(tx *sql.Tx, newVersion int) error {
			row := tx.QueryRowContext(ctx, `
				UPDATE entries
				SET checked = $1, version = $2, updated_at = NOW()
				WHERE project_id = $3 AND id = $4
				RETURNING `+entryColumns+`
			`, checked, newVersion, projectID, entryID)
			var err error
			toggled, err = scanEntry(row)
			return err
		})
	if err != nil {
		return Entry{}, err
	}
	return toggled, nil
}

func (s *PostgresStore) SetEntryColor(ctx context.Context, projectID string, entryID int64, color, changeType, device string) (Entry, error) {
	var updated Entry
	changeData, _ := json.Marshal(map[string]any{"entryId": entryID, "statusColor": color})
	_, err := s.mutateEntries(ctx, projectID, device, ChangeRecord{Type: changeType, Data: changeData},
		func(tx *sql.Tx, newVersion int) error {
			row := tx.QueryRowContext(ctx, `
				UPDATE entries
				SET status_color = $1, version = $2, updated_at = NOW()
				WHERE project_id = $3 AND id = $4
				RETURNING `+entryColumns+`
			`, color, newVersion, projectID, entryID)
			var err error
			updated, err = scanEntry(row)
			return err
		})
	if err != nil {
		return Entry{}, err
	}
	return updated, nil
}

// PendingEntries returns entries stamped after the given watermark, oldest
// first so the review queue reads in the order changes landed.
func (s *PostgresStore) PendingEntries(ctx context.Context, projectID string, watermark int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE project_id = $1 AND version > $2
		ORDER BY version ASC, id ASC
	`, projectID, watermark)
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// MarkReviewed advances the caller's watermark to the current project
// version. The other actor's watermark is untouched.
func (s *PostgresStore) MarkReviewed(ctx context.Context, projectID, actor string) (Project, error) {
	column := "v_user"
	if actor == ActorAgent {
		column = "v_agent"
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE projects SET `+column+` = version
		WHERE project_id = $1
		RETURNING `+projectColumns+`
	`, projectID)
	p, err := scanProject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("mark reviewed %s: %w", projectID, err)
	}
	return p, nil
}

func (s *PostgresStore) WorkingEntries(ctx context.Context, projectID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE project_id = $1 AND status_color = 'yellow'
		ORDER BY updated_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list working entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
