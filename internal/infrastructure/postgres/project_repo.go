package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
)

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

const projectSelectColumns = `id, name, code, owner_id, options, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	query := fmt.Sprintf(`
		INSERT INTO projects (name, code, owner_id, options)
		VALUES ($1, $2, $3, $4)
		RETURNING %s`, projectSelectColumns)

	row := r.pool.QueryRow(ctx, query, p.Name, p.Code, p.OwnerID, p.Options)
	created, err := scanProject(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.NewInvalidInput(fmt.Sprintf("project code %q already in use", p.Code))
		}
		return nil, err
	}
	return created, nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectSelectColumns)
	row := r.pool.QueryRow(ctx, query, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewResourceNotFound(id)
		}
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepository) GetByCode(ctx context.Context, code string) (*domain.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE code = $1`, projectSelectColumns)
	row := r.pool.QueryRow(ctx, query, code)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewResourceNotFound(code)
		}
		return nil, err
	}
	return p, nil
}

// ResolveProjectCode satisfies pluginhost.ProjectResolver: a plugin's
// Task result names its target project by code, never by id.
func (r *ProjectRepository) ResolveProjectCode(ctx context.Context, code string) (string, error) {
	p, err := r.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (r *ProjectRepository) List(ctx context.Context, input repository.ListProjectsInput) ([]*domain.Project, error) {
	var args []any
	where := []string{"1=1"}

	if input.OwnerID != "" {
		args = append(args, input.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT %s FROM projects
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, projectSelectColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	query := fmt.Sprintf(`
		UPDATE projects
		SET name = $2, code = $3, options = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, projectSelectColumns)

	row := r.pool.QueryRow(ctx, query, p.ID, p.Name, p.Code, p.Options)
	updated, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewResourceNotFound(p.ID)
		}
		return nil, err
	}
	return updated, nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewResourceNotFound(id)
	}
	return nil
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.OwnerID, &p.Options, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}
