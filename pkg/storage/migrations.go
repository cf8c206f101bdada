package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campuscms/campuscms/pkg/observability"
)

// Migration is one schema change, applied at most once
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the full schema in application order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create departments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS departments (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					slug VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					head_user_id BIGINT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_departments_slug ON departments(slug);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					username VARCHAR(255) NOT NULL,
					first_name VARCHAR(255) NOT NULL DEFAULT '',
					last_name VARCHAR(255) NOT NULL DEFAULT '',
					department_id BIGINT REFERENCES departments(id) ON DELETE SET NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					external_id VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMPTZ
				);

				CREATE INDEX idx_users_department_id ON users(department_id);
				CREATE INDEX idx_users_external_id ON users(external_id);
			`,
		},
		{
			Version:     3,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					permissions JSONB NOT NULL DEFAULT '[]',
					is_admin BOOLEAN NOT NULL DEFAULT FALSE,
					is_department_lead BOOLEAN NOT NULL DEFAULT FALSE,
					is_built_in BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_roles_name ON roles(name);
			`,
		},
		{
			Version:     4,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, role_id)
				);

				CREATE INDEX idx_user_roles_user_id ON user_roles(user_id);
				CREATE INDEX idx_user_roles_role_id ON user_roles(role_id);
			`,
		},
		{
			Version:     5,
			Description: "Create staff_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS staff_members (
					id BIGSERIAL PRIMARY KEY,
					department_id BIGINT NOT NULL REFERENCES departments(id),
					first_name VARCHAR(255) NOT NULL,
					last_name VARCHAR(255) NOT NULL,
					title VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL UNIQUE,
					phone VARCHAR(64) NOT NULL DEFAULT '',
					bio TEXT NOT NULL DEFAULT '',
					photo_url TEXT NOT NULL DEFAULT '',
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					display_order INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_staff_members_department_id ON staff_members(department_id);
			`,
		},
		{
			Version:     6,
			Description: "Create academic_sections table",
			SQL: `
				CREATE TABLE IF NOT EXISTS academic_sections (
					id BIGSERIAL PRIMARY KEY,
					department_id BIGINT NOT NULL REFERENCES departments(id),
					name VARCHAR(255) NOT NULL,
					degree VARCHAR(255) NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					display_order INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_academic_sections_department_id ON academic_sections(department_id);
			`,
		},
		{
			Version:     7,
			Description: "Create blog_posts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS blog_posts (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(512) NOT NULL,
					slug VARCHAR(512) NOT NULL UNIQUE,
					content TEXT NOT NULL DEFAULT '',
					excerpt TEXT NOT NULL DEFAULT '',
					cover_image_url TEXT NOT NULL DEFAULT '',
					author_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					department_id BIGINT REFERENCES departments(id) ON DELETE SET NULL,
					status VARCHAR(32) NOT NULL DEFAULT 'draft',
					published_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_blog_posts_slug ON blog_posts(slug);
				CREATE INDEX idx_blog_posts_status ON blog_posts(status);
				CREATE INDEX idx_blog_posts_published_at ON blog_posts(published_at);
			`,
		},
		{
			Version:     8,
			Description: "Create document content tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS publications (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(512) NOT NULL,
					body TEXT NOT NULL DEFAULT '',
					file_url TEXT NOT NULL DEFAULT '',
					department_id BIGINT REFERENCES departments(id) ON DELETE SET NULL,
					status VARCHAR(32) NOT NULL DEFAULT 'draft',
					published_at TIMESTAMPTZ,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS reports (LIKE publications INCLUDING ALL);
				CREATE TABLE IF NOT EXISTS research_activities (LIKE publications INCLUDING ALL);
				CREATE TABLE IF NOT EXISTS success_stories (LIKE publications INCLUDING ALL);

				CREATE SEQUENCE IF NOT EXISTS reports_id_seq OWNED BY reports.id;
				ALTER TABLE reports ALTER COLUMN id SET DEFAULT nextval('reports_id_seq');
				CREATE SEQUENCE IF NOT EXISTS research_activities_id_seq OWNED BY research_activities.id;
				ALTER TABLE research_activities ALTER COLUMN id SET DEFAULT nextval('research_activities_id_seq');
				CREATE SEQUENCE IF NOT EXISTS success_stories_id_seq OWNED BY success_stories.id;
				ALTER TABLE success_stories ALTER COLUMN id SET DEFAULT nextval('success_stories_id_seq');

				CREATE INDEX idx_publications_status ON publications(status);
				CREATE INDEX idx_reports_status ON reports(status);
				CREATE INDEX idx_research_activities_status ON research_activities(status);
				CREATE INDEX idx_success_stories_status ON success_stories(status);
			`,
		},
		{
			Version:     9,
			Description: "Create content_versions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS content_versions (
					id BIGSERIAL PRIMARY KEY,
					content_type VARCHAR(64) NOT NULL,
					content_id BIGINT NOT NULL,
					version_number BIGINT NOT NULL,
					title VARCHAR(512) NOT NULL,
					content TEXT NOT NULL DEFAULT '',
					edited_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(content_type, content_id, version_number)
				);

				CREATE INDEX idx_content_versions_item ON content_versions(content_type, content_id);
			`,
		},
		{
			Version:     10,
			Description: "Create sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					id VARCHAR(64) PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					ip_address VARCHAR(64) NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX idx_sessions_user_id ON sessions(user_id);
				CREATE INDEX idx_sessions_expires_at ON sessions(expires_at);
			`,
		},
		{
			Version:     11,
			Description: "Create media_assets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS media_assets (
					id BIGSERIAL PRIMARY KEY,
					file_name VARCHAR(512) NOT NULL,
					object_key VARCHAR(1024) NOT NULL UNIQUE,
					content_type VARCHAR(255) NOT NULL DEFAULT '',
					size_bytes BIGINT NOT NULL DEFAULT 0,
					url TEXT NOT NULL DEFAULT '',
					uploaded_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_media_assets_uploaded_by ON media_assets(uploaded_by);
			`,
		},
		{
			Version:     12,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					actor_id BIGINT,
					action VARCHAR(128) NOT NULL,
					resource_type VARCHAR(64) NOT NULL,
					resource_id VARCHAR(255) NOT NULL DEFAULT '',
					detail JSONB NOT NULL DEFAULT '{}',
					ip_address VARCHAR(64) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_audit_logs_actor_id ON audit_logs(actor_id);
				CREATE INDEX idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
				CREATE INDEX idx_audit_logs_created_at ON audit_logs(created_at);
			`,
		},
		{
			Version:     13,
			Description: "Create webhook_subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS webhook_subscriptions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					url TEXT NOT NULL,
					secret VARCHAR(255) NOT NULL DEFAULT '',
					events TEXT[] NOT NULL DEFAULT '{*}',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_webhook_subscriptions_events ON webhook_subscriptions USING GIN (events);
			`,
		},
	}
}

// RunMigrations applies pending migrations in order, each in its own
// transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("applying migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
