package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id              INTEGER PRIMARY KEY AUTOINCREMENT,
	username             TEXT NOT NULL UNIQUE,
	email                TEXT,
	password_hash        TEXT NOT NULL,
	refresh_token        TEXT,
	refresh_token_expiry DATETIME,
	reset_token          TEXT,
	reset_token_expiry   DATETIME,
	webhook_url          TEXT,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id          TEXT PRIMARY KEY,
	user_id     INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	prefix      TEXT NOT NULL,
	key_hash    TEXT NOT NULL,
	permissions TEXT NOT NULL DEFAULT '[]',
	last_used   DATETIME,
	created_at  DATETIME NOT NULL,
	expires_at  DATETIME,
	is_active   INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(prefix);
CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);

CREATE TABLE IF NOT EXISTS webhooks (
	id          TEXT PRIMARY KEY,
	user_id     INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
	url         TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	description TEXT,
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	UNIQUE(user_id, url, event_type)
);
CREATE INDEX IF NOT EXISTS idx_webhooks_user ON webhooks(user_id);

CREATE TABLE IF NOT EXISTS flows (
	flow_id        TEXT PRIMARY KEY,
	flow_name      TEXT NOT NULL,
	name           TEXT NOT NULL,
	queue_name     TEXT NOT NULL,
	user_id        INTEGER NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
	root_job_id    TEXT,
	status         TEXT NOT NULL,
	job_structure  TEXT NOT NULL,
	progress       TEXT NOT NULL,
	result         TEXT,
	error          TEXT,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	started_at     DATETIME,
	completed_at   DATETIME
);
CREATE INDEX IF NOT EXISTS idx_flows_user ON flows(user_id);
CREATE INDEX IF NOT EXISTS idx_flows_status ON flows(status);
`

// migrate applies the schema. All statements use CREATE ... IF NOT
// EXISTS, so this is safe to run on every startup.
func (d *DB) migrate() error {
	_, err := d.db.Exec(schema)
	return err
}
