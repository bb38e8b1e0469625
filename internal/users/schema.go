package users

// schemaLockKey serialises concurrent schema initialisation across processes.
const schemaLockKey int64 = 0x75736572

const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

// Usernames and emails stay reserved after a soft delete: the unique
// constraints deliberately ignore is_active.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		full_name     VARCHAR(50)  NOT NULL,
		username      VARCHAR(20)  NOT NULL,
		email         VARCHAR(100) NOT NULL,
		password_hash TEXT         NOT NULL,
		created_at    TIMESTAMPTZ  NOT NULL DEFAULT clock_timestamp(),
		updated_at    TIMESTAMPTZ  NOT NULL DEFAULT clock_timestamp(),
		last_login    TIMESTAMPTZ,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		CONSTRAINT ` + usernameConstraint + ` UNIQUE (username),
		CONSTRAINT ` + emailConstraint + ` UNIQUE (email),
		CONSTRAINT users_username_lower_chk CHECK (username = lower(username))
	)`,
	`CREATE INDEX IF NOT EXISTS users_active_created_idx ON users (created_at DESC, id DESC) WHERE is_active`,
	`CREATE OR REPLACE FUNCTION users_touch_updated_at() RETURNS trigger AS $$
	BEGIN
		IF TG_OP = 'INSERT' THEN
			NEW.updated_at := NEW.created_at;
		ELSE
			NEW.created_at := OLD.created_at;
			NEW.updated_at := GREATEST(clock_timestamp(), OLD.updated_at + interval '1 microsecond');
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS users_touch_updated_at ON users`,
	`CREATE TRIGGER users_touch_updated_at
		BEFORE INSERT OR UPDATE ON users
		FOR EACH ROW EXECUTE FUNCTION users_touch_updated_at()`,
}
