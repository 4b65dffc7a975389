package queries

const (
	QueryCreateUser = `
		INSERT INTO users (id, user_name, normalized_user_name, email, normalized_email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	QueryGetUserByID = `
		SELECT id::text, user_name, email, password_hash, created_at
		FROM users
		WHERE id = $1;
	`
	QueryGetUserByUserName = `
		SELECT id::text, user_name, email, password_hash, created_at
		FROM users
		WHERE normalized_user_name = $1;
	`
	QueryGetUserByEmail = `
		SELECT id::text, user_name, email, password_hash, created_at
		FROM users
		WHERE normalized_email = $1;
	`
	QueryExistsUserByUserName = `SELECT 1 FROM users WHERE normalized_user_name = $1;`
	QueryExistsUserByEmail    = `SELECT 1 FROM users WHERE normalized_email = $1;`
)

// Имена ограничений из миграции, по ним различаем дубликаты.
const (
	ConstraintUserName = "uq_users_normalized_user_name"
	ConstraintEmail    = "uq_users_normalized_email"
)
