package queries

const (
	QueryAppendMessage = `
		INSERT INTO messages (user_id, user_name, content, sent_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sent_at;
	`
	// Берём новейшие, порядок по возрастанию восстанавливает вызывающий.
	QueryRecentMessages = `
		SELECT id, user_id::text, user_name, content, sent_at
		FROM messages
		ORDER BY sent_at DESC, id DESC
		LIMIT $1;
	`
)
