package database

// Thread queries
const (
	UpsertThreadQuery = `
		INSERT INTO threads (
			id, type, name, avatar, participants, unread_count, pinned, muted,
			client, sources, external_chat_id, last_activity, created_at, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			avatar = excluded.avatar,
			participants = excluded.participants,
			unread_count = excluded.unread_count,
			pinned = excluded.pinned,
			muted = excluded.muted,
			client = excluded.client,
			sources = excluded.sources,
			external_chat_id = excluded.external_chat_id,
			last_activity = excluded.last_activity
	`

	selectThreadColumns = `
		SELECT id, type, name, avatar, participants, unread_count, pinned, muted,
			   client, sources, external_chat_id, last_activity, created_at, created_by
		FROM threads
	`

	SelectThreadByIDQuery = selectThreadColumns + `WHERE id = ?`

	SelectThreadsQuery = selectThreadColumns + `ORDER BY rowid`

	SelectThreadsByExternalChatQuery = selectThreadColumns + `WHERE external_chat_id = ? ORDER BY rowid`

	DeleteThreadQuery = `DELETE FROM threads WHERE id = ?`
)

// Message queries
const (
	UpsertMessageQuery = `
		INSERT INTO messages (
			id, thread_id, seq, sender_id, sender_name, content, created_at, status,
			attachments, is_important, is_internal_note, is_system, reply_to,
			edited, edited_at, source, external_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seq = excluded.seq,
			content = excluded.content,
			status = excluded.status,
			attachments = excluded.attachments,
			is_important = excluded.is_important,
			reply_to = excluded.reply_to,
			edited = excluded.edited,
			edited_at = excluded.edited_at,
			external_id = excluded.external_id
	`

	selectMessageColumns = `
		SELECT id, thread_id, sender_id, sender_name, content, created_at, status,
			   attachments, is_important, is_internal_note, is_system, reply_to,
			   edited, edited_at, source, external_id
		FROM messages
	`

	SelectMessagesByThreadQuery = selectMessageColumns + `WHERE thread_id = ? ORDER BY seq`

	SelectAllMessagesQuery = selectMessageColumns + `ORDER BY thread_id, seq`

	SelectMessageByExternalIDQuery = `
		SELECT thread_id, id
		FROM messages
		WHERE external_id = ?
		LIMIT 1
	`

	CountStaleMessagesQuery = `
		SELECT COUNT(*)
		FROM messages
		WHERE status = ? AND created_at < ?
	`

	DeleteThreadMessagesQuery = `DELETE FROM messages WHERE thread_id = ?`
)

// Directory queries
const (
	UpsertParticipantQuery = `
		INSERT INTO participants (id, name, avatar, role, is_admin)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar = excluded.avatar,
			role = excluded.role,
			is_admin = excluded.is_admin
	`

	SelectParticipantByIDQuery = `
		SELECT id, name, avatar, role, is_admin
		FROM participants
		WHERE id = ?
	`

	SelectParticipantsQuery = `
		SELECT id, name, avatar, role, is_admin
		FROM participants
		ORDER BY id
	`

	UpsertClientQuery = `
		INSERT INTO clients (id, name, status, phone)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			phone = excluded.phone
	`

	SelectClientByIDQuery = `
		SELECT id, name, status, phone
		FROM clients
		WHERE id = ?
	`
)
