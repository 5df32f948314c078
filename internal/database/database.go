package database

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"furnidesk/internal/errors"
	"furnidesk/internal/metrics"
	"furnidesk/internal/migrations"
	"furnidesk/internal/models"
	"furnidesk/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the sqlite ThreadRepository and Directory. Each thread row is
// written together with its messages in one transaction.
type Database struct {
	db     *sql.DB
	fields *fieldCipher
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, closeOnError(db, "failed to ping database", err)
	}

	if _, err := migrations.Apply(context.Background(), db); err != nil {
		return nil, closeOnError(db, "failed to initialize schema", err)
	}

	fields, err := cipherFromEnv()
	if err != nil {
		return nil, closeOnError(db, "failed to initialize field encryption", err)
	}

	return &Database{db: db, fields: fields}, nil
}

func closeOnError(db *sql.DB, msg string, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%s: %w (close error: %v)", msg, err, closeErr)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) SaveThread(ctx context.Context, thread models.Thread) error {
	start := time.Now()
	err := withWriteRetry(ctx, "save thread", func(ctx context.Context) error {
		return d.saveThreadTx(ctx, thread)
	})
	metrics.RecordTimer("database_operation_duration", time.Since(start), map[string]string{"operation": "save_thread"}, "Database operation latency")
	if err != nil {
		return errors.NewDatabaseError("save thread", err).WithContext("thread_id", thread.ID)
	}
	return nil
}

func (d *Database) saveThreadTx(ctx context.Context, thread models.Thread) error {
	row, err := d.encodeThread(thread)
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, UpsertThreadQuery, row...); err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, UpsertMessageQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare message upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for seq, msg := range thread.Messages {
		args, err := d.encodeMessage(thread.ID, seq, msg)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to save message %s: %w", msg.ID, err)
		}
	}

	return tx.Commit()
}

func (d *Database) GetThread(ctx context.Context, threadID string) (models.Thread, error) {
	thread, err := scanThread(d.db.QueryRowContext(ctx, SelectThreadByIDQuery, threadID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, errors.NewThreadNotFoundError(threadID)
	}
	if err != nil {
		return models.Thread{}, errors.NewDatabaseError("get thread", err)
	}
	if err := d.decodeThread(&thread); err != nil {
		return models.Thread{}, errors.NewDatabaseError("get thread", err)
	}

	msgs, err := d.queryMessages(ctx, SelectMessagesByThreadQuery, threadID)
	if err != nil {
		return models.Thread{}, errors.NewDatabaseError("get thread messages", err)
	}
	thread.Messages = msgs[threadID]
	if thread.Messages == nil {
		thread.Messages = []models.Message{}
	}
	return thread.Thread, nil
}

// ListThreads returns every thread in creation order, each with its messages.
func (d *Database) ListThreads(ctx context.Context) ([]models.Thread, error) {
	threads, err := d.queryThreads(ctx, SelectThreadsQuery)
	if err != nil {
		return nil, errors.NewDatabaseError("list threads", err)
	}

	msgs, err := d.queryMessages(ctx, SelectAllMessagesQuery)
	if err != nil {
		return nil, errors.NewDatabaseError("list thread messages", err)
	}
	for i := range threads {
		threads[i].Messages = msgs[threads[i].ID]
		if threads[i].Messages == nil {
			threads[i].Messages = []models.Message{}
		}
	}
	return threads, nil
}

func (d *Database) DeleteThread(ctx context.Context, threadID string) error {
	err := withWriteRetry(ctx, "delete thread", func(ctx context.Context) error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, DeleteThreadMessagesQuery, threadID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, DeleteThreadQuery, threadID); err != nil {
			return fmt.Errorf("failed to delete thread: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return errors.NewDatabaseError("delete thread", err).WithContext("thread_id", threadID)
	}
	return nil
}

func (d *Database) FindThreadByExternalChat(ctx context.Context, source, chatID string) (models.Thread, bool, error) {
	if chatID == "" {
		return models.Thread{}, false, nil
	}
	lookup, err := d.fields.SealLookup(chatID)
	if err != nil {
		return models.Thread{}, false, errors.NewDatabaseError("encrypt chat id", err)
	}

	candidates, err := d.queryThreads(ctx, SelectThreadsByExternalChatQuery, lookup)
	if err != nil {
		return models.Thread{}, false, errors.NewDatabaseError("find thread by chat", err)
	}
	for _, t := range candidates {
		if t.HasSource(source) {
			full, err := d.GetThread(ctx, t.ID)
			if err != nil {
				return models.Thread{}, false, err
			}
			return full, true, nil
		}
	}
	return models.Thread{}, false, nil
}

func (d *Database) FindMessageByExternalID(ctx context.Context, externalID string) (string, string, bool, error) {
	if externalID == "" {
		return "", "", false, nil
	}
	lookup, err := d.fields.SealLookup(externalID)
	if err != nil {
		return "", "", false, errors.NewDatabaseError("encrypt external id", err)
	}

	var threadID, messageID string
	err = d.db.QueryRowContext(ctx, SelectMessageByExternalIDQuery, lookup).Scan(&threadID, &messageID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, errors.NewDatabaseError("find message by external id", err)
	}
	return threadID, messageID, true, nil
}

func (d *Database) CountStaleMessages(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).UnixNano()
	var count int
	if err := d.db.QueryRowContext(ctx, CountStaleMessagesQuery, string(models.StatusSending), cutoff).Scan(&count); err != nil {
		return 0, errors.NewDatabaseError("count stale messages", err)
	}
	return count, nil
}

// Directory

func (d *Database) SaveParticipant(ctx context.Context, p models.Participant) error {
	_, err := d.db.ExecContext(ctx, UpsertParticipantQuery, p.ID, p.Name, p.Avatar, p.Role, p.IsAdmin)
	if err != nil {
		return errors.NewDatabaseError("save participant", err)
	}
	return nil
}

func (d *Database) GetParticipant(ctx context.Context, participantID string) (models.Participant, error) {
	var p models.Participant
	err := d.db.QueryRowContext(ctx, SelectParticipantByIDQuery, participantID).
		Scan(&p.ID, &p.Name, &p.Avatar, &p.Role, &p.IsAdmin)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, errors.NewNotFoundError("participant", participantID)
	}
	if err != nil {
		return models.Participant{}, errors.NewDatabaseError("get participant", err)
	}
	return p, nil
}

func (d *Database) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := d.db.QueryContext(ctx, SelectParticipantsQuery)
	if err != nil {
		return nil, errors.NewDatabaseError("list participants", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Avatar, &p.Role, &p.IsAdmin); err != nil {
			return nil, errors.NewDatabaseError("scan participant", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list participants", err)
	}
	return out, nil
}

func (d *Database) SaveClient(ctx context.Context, c models.ClientReference) error {
	_, err := d.db.ExecContext(ctx, UpsertClientQuery, c.ID, c.Name, string(c.Status), c.Phone)
	if err != nil {
		return errors.NewDatabaseError("save client", err)
	}
	return nil
}

func (d *Database) GetClient(ctx context.Context, clientID string) (models.ClientReference, error) {
	var c models.ClientReference
	var status string
	err := d.db.QueryRowContext(ctx, SelectClientByIDQuery, clientID).Scan(&c.ID, &c.Name, &status, &c.Phone)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.ClientReference{}, errors.NewNotFoundError("client", clientID)
	}
	if err != nil {
		return models.ClientReference{}, errors.NewDatabaseError("get client", err)
	}
	c.Status = models.ClientStatus(status)
	return c, nil
}

// Row encoding

// threadRow holds the columns that need decoding after a scan.
type threadRow struct {
	models.Thread
	participants   string
	client         sql.NullString
	sources        sql.NullString
	externalChatID string
	lastActivity   int64
	createdAt      int64
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(s rowScanner) (threadRow, error) {
	var r threadRow
	var threadType string
	err := s.Scan(&r.ID, &threadType, &r.Name, &r.Avatar, &r.participants, &r.UnreadCount,
		&r.Pinned, &r.Muted, &r.client, &r.sources, &r.externalChatID,
		&r.lastActivity, &r.createdAt, &r.CreatedBy)
	r.Type = models.ThreadType(threadType)
	return r, err
}

func (d *Database) queryThreads(ctx context.Context, query string, args ...any) ([]models.Thread, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Thread
	for rows.Next() {
		r, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		if err := d.decodeThread(&r); err != nil {
			return nil, err
		}
		out = append(out, r.Thread)
	}
	return out, rows.Err()
}

func (d *Database) decodeThread(r *threadRow) error {
	if err := json.Unmarshal([]byte(r.participants), &r.Participants); err != nil {
		return fmt.Errorf("failed to decode participants of %s: %w", r.ID, err)
	}
	if r.client.Valid {
		var c models.ClientReference
		if err := json.Unmarshal([]byte(r.client.String), &c); err != nil {
			return fmt.Errorf("failed to decode client of %s: %w", r.ID, err)
		}
		r.Client = &c
	}
	if r.sources.Valid {
		if err := json.Unmarshal([]byte(r.sources.String), &r.Sources); err != nil {
			return fmt.Errorf("failed to decode sources of %s: %w", r.ID, err)
		}
	}
	chatID, err := d.fields.Open(r.externalChatID)
	if err != nil {
		return fmt.Errorf("failed to decrypt chat id of %s: %w", r.ID, err)
	}
	r.ExternalChatID = chatID
	r.LastActivity = fromUnixNano(r.lastActivity)
	r.CreatedAt = fromUnixNano(r.createdAt)
	return nil
}

func (d *Database) encodeThread(t models.Thread) ([]any, error) {
	participants, err := json.Marshal(t.Participants)
	if err != nil {
		return nil, fmt.Errorf("failed to encode participants: %w", err)
	}
	var client, sources sql.NullString
	if t.Client != nil {
		raw, err := json.Marshal(t.Client)
		if err != nil {
			return nil, fmt.Errorf("failed to encode client: %w", err)
		}
		client = sql.NullString{String: string(raw), Valid: true}
	}
	if len(t.Sources) > 0 {
		raw, err := json.Marshal(t.Sources)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sources: %w", err)
		}
		sources = sql.NullString{String: string(raw), Valid: true}
	}
	chatID, err := d.fields.SealLookup(t.ExternalChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt chat id: %w", err)
	}

	return []any{
		t.ID, string(t.Type), t.Name, t.Avatar, string(participants), t.UnreadCount, t.Pinned, t.Muted,
		client, sources, chatID, toUnixNano(t.LastActivity), toUnixNano(t.CreatedAt), t.CreatedBy,
	}, nil
}

func (d *Database) encodeMessage(threadID string, seq int, m models.Message) ([]any, error) {
	content, err := d.fields.Seal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt content of %s: %w", m.ID, err)
	}

	var attachments, replyTo sql.NullString
	if len(m.Attachments) > 0 {
		raw, err := json.Marshal(m.Attachments)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attachments of %s: %w", m.ID, err)
		}
		attachments = sql.NullString{String: string(raw), Valid: true}
	}
	if m.ReplyTo != nil {
		raw, err := json.Marshal(m.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("failed to encode reply of %s: %w", m.ID, err)
		}
		sealed, err := d.fields.Seal(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt reply of %s: %w", m.ID, err)
		}
		replyTo = sql.NullString{String: sealed, Valid: true}
	}

	var editedAt sql.NullInt64
	if m.EditedAt != nil {
		editedAt = sql.NullInt64{Int64: m.EditedAt.UnixNano(), Valid: true}
	}

	externalID, err := d.fields.SealLookup(m.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt external id of %s: %w", m.ID, err)
	}

	return []any{
		m.ID, threadID, seq, m.SenderID, m.SenderName, content, toUnixNano(m.CreatedAt), string(m.Status),
		attachments, m.IsImportant, m.IsInternalNote, m.IsSystem, replyTo,
		m.Edited, editedAt, m.Source, externalID,
	}, nil
}

// queryMessages returns messages grouped by thread id, in sequence order.
func (d *Database) queryMessages(ctx context.Context, query string, args ...any) (map[string][]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]models.Message)
	for rows.Next() {
		var (
			m                    models.Message
			status               string
			createdAt            int64
			attachments, replyTo sql.NullString
			editedAt             sql.NullInt64
			externalID           string
		)
		err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.SenderName, &m.Content, &createdAt, &status,
			&attachments, &m.IsImportant, &m.IsInternalNote, &m.IsSystem, &replyTo,
			&m.Edited, &editedAt, &m.Source, &externalID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		if m.Content, err = d.fields.Open(m.Content); err != nil {
			return nil, fmt.Errorf("failed to decrypt content of %s: %w", m.ID, err)
		}
		if m.ExternalID, err = d.fields.Open(externalID); err != nil {
			return nil, fmt.Errorf("failed to decrypt external id of %s: %w", m.ID, err)
		}
		if attachments.Valid {
			if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
				return nil, fmt.Errorf("failed to decode attachments of %s: %w", m.ID, err)
			}
		}
		if replyTo.Valid {
			raw, err := d.fields.Open(replyTo.String)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt reply of %s: %w", m.ID, err)
			}
			var ref models.ReplyRef
			if err := json.Unmarshal([]byte(raw), &ref); err != nil {
				return nil, fmt.Errorf("failed to decode reply of %s: %w", m.ID, err)
			}
			m.ReplyTo = &ref
		}
		if editedAt.Valid {
			at := fromUnixNano(editedAt.Int64)
			m.EditedAt = &at
		}
		m.Status = models.MessageStatus(status)
		m.CreatedAt = fromUnixNano(createdAt)

		out[m.ThreadID] = append(out[m.ThreadID], m)
	}
	return out, rows.Err()
}

// Times are stored as unix nanoseconds; zero maps to the zero time.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
