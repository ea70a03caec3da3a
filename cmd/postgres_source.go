package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// postgresSource reads a relational mirror of the article store where every
// row of the table holds one article document in a JSONB "doc" column
type postgresSource struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

func postgresDSN(config PostgresConfig) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host,
		config.Port,
		config.User,
		config.Password,
		config.Name,
		sslMode,
	)
}

func openPostgresSource(ctx context.Context, config PostgresConfig, logger *slog.Logger) (*postgresSource, error) {
	logger.Debug(fmt.Sprintf("Connecting to PostgreSQL %s:%d/%s", config.Host, config.Port, config.Name))

	db, err := sql.Open("postgres", postgresDSN(config))
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return newPostgresSource(db, config.Table, logger), nil
}

func newPostgresSource(db *sql.DB, table string, logger *slog.Logger) *postgresSource {
	return &postgresSource{db: db, table: table, logger: logger}
}

func (s *postgresSource) countQuery() string {
	return fmt.Sprintf("SELECT count(*) FROM %s WHERE (doc->>'is_public')::boolean", pq.QuoteIdentifier(s.table)) //nolint:gosec // Table name is quoted with pq.QuoteIdentifier
}

func (s *postgresSource) selectQuery() string {
	return fmt.Sprintf("SELECT doc FROM %s WHERE (doc->>'is_public')::boolean", pq.QuoteIdentifier(s.table)) //nolint:gosec // Table name is quoted with pq.QuoteIdentifier
}

func (s *postgresSource) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, s.countQuery()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count public articles: %w", err)
	}
	return count, nil
}

func (s *postgresSource) Each(ctx context.Context, fn func(SourceRecord) error) error {
	rows, err := s.db.QueryContext(ctx, s.selectQuery())
	if err != nil {
		return fmt.Errorf("failed to query public articles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return fmt.Errorf("failed to scan article row: %w", err)
		}
		if err := fn(decodeJSONArticle(doc)); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating over article rows: %w", err)
	}
	return nil
}

func (s *postgresSource) Close(_ context.Context) error {
	return s.db.Close()
}

func decodeJSONArticle(doc []byte) SourceRecord {
	var record SourceRecord

	var head struct {
		ID any `json:"_id"`
	}
	if err := json.Unmarshal(doc, &head); err == nil && head.ID != nil {
		record.ID = fmt.Sprint(head.ID)
	}

	if err := json.Unmarshal(doc, &record.Article); err != nil {
		record.Err = fmt.Errorf("failed to decode article: %w", err)
	}

	return record
}
