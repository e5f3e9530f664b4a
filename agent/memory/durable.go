package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

// DBConfig configures the Postgres connection behind the durable log.
type DBConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

// ExchangeRecord is one appended requester/responder exchange. Rows are never
// updated in place.
type ExchangeRecord struct {
	bun.BaseModel `bun:"table:responder_exchanges,alias:re"`

	ID          int64     `bun:"id,pk,autoincrement"`
	RequesterID string    `bun:"requester_id,notnull"`
	Responder   string    `bun:"responder,notnull"`
	Text        string    `bun:"text,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

// DurableLog is the append-only source of truth for historical context.
type DurableLog struct {
	db *bun.DB
}

// OpenPostgres builds the bun DB handle for the durable log.
func OpenPostgres(cfg DBConfig) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", contractx.ErrValidation)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func NewDurableLog(db *bun.DB) *DurableLog {
	return &DurableLog{db: db}
}

// EnsureSchema creates the exchanges table when it does not exist yet.
func (l *DurableLog) EnsureSchema(ctx context.Context) error {
	_, err := l.db.NewCreateTable().
		Model((*ExchangeRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create responder_exchanges table: %w", err)
	}
	return nil
}

// Append inserts one exchange row.
func (l *DurableLog) Append(ctx context.Context, ex contractx.Exchange) error {
	if strings.TrimSpace(ex.RequesterID) == "" {
		return fmt.Errorf("%w: requester id is empty", contractx.ErrValidation)
	}
	record := &ExchangeRecord{
		RequesterID: ex.RequesterID,
		Responder:   string(ex.Responder),
		Text:        ex.Text,
		CreatedAt:   ex.At.UTC(),
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if _, err := l.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	return nil
}

// Recent returns up to window exchanges for a requester in chronological
// order, oldest first.
func (l *DurableLog) Recent(ctx context.Context, requesterID string, window int) ([]contractx.Exchange, error) {
	if window <= 0 {
		return nil, nil
	}
	var records []ExchangeRecord
	err := l.db.NewSelect().
		Model(&records).
		Where("requester_id = ?", requesterID).
		OrderExpr("created_at DESC").
		Limit(window).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("read recent exchanges: %w", err)
	}

	out := make([]contractx.Exchange, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		out = append(out, contractx.Exchange{
			RequesterID: r.RequesterID,
			Responder:   contractx.Label(r.Responder),
			Text:        r.Text,
			At:          r.CreatedAt,
		})
	}
	return out, nil
}
