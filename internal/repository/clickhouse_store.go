package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	pkgch "PriceAgent/pkg/clickhouse"
	applogger "PriceAgent/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClickHouseSchema creates the agent tables. agent_state relies on
// ReplacingMergeTree(updated_at) so the newest row per agent wins on read with FINAL.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS agent_state (
		agent_id String,
		training_count UInt32,
		last_training_time Nullable(DateTime64(3, 'UTC')),
		accuracy Float64,
		updated_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at) ORDER BY agent_id`,
	`CREATE TABLE IF NOT EXISTS training_results (
		id String,
		agent_id String,
		cryptocurrency LowCardinality(String),
		accuracy Float64,
		predictions String,
		history String,
		timestamp DateTime64(3, 'UTC')
	) ENGINE = MergeTree ORDER BY timestamp`,
	`CREATE TABLE IF NOT EXISTS historical_data (
		cryptocurrency LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		price Decimal(38, 8)
	) ENGINE = ReplacingMergeTree ORDER BY (cryptocurrency, timestamp)`,
	`CREATE TABLE IF NOT EXISTS models (
		cryptocurrency LowCardinality(String),
		model_data String,
		accuracy Float64,
		version String,
		updated_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree ORDER BY (cryptocurrency, updated_at)`,
	`CREATE TABLE IF NOT EXISTS error_logs (
		context LowCardinality(String),
		error_message String,
		stack_trace String,
		timestamp DateTime64(3, 'UTC')
	) ENGINE = MergeTree ORDER BY timestamp`,
}

// ClickHouseStore implements StateStore on ClickHouse.
type ClickHouseStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

// NewClickHouseStore wraps an open client.
func NewClickHouseStore(client *pkgch.Client) *ClickHouseStore {
	return &ClickHouseStore{client: client, db: client.DB(), l: applogger.Nop()}
}

var _ domrepo.StateStore = (*ClickHouseStore)(nil)

// SetLogger injects a structured logger.
func (s *ClickHouseStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *ClickHouseStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, ClickHouseSchema)
}

func (s *ClickHouseStore) Health(ctx context.Context) error { return s.client.Health(ctx) }
func (s *ClickHouseStore) Close() error                     { return s.client.Close() }

func (s *ClickHouseStore) GetAgentState(ctx context.Context, agentID string) (*models.AgentState, error) {
	const q = `
		SELECT agent_id, training_count, last_training_time, accuracy, updated_at
		FROM agent_state FINAL
		WHERE agent_id = ?
		LIMIT 1
	`
	var (
		st    models.AgentState
		count uint32
		last  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q, agentID).Scan(&st.AgentID, &count, &last, &st.Accuracy, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		s.l.Error("clickhouse get_agent_state error", applogger.String("agent_id", agentID), applogger.Error(err))
		return nil, fmt.Errorf("get agent state: %w", err)
	}
	st.TrainingCount = int(count)
	if last.Valid {
		t := last.Time.UTC()
		st.LastTrainingTime = &t
	}
	return &st, nil
}

// InsertAgentState writes st only when no row exists for the agent.
func (s *ClickHouseStore) InsertAgentState(ctx context.Context, st models.AgentState) error {
	_, err := s.GetAgentState(ctx, st.AgentID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domrepo.ErrNotFound) {
		return err
	}
	return s.UpsertAgentState(ctx, st)
}

func (s *ClickHouseStore) UpsertAgentState(ctx context.Context, st models.AgentState) error {
	const q = `INSERT INTO agent_state (agent_id, training_count, last_training_time, accuracy, updated_at) VALUES (?, ?, ?, ?, ?)`
	var last interface{}
	if st.LastTrainingTime != nil {
		last = st.LastTrainingTime.UTC()
	}
	if _, err := s.db.ExecContext(ctx, q, st.AgentID, uint32(st.TrainingCount), last, st.Accuracy, st.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("upsert agent state: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) AppendTrainingResult(ctx context.Context, r models.TrainingResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	preds, err := json.Marshal(r.Predictions)
	if err != nil {
		return fmt.Errorf("encode predictions: %w", err)
	}
	hist, err := json.Marshal(r.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	const q = `INSERT INTO training_results (id, agent_id, cryptocurrency, accuracy, predictions, history, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.AgentID, r.AssetID, r.Accuracy, string(preds), string(hist), r.Timestamp.UTC()); err != nil {
		return fmt.Errorf("append training result: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) ListTrainingResults(ctx context.Context, limit int) ([]models.TrainingResult, error) {
	q := `SELECT id, agent_id, cryptocurrency, accuracy, predictions, history, timestamp FROM training_results ORDER BY timestamp DESC`
	rows, err := s.queryNewest(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list training results: %w", err)
	}
	defer rows.Close()

	var out []models.TrainingResult
	for rows.Next() {
		var (
			r           models.TrainingResult
			preds, hist string
		)
		if err := rows.Scan(&r.ID, &r.AgentID, &r.AssetID, &r.Accuracy, &preds, &hist, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan training result: %w", err)
		}
		if err := json.Unmarshal([]byte(preds), &r.Predictions); err != nil {
			return nil, fmt.Errorf("decode predictions: %w", err)
		}
		if hist != "" && hist != "null" {
			if err := json.Unmarshal([]byte(hist), &r.History); err != nil {
				return nil, fmt.Errorf("decode history: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) ListPricePoints(ctx context.Context, assetID string) ([]models.PricePoint, error) {
	const q = `
		SELECT timestamp, price
		FROM historical_data FINAL
		WHERE cryptocurrency = ?
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, q, assetID)
	if err != nil {
		s.l.Error("clickhouse list_price_points error", applogger.String("asset", assetID), applogger.Error(err))
		return nil, fmt.Errorf("list historical data: %w", err)
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var (
			ts    time.Time
			price decimal.Decimal
		)
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		out = append(out, models.PricePoint{Timestamp: ts.UTC(), Price: price})
	}
	return out, rows.Err()
}

// AppendPricePoints sends the points as a single native batch.
func (s *ClickHouseStore) AppendPricePoints(ctx context.Context, assetID string, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO historical_data (cryptocurrency, timestamp, price)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, assetID, p.Timestamp.UTC(), p.Price); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append price point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) SaveModel(ctx context.Context, m models.ModelSnapshot) error {
	const q = `INSERT INTO models (cryptocurrency, model_data, accuracy, version, updated_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, m.AssetID, string(m.ModelData), m.Accuracy, m.Version, m.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) LatestModel(ctx context.Context, assetID string) (*models.ModelSnapshot, error) {
	const q = `
		SELECT cryptocurrency, model_data, accuracy, version, updated_at
		FROM models
		WHERE cryptocurrency = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var (
		m    models.ModelSnapshot
		data string
	)
	err := s.db.QueryRowContext(ctx, q, assetID).Scan(&m.AssetID, &data, &m.Accuracy, &m.Version, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest model: %w", err)
	}
	m.ModelData = []byte(data)
	return &m, nil
}

func (s *ClickHouseStore) AppendErrorLog(ctx context.Context, e models.ErrorLogEntry) error {
	const q = `INSERT INTO error_logs (context, error_message, stack_trace, timestamp) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.Context, e.Message, e.Stack, e.Timestamp.UTC()); err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) ListErrorLogs(ctx context.Context, limit int) ([]models.ErrorLogEntry, error) {
	q := `SELECT context, error_message, stack_trace, timestamp FROM error_logs ORDER BY timestamp DESC`
	rows, err := s.queryNewest(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list error logs: %w", err)
	}
	defer rows.Close()

	var out []models.ErrorLogEntry
	for rows.Next() {
		var e models.ErrorLogEntry
		if err := rows.Scan(&e.Context, &e.Message, &e.Stack, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan error log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) queryNewest(ctx context.Context, q string, limit int) (*sql.Rows, error) {
	if limit > 0 {
		return s.db.QueryContext(ctx, q+" LIMIT ?", limit)
	}
	return s.db.QueryContext(ctx, q)
}
