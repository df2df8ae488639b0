package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	pkgpg "PriceAgent/pkg/postgres"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type pgAgentState struct {
	AgentID          string     `gorm:"column:agent_id;primaryKey"`
	TrainingCount    int        `gorm:"column:training_count;not null;default:0"`
	LastTrainingTime *time.Time `gorm:"column:last_training_time"`
	Accuracy         float64    `gorm:"column:accuracy;not null;default:0"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (pgAgentState) TableName() string { return "agent_state" }

type pgTrainingResult struct {
	ID          string                `gorm:"column:id;primaryKey"`
	AgentID     string                `gorm:"column:agent_id;index"`
	AssetID     string                `gorm:"column:cryptocurrency"`
	Accuracy    float64               `gorm:"column:accuracy"`
	Predictions []models.Prediction   `gorm:"column:predictions;serializer:json;type:jsonb"`
	History     []models.EpochMetrics `gorm:"column:history;serializer:json;type:jsonb"`
	Timestamp   time.Time             `gorm:"column:timestamp;index"`
}

func (pgTrainingResult) TableName() string { return "training_results" }

type pgHistoricalData struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement"`
	AssetID   string          `gorm:"column:cryptocurrency;index:idx_hist_asset_ts"`
	Timestamp time.Time       `gorm:"column:timestamp;index:idx_hist_asset_ts"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(24,8)"`
}

func (pgHistoricalData) TableName() string { return "historical_data" }

type pgModel struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	AssetID   string    `gorm:"column:cryptocurrency;index:idx_models_asset_updated"`
	ModelData []byte    `gorm:"column:model_data;type:bytea"`
	Accuracy  float64   `gorm:"column:accuracy"`
	Version   string    `gorm:"column:version"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false;index:idx_models_asset_updated"`
}

func (pgModel) TableName() string { return "models" }

type pgErrorLog struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Context   string    `gorm:"column:context;index"`
	Message   string    `gorm:"column:error_message;type:text"`
	Stack     string    `gorm:"column:stack_trace;type:text"`
	Timestamp time.Time `gorm:"column:timestamp;index"`
}

func (pgErrorLog) TableName() string { return "error_logs" }

// PostgresStore implements StateStore on Postgres through gorm.
type PostgresStore struct {
	client *pkgpg.Client
	db     *gorm.DB
}

// NewPostgresStore wraps an open client.
func NewPostgresStore(client *pkgpg.Client) *PostgresStore {
	return &PostgresStore{client: client, db: client.DB()}
}

var _ domrepo.StateStore = (*PostgresStore)(nil)

func (s *PostgresStore) Init(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&pgAgentState{}, &pgTrainingResult{}, &pgHistoricalData{}, &pgModel{}, &pgErrorLog{},
	); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Health(ctx context.Context) error { return s.client.Health(ctx) }
func (s *PostgresStore) Close() error                     { return s.client.Close() }

func (s *PostgresStore) GetAgentState(ctx context.Context, agentID string) (*models.AgentState, error) {
	var row pgAgentState
	err := s.db.WithContext(ctx).First(&row, "agent_id = ?", agentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent state: %w", err)
	}
	return &models.AgentState{
		AgentID:          row.AgentID,
		TrainingCount:    row.TrainingCount,
		LastTrainingTime: row.LastTrainingTime,
		Accuracy:         row.Accuracy,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func (s *PostgresStore) InsertAgentState(ctx context.Context, st models.AgentState) error {
	row := toPGAgentState(st)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("insert agent state: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertAgentState(ctx context.Context, st models.AgentState) error {
	row := toPGAgentState(st)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert agent state: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendTrainingResult(ctx context.Context, r models.TrainingResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row := pgTrainingResult{
		ID:          r.ID,
		AgentID:     r.AgentID,
		AssetID:     r.AssetID,
		Accuracy:    r.Accuracy,
		Predictions: r.Predictions,
		History:     r.History,
		Timestamp:   r.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append training result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTrainingResults(ctx context.Context, limit int) ([]models.TrainingResult, error) {
	var rows []pgTrainingResult
	q := s.db.WithContext(ctx).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list training results: %w", err)
	}
	out := make([]models.TrainingResult, len(rows))
	for i, row := range rows {
		out[i] = models.TrainingResult{
			ID:          row.ID,
			AgentID:     row.AgentID,
			AssetID:     row.AssetID,
			Accuracy:    row.Accuracy,
			Predictions: row.Predictions,
			History:     row.History,
			Timestamp:   row.Timestamp,
		}
	}
	return out, nil
}

func (s *PostgresStore) ListPricePoints(ctx context.Context, assetID string) ([]models.PricePoint, error) {
	var rows []pgHistoricalData
	err := s.db.WithContext(ctx).
		Where("cryptocurrency = ?", assetID).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list historical data: %w", err)
	}
	out := make([]models.PricePoint, len(rows))
	for i, row := range rows {
		out[i] = models.PricePoint{Timestamp: row.Timestamp, Price: row.Price}
	}
	return out, nil
}

func (s *PostgresStore) AppendPricePoints(ctx context.Context, assetID string, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	rows := make([]pgHistoricalData, len(points))
	for i, p := range points {
		rows[i] = pgHistoricalData{AssetID: assetID, Timestamp: p.Timestamp, Price: p.Price}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("append historical data: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveModel(ctx context.Context, m models.ModelSnapshot) error {
	row := pgModel{
		AssetID:   m.AssetID,
		ModelData: m.ModelData,
		Accuracy:  m.Accuracy,
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestModel(ctx context.Context, assetID string) (*models.ModelSnapshot, error) {
	var row pgModel
	err := s.db.WithContext(ctx).
		Where("cryptocurrency = ?", assetID).
		Order("updated_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest model: %w", err)
	}
	return &models.ModelSnapshot{
		AssetID:   row.AssetID,
		ModelData: row.ModelData,
		Accuracy:  row.Accuracy,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *PostgresStore) AppendErrorLog(ctx context.Context, e models.ErrorLogEntry) error {
	row := pgErrorLog{Context: e.Context, Message: e.Message, Stack: e.Stack, Timestamp: e.Timestamp}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListErrorLogs(ctx context.Context, limit int) ([]models.ErrorLogEntry, error) {
	var rows []pgErrorLog
	q := s.db.WithContext(ctx).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list error logs: %w", err)
	}
	out := make([]models.ErrorLogEntry, len(rows))
	for i, row := range rows {
		out[i] = models.ErrorLogEntry{Context: row.Context, Message: row.Message, Stack: row.Stack, Timestamp: row.Timestamp}
	}
	return out, nil
}

func toPGAgentState(st models.AgentState) pgAgentState {
	return pgAgentState{
		AgentID:          st.AgentID,
		TrainingCount:    st.TrainingCount,
		LastTrainingTime: st.LastTrainingTime,
		Accuracy:         st.Accuracy,
		UpdatedAt:        st.UpdatedAt,
	}
}
