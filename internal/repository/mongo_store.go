package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceAgent/internal/domain/models"
	domrepo "PriceAgent/internal/domain/repository"
	pkgmongo "PriceAgent/pkg/mongodb"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collAgentState      = "agent_state"
	collTrainingResults = "training_results"
	collHistoricalData  = "historical_data"
	collModels          = "models"
	collErrorLogs       = "error_logs"
)

type mongoAgentState struct {
	AgentID          string     `bson:"_id"`
	TrainingCount    int        `bson:"training_count"`
	LastTrainingTime *time.Time `bson:"last_training_time,omitempty"`
	Accuracy         float64    `bson:"accuracy"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

type mongoPrediction struct {
	Date  time.Time `bson:"date"`
	Price string    `bson:"price"`
}

type mongoEpoch struct {
	Epoch   int     `bson:"epoch"`
	Loss    float64 `bson:"loss"`
	ValLoss float64 `bson:"val_loss"`
}

type mongoTrainingResult struct {
	ID          string            `bson:"_id"`
	AgentID     string            `bson:"agent_id"`
	AssetID     string            `bson:"cryptocurrency"`
	Accuracy    float64           `bson:"accuracy"`
	Predictions []mongoPrediction `bson:"predictions"`
	History     []mongoEpoch      `bson:"history,omitempty"`
	Timestamp   time.Time         `bson:"timestamp"`
}

type mongoPricePoint struct {
	AssetID   string    `bson:"cryptocurrency"`
	Timestamp time.Time `bson:"timestamp"`
	Price     string    `bson:"price"`
}

type mongoModel struct {
	AssetID   string    `bson:"cryptocurrency"`
	ModelData []byte    `bson:"model_data"`
	Accuracy  float64   `bson:"accuracy"`
	Version   string    `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type mongoErrorLog struct {
	Context   string    `bson:"context"`
	Message   string    `bson:"error_message"`
	Stack     string    `bson:"stack_trace"`
	Timestamp time.Time `bson:"timestamp"`
}

// MongoStore implements StateStore on MongoDB. Decimal prices are stored as strings.
type MongoStore struct {
	client *pkgmongo.Client
}

// NewMongoStore wraps a connected client.
func NewMongoStore(client *pkgmongo.Client) *MongoStore {
	return &MongoStore{client: client}
}

var _ domrepo.StateStore = (*MongoStore)(nil)

func (s *MongoStore) Init(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collTrainingResults: {{Keys: bson.D{{Key: "timestamp", Value: -1}}}},
		collHistoricalData: {{
			Keys:    bson.D{{Key: "cryptocurrency", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		collModels:    {{Keys: bson.D{{Key: "cryptocurrency", Value: 1}, {Key: "updated_at", Value: -1}}}},
		collErrorLogs: {{Keys: bson.D{{Key: "timestamp", Value: -1}}}},
	}
	for coll, idx := range indexes {
		if _, err := s.client.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("mongo index %s: %w", coll, err)
		}
	}
	return nil
}

func (s *MongoStore) Health(ctx context.Context) error { return s.client.Health(ctx) }
func (s *MongoStore) Close() error                     { return s.client.Close() }

func (s *MongoStore) GetAgentState(ctx context.Context, agentID string) (*models.AgentState, error) {
	var doc mongoAgentState
	err := s.client.Collection(collAgentState).FindOne(ctx, bson.M{"_id": agentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent state: %w", err)
	}
	return &models.AgentState{
		AgentID:          doc.AgentID,
		TrainingCount:    doc.TrainingCount,
		LastTrainingTime: doc.LastTrainingTime,
		Accuracy:         doc.Accuracy,
		UpdatedAt:        doc.UpdatedAt,
	}, nil
}

func (s *MongoStore) InsertAgentState(ctx context.Context, st models.AgentState) error {
	_, err := s.client.Collection(collAgentState).InsertOne(ctx, toMongoAgentState(st))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert agent state: %w", err)
	}
	return nil
}

func (s *MongoStore) UpsertAgentState(ctx context.Context, st models.AgentState) error {
	_, err := s.client.Collection(collAgentState).ReplaceOne(ctx,
		bson.M{"_id": st.AgentID},
		toMongoAgentState(st),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert agent state: %w", err)
	}
	return nil
}

func (s *MongoStore) AppendTrainingResult(ctx context.Context, r models.TrainingResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	doc := mongoTrainingResult{
		ID:        r.ID,
		AgentID:   r.AgentID,
		AssetID:   r.AssetID,
		Accuracy:  r.Accuracy,
		Timestamp: r.Timestamp,
	}
	for _, p := range r.Predictions {
		doc.Predictions = append(doc.Predictions, mongoPrediction{Date: p.Date, Price: p.Price.String()})
	}
	for _, h := range r.History {
		doc.History = append(doc.History, mongoEpoch{Epoch: h.Epoch, Loss: h.Loss, ValLoss: h.ValLoss})
	}
	if _, err := s.client.Collection(collTrainingResults).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append training result: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTrainingResults(ctx context.Context, limit int) ([]models.TrainingResult, error) {
	var docs []mongoTrainingResult
	if err := s.findNewest(ctx, collTrainingResults, bson.M{}, limit, &docs); err != nil {
		return nil, fmt.Errorf("list training results: %w", err)
	}
	out := make([]models.TrainingResult, len(docs))
	for i, d := range docs {
		r := models.TrainingResult{
			ID:        d.ID,
			AgentID:   d.AgentID,
			AssetID:   d.AssetID,
			Accuracy:  d.Accuracy,
			Timestamp: d.Timestamp,
		}
		for _, p := range d.Predictions {
			price, err := decimal.NewFromString(p.Price)
			if err != nil {
				return nil, fmt.Errorf("decode prediction price: %w", err)
			}
			r.Predictions = append(r.Predictions, models.Prediction{Date: p.Date, Price: price})
		}
		for _, h := range d.History {
			r.History = append(r.History, models.EpochMetrics{Epoch: h.Epoch, Loss: h.Loss, ValLoss: h.ValLoss})
		}
		out[i] = r
	}
	return out, nil
}

func (s *MongoStore) ListPricePoints(ctx context.Context, assetID string) ([]models.PricePoint, error) {
	cur, err := s.client.Collection(collHistoricalData).Find(ctx,
		bson.M{"cryptocurrency": assetID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list historical data: %w", err)
	}
	var docs []mongoPricePoint
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode historical data: %w", err)
	}
	out := make([]models.PricePoint, 0, len(docs))
	for _, d := range docs {
		price, err := decimal.NewFromString(d.Price)
		if err != nil {
			return nil, fmt.Errorf("decode price: %w", err)
		}
		out = append(out, models.PricePoint{Timestamp: d.Timestamp, Price: price})
	}
	return out, nil
}

// AppendPricePoints upserts by (asset, timestamp) so refetches do not duplicate days.
func (s *MongoStore) AppendPricePoints(ctx context.Context, assetID string, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, len(points))
	for i, p := range points {
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"cryptocurrency": assetID, "timestamp": p.Timestamp}).
			SetReplacement(mongoPricePoint{AssetID: assetID, Timestamp: p.Timestamp, Price: p.Price.String()}).
			SetUpsert(true)
	}
	_, err := s.client.Collection(collHistoricalData).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("append historical data: %w", err)
	}
	return nil
}

func (s *MongoStore) SaveModel(ctx context.Context, m models.ModelSnapshot) error {
	doc := mongoModel{
		AssetID:   m.AssetID,
		ModelData: m.ModelData,
		Accuracy:  m.Accuracy,
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
	if _, err := s.client.Collection(collModels).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

func (s *MongoStore) LatestModel(ctx context.Context, assetID string) (*models.ModelSnapshot, error) {
	var doc mongoModel
	err := s.client.Collection(collModels).FindOne(ctx,
		bson.M{"cryptocurrency": assetID},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest model: %w", err)
	}
	return &models.ModelSnapshot{
		AssetID:   doc.AssetID,
		ModelData: doc.ModelData,
		Accuracy:  doc.Accuracy,
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *MongoStore) AppendErrorLog(ctx context.Context, e models.ErrorLogEntry) error {
	doc := mongoErrorLog{Context: e.Context, Message: e.Message, Stack: e.Stack, Timestamp: e.Timestamp}
	if _, err := s.client.Collection(collErrorLogs).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}

func (s *MongoStore) ListErrorLogs(ctx context.Context, limit int) ([]models.ErrorLogEntry, error) {
	var docs []mongoErrorLog
	if err := s.findNewest(ctx, collErrorLogs, bson.M{}, limit, &docs); err != nil {
		return nil, fmt.Errorf("list error logs: %w", err)
	}
	out := make([]models.ErrorLogEntry, len(docs))
	for i, d := range docs {
		out[i] = models.ErrorLogEntry{Context: d.Context, Message: d.Message, Stack: d.Stack, Timestamp: d.Timestamp}
	}
	return out, nil
}

func (s *MongoStore) findNewest(ctx context.Context, coll string, filter bson.M, limit int, out interface{}) error {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.client.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func toMongoAgentState(st models.AgentState) mongoAgentState {
	return mongoAgentState{
		AgentID:          st.AgentID,
		TrainingCount:    st.TrainingCount,
		LastTrainingTime: st.LastTrainingTime,
		Accuracy:         st.Accuracy,
		UpdatedAt:        st.UpdatedAt,
	}
}
