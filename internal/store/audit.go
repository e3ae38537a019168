package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"fraudshield/pkg/fraud"
)

// AuditStore archives completed analyses in Postgres so investigators can
// replay any verdict later.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(dsn string) (*AuditStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &AuditStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return store, nil
}

func (s *AuditStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS fraud_analyses (
		analysis_id    VARCHAR(64) PRIMARY KEY,
		transaction_id VARCHAR(255) NOT NULL,
		fraud_detected BOOLEAN NOT NULL,
		fraud_score    DOUBLE PRECISION NOT NULL,
		risk_level     VARCHAR(16) NOT NULL,
		decision_method VARCHAR(32) NOT NULL,
		detail         JSONB NOT NULL,
		completed_at   TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at     TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_fraud_analyses_txn
		ON fraud_analyses (transaction_id, completed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_fraud_analyses_risk
		ON fraud_analyses (risk_level, completed_at DESC);
	`
	_, err := s.db.Exec(query)
	return err
}

// Record archives one analysis. The full result is stored as JSONB so no
// detail is lost even as the schema evolves.
func (s *AuditStore) Record(ctx context.Context, res *fraud.AnalysisResult) error {
	detail, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fraud_analyses
			(analysis_id, transaction_id, fraud_detected, fraud_score,
			 risk_level, decision_method, detail, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (analysis_id) DO NOTHING`,
		res.AnalysisID, res.TransactionID,
		res.Verdict.FraudDetected, res.Verdict.FraudScore,
		string(res.Verdict.RiskLevel), res.Verdict.DecisionMethod,
		detail, res.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record analysis: %w", err)
	}
	return nil
}

// Recent returns the latest analyses for a transaction, newest first.
func (s *AuditStore) Recent(ctx context.Context, transactionID string, limit int) ([]fraud.AnalysisResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT detail FROM fraud_analyses
		WHERE transaction_id = $1
		ORDER BY completed_at DESC
		LIMIT $2`, transactionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var results []fraud.AnalysisResult
	for rows.Next() {
		var detail []byte
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		var res fraud.AnalysisResult
		if err := json.Unmarshal(detail, &res); err != nil {
			return nil, fmt.Errorf("failed to decode analysis: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}
