package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/dva-forecast/internal/contracts"
)

// DB pgxpool.Pool / pgxmock 공통 인터페이스
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunRecord 스테이지 실행 기록
type RunRecord struct {
	RunID      string
	Stage      string
	Status     string // success / failed
	ErrorKind  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Repository 파이프라인 이력 저장소 (analytics 스키마)
// CSV 아티팩트가 원본이고 DB는 이력 미러
type Repository struct {
	db DB
}

// NewRepository 새 저장소 생성
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// SaveRun 스테이지 실행 기록 저장
func (r *Repository) SaveRun(ctx context.Context, run RunRecord) error {
	query := `
		INSERT INTO analytics.dva_pipeline_runs
			(run_id, stage, status, error_kind, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, stage) DO UPDATE SET
			status = EXCLUDED.status,
			error_kind = EXCLUDED.error_kind,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`

	_, err := r.db.Exec(ctx, query,
		run.RunID, run.Stage, run.Status, run.ErrorKind, run.Error, run.StartedAt, run.FinishedAt)
	return err
}

// SaveBestParams 최적화 결과 저장
func (r *Repository) SaveBestParams(ctx context.Context, runID string, hp contracts.HyperparameterSet, loss float64, trials, failed int) error {
	query := `
		INSERT INTO analytics.dva_best_params
			(run_id, changepoint_prior_scale, seasonality_prior_scale, fourier_order, best_loss, trials, failed_trials)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		runID, hp.ChangepointPriorScale, hp.SeasonalityPriorScale, hp.FourierOrder, loss, trials, failed)
	return err
}

// LatestBestParams 가장 최근 최적화 결과 조회 (없으면 nil)
func (r *Repository) LatestBestParams(ctx context.Context) (*contracts.HyperparameterSet, error) {
	query := `
		SELECT changepoint_prior_scale, seasonality_prior_scale, fourier_order
		FROM analytics.dva_best_params
		ORDER BY created_at DESC
		LIMIT 1`

	var hp contracts.HyperparameterSet
	err := r.db.QueryRow(ctx, query).Scan(&hp.ChangepointPriorScale, &hp.SeasonalityPriorScale, &hp.FourierOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest best params: %w", err)
	}
	return &hp, nil
}

// SaveForecast 예측 레코드 저장 (run/artifact 단위 교체)
// artifact: raw / final
func (r *Repository) SaveForecast(ctx context.Context, runID, artifact string, recs []contracts.ForecastRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM analytics.dva_forecasts WHERE run_id = $1 AND artifact = $2`,
		runID, artifact); err != nil {
		return fmt.Errorf("clear forecast: %w", err)
	}

	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = []any{runID, artifact, rec.Date, rec.Predicted, rec.ProductID}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"analytics", "dva_forecasts"},
		[]string{"run_id", "artifact", "ds", "yhat", "product_id"},
		pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy forecast: %w", err)
	}

	return tx.Commit(ctx)
}

// SaveScores 정확도 점수 저장
func (r *Repository) SaveScores(ctx context.Context, runID string, scores contracts.AccuracyScores) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO analytics.dva_accuracy_scores (run_id, period, mape)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, period) DO UPDATE SET mape = EXCLUDED.mape`

	for _, period := range scores.Periods() {
		if _, err := tx.Exec(ctx, query, runID, period, scores[period]); err != nil {
			return fmt.Errorf("save score %s: %w", period, err)
		}
	}

	return tx.Commit(ctx)
}
