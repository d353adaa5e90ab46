package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/dva-forecast/internal/pipeline"
	"github.com/wonny/dva-forecast/pkg/config"
)

var significanceCmd = &cobra.Command{
	Use:   "significance",
	Short: "이벤트 유의성 검정",
	Long: `가장 이른 이벤트 날짜를 기준으로 사전/당일/사후 지표 OLS를 적합하고
당일 계수의 p-value가 0.05 미만인지 판정합니다.

Required:
  AD_REVENUE_DATA_PATH, PRIME_DAYS_PATH

Example:
  go run ./cmd/dva significance`,
	RunE: stageRunE(config.StageSignificance, "Event Significance Test"),
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "하이퍼파라미터 탐색 (TPE)",
	Long: `교차검증 MAPE를 최소화하는 changepoint/seasonality prior와
분기 계절성 fourier order를 탐색하고 best params 아티팩트를 기록합니다.

Required:
  TRAINING_DATA_PATH, BEST_PARAMS_PATH

Optional:
  OPTIMIZE_TRIALS (100), OPTIMIZE_PARALLELISM (1), OPTIMIZE_SEED (42)
  OPTIMIZE_SPACE_PATH (YAML 탐색 공간, 생략 시 기본 공간)

Example:
  go run ./cmd/dva optimize`,
	RunE: stageRunE(config.StageOptimize, "Hyperparameter Optimization"),
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "예측 생성 (raw)",
	Long: `저장된 하이퍼파라미터로 모델을 적합하고 history + 180일 예측을
raw 아티팩트(ds, yhat)로 기록합니다. 이벤트가 유의할 때만 PrimeDay 회귀 변수를 사용합니다.

Required:
  AD_REVENUE_DATA_PATH, BEST_PARAMS_PATH, FORECAST_OUTPUT_PATH
  PRIME_DAYS_PATH (GENERATE_EVENT_GATING=true)

Example:
  go run ./cmd/dva generate`,
	RunE: stageRunE(config.StageGenerate, "Forecast Generation"),
}

var postprocessCmd = &cobra.Command{
	Use:   "postprocess",
	Short: "예측 후처리 (final)",
	Long: `raw 아티팩트를 읽어 1.1 미만 값을 1.1로 보정하고
제외 상품을 제거한 뒤 final 아티팩트(ds, yhat, product_id)를 기록합니다.

Required:
  FORECAST_OUTPUT_PATH, FINAL_FORECAST_PATH

Example:
  go run ./cmd/dva postprocess`,
	RunE: stageRunE(config.StagePostprocess, "Forecast Post-processing"),
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "예측 검증 (MAPE)",
	Long: `fcst_<period> / actual_<period> 컬럼 쌍별 MAPE를 계산해 점수 아티팩트를 기록한 뒤
Pushgateway로 mape_<column> 게이지를 전송합니다.

Required:
  VALIDATION_FORECAST_PATH, ACTUAL_VALUES_PATH, MAPE_SCORES_PATH, PROMETHEUS_GATEWAY

Example:
  go run ./cmd/dva validate`,
	RunE: stageRunE(config.StageValidate, "Forecast Validation"),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "전체 실행 (optimize → generate → postprocess → validate)",
	Long: `모든 스테이지를 하나의 run id로 순차 실행합니다.
첫 실패에서 중단합니다.

Example:
  go run ./cmd/dva run
  go run ./cmd/dva run --skip-optimize`,
	RunE: runAll,
}

var skipOptimize bool

func init() {
	rootCmd.AddCommand(significanceCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(postprocessCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&skipOptimize, "skip-optimize", false, "기존 best params 사용")
}

// signalContext Ctrl+C로 진행 중인 스테이지 취소
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func stageRunE(stage, title string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		d, err := initDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		PrintStageHeader(title)
		rep, err := d.runner.Stage(ctx, stage)
		if rep != nil {
			PrintReport(rep)
		}
		if err != nil {
			return err
		}

		PrintSeparator()
		PrintSuccess(fmt.Sprintf("%s completed", stage))
		return nil
	}
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	d, err := initDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	stages := pipeline.FullRun
	if skipOptimize {
		stages = stages[1:]
	}

	PrintStageHeader("DVA Forecast Pipeline")
	reports, err := d.runner.RunAll(ctx, stages)
	for _, rep := range reports {
		PrintSeparator()
		PrintReport(rep)
	}
	if err != nil {
		return err
	}

	PrintSeparator()
	PrintSuccess(fmt.Sprintf("%d stages completed", len(reports)))
	return nil
}
