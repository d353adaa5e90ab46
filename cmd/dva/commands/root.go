package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dva",
	Short: "DVA 광고 매출 예측 파이프라인",
	Long: `DVA Forecast Unified CLI

광고 매출 예측 파이프라인.
이벤트 유의성 검정 → 하이퍼파라미터 탐색 → 예측 생성 → 후처리 → 검증.
스테이지 간 전달은 CSV 아티팩트로만 이루어집니다.

Usage:
  go run ./cmd/dva [command]

Examples:
  go run ./cmd/dva significance
  go run ./cmd/dva optimize
  go run ./cmd/dva generate
  go run ./cmd/dva run
  go run ./cmd/dva scheduler start`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		PrintFailure(err)
	}
	return err
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}
