package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/dva-forecast/internal/api"
	"github.com/wonny/dva-forecast/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "아티팩트 조회 API 서버 시작",
	Long: `파이프라인 아티팩트를 읽기 전용으로 제공하는 REST API 서버를 시작합니다.

Endpoints:
  GET  /health               - Health check (DB 활성 시 풀 상태 포함)
  GET  /api/params           - best hyperparameters
  GET  /api/forecast/raw     - raw 예측 (?from=&to=)
  GET  /api/forecast/final   - final 예측 (?from=&to=&product_id=)
  GET  /api/scores           - 최신 MAPE 점수

Example:
  go run ./cmd/dva api
  go run ./cmd/dva api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== DVA Forecast API Server ===")

	d, err := initDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	// Override port if flag is set
	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	var health handlers.HealthChecker
	if d.db != nil {
		health = d.db
	}

	router := api.NewRouter(
		handlers.NewArtifactHandler(d.cfg, d.log),
		handlers.NewHealthHandler(health),
		d.log,
	)
	server := api.New(d.cfg, d.log, router)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", d.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := server.Run(ctx); err != nil {
		return err
	}

	d.log.Info("Server stopped")
	return nil
}
