package commands

import (
	"fmt"
	"time"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/pipeline"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintStageHeader prints a formatted stage header
func PrintStageHeader(title string) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", title)
	fmt.Println("───────────────────────────────────────────────────────────")
	fmt.Printf("  Started   : %s\n", time.Now().Format(time.RFC3339))
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintReport prints what a stage produced
func PrintReport(rep *pipeline.Report) {
	PrintKeyValue("Stage", rep.Stage, 12)
	PrintKeyValue("Run ID", rep.RunID, 12)
	PrintKeyValue("Duration", rep.Duration.Round(time.Millisecond).String(), 12)

	if d := rep.Decision; d != nil {
		PrintKeyValue("Event date", d.EventDate.Format(contracts.DateLayout), 12)
		PrintKeyValue("Coefficient", fmt.Sprintf("%.4f", d.Coefficient), 12)
		PrintKeyValue("p-value", fmt.Sprintf("%.4g", d.PValue), 12)
		PrintKeyValue("Significant", fmt.Sprintf("%t", d.Significant), 12)
	}
	if o := rep.Optimize; o != nil {
		PrintKeyValue("Trials", fmt.Sprintf("%d (failed %d)", len(o.Trials), o.Failed), 12)
		PrintKeyValue("Best MAPE", fmt.Sprintf("%.4f", o.BestLoss), 12)
		PrintKeyValue("Best trial", fmt.Sprintf("#%d", o.BestTrial), 12)
		PrintKeyValue("Params", fmt.Sprintf("cps=%.4g sps=%.4g fourier=%d",
			o.Best.ChangepointPriorScale, o.Best.SeasonalityPriorScale, o.Best.FourierOrder), 12)
	}
	if g := rep.Generate; g != nil {
		PrintKeyValue("Events", fmt.Sprintf("used=%t p=%.4g", g.UsedHolidays, g.Decision.PValue), 12)
	}
	if rep.Records > 0 || rep.Stage == "postprocess" {
		PrintKeyValue("Records", fmt.Sprintf("%d", rep.Records), 12)
	}
	if len(rep.Scores) > 0 {
		fmt.Println()
		widths := []int{24, 10}
		PrintTableHeader([]string{"Period", "MAPE (%)"}, widths)
		for _, p := range rep.Scores.Periods() {
			PrintTableRow([]string{p, fmt.Sprintf("%.2f", rep.Scores[p])}, widths)
		}
	}
}

// PrintFailure prints the error kind and step
func PrintFailure(err error) {
	fmt.Println()
	if kind, ok := contracts.KindOf(err); ok {
		PrintError(string(kind))
	}
	fmt.Printf("   %v\n", err)
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	// Separator line
	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	for i := 0; i < totalWidth; i++ {
		fmt.Print("─")
	}
	fmt.Println()
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}
