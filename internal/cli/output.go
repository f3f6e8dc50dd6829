package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mateusz-orawczak/pstryk-bridge/internal/snapshot"
)

func PrintJSON(data interface{}) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data to JSON: %w", err)
	}
	fmt.Println(string(b))
	return nil
}

func PrintTable(snap snapshot.Snapshot) error {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.ASCIIBorder()).
		BorderRow(true).
		StyleFunc(func(row, col int) lipgloss.Style {
			return cellStyle
		}).
		Headers("FIELD", "VALUE")

	rows := []struct {
		name  string
		value string
	}{
		{"Current price", formatPrice(snap.CurrentPrice)},
		{"Next hour price", formatPrice(snap.NextHourPrice)},
		{"Today avg price", formatPrice(snap.TodayPriceAvg)},
		{"Today cheapest hour", formatTime(snap.TodayCheapestAt)},
		{"Tomorrow avg price", formatPrice(snap.TomorrowPriceAvg)},
		{"Tomorrow cheapest hour", formatTime(snap.TomorrowCheapestAt)},
		{"Today usage", formatAmount(snap.TodayUsage, "kWh")},
		{"Today cost", formatAmount(snap.TodayCost, "PLN")},
		{"Week usage", formatAmount(snap.WeekUsage, "kWh")},
		{"Week cost", formatAmount(snap.WeekCost, "PLN")},
		{"Month usage", formatAmount(snap.MonthUsage, "kWh")},
		{"Month cost", formatAmount(snap.MonthCost, "PLN")},
	}
	for _, r := range rows {
		t.Row(r.name, r.value)
	}

	header := "Pstryk Energy Snapshot"
	footer := fmt.Sprintf("Updated: %s", time.Now().Format(time.RFC1123))

	fmt.Println(header)
	fmt.Println(t)
	fmt.Println(footer)

	return nil
}

func formatPrice(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.4f PLN/kWh", *v)
}

func formatAmount(v *float64, unit string) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.3f %s", *v, unit)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("Mon 15:04")
}
