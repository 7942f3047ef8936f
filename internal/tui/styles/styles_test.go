package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestHealth(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		limit float64
		want  lipgloss.TerminalColor
	}{
		{"no limit", 1000, 0, SecondaryColor},
		{"well under", 10, 50, SecondaryColor},
		{"at half", 25, 50, SecondaryColor},
		{"near limit", 40, 50, WarningColor},
		{"at limit", 50, 50, WarningColor},
		{"over", 51, 50, ErrorColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Health(tt.value, tt.limit).GetForeground(); got != tt.want {
				t.Errorf("Health(%v, %v) foreground = %v, want %v", tt.value, tt.limit, got, tt.want)
			}
		})
	}
}
