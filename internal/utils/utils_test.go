package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{20 * 1024, "20 KB"},
		{50 * 1024 * 1024, "50 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, FormatSize(tt.in))
		})
	}
}

func TestFormatBRL(t *testing.T) {
	require.Equal(t, "Gratuito", FormatBRL(0))
	require.Equal(t, "R$ 59,90", FormatBRL(5990))
	require.Equal(t, "R$ 0,05", FormatBRL(5))
}

func TestGreeting(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, "Boa madrugada"},
		{4, "Boa madrugada"},
		{5, "Bom dia"},
		{11, "Bom dia"},
		{12, "Boa tarde"},
		{17, "Boa tarde"},
		{18, "Boa noite"},
		{23, "Boa noite"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Greeting(tt.hour), "hour %d", tt.hour)
	}
}

func TestTruncateName(t *testing.T) {
	require.Equal(t, "Dota 2", TruncateName("  Dota 2 ", 100))
	long := strings.Repeat("á", 120)
	got := TruncateName(long, 100)
	require.True(t, strings.HasSuffix(got, "..."))
	require.Equal(t, 103, len([]rune(got)))
}

func TestPercentage(t *testing.T) {
	require.Equal(t, 0, Percentage(0, 10))
	require.Equal(t, 50, Percentage(5, 10))
}

func TestFloatRound(t *testing.T) {
	require.Equal(t, 1.23, FloatRound(1.2345, 2))
	require.Equal(t, 2.0, FloatRound(1.96, 1))
}
