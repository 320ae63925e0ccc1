// Package utils provides general-purpose formatting helpers for the loader,
// including byte sizes, Brazilian price strings, and time-of-day greetings.
package utils

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// FormatSize renders a byte count with B/KB/MB/GB units.
// Bytes are shown without decimals; larger units keep one decimal below 10.
// For example: 512 -> "512 B", 1536 -> "1.5 KB", 52428800 -> "50 MB".
func FormatSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB"}
	value := float64(size)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}

	switch {
	case i == 0:
		return fmt.Sprintf("%.0f %s", value, units[i])
	case value < 10:
		return fmt.Sprintf("%.1f %s", value, units[i])
	default:
		return fmt.Sprintf("%.0f %s", value, units[i])
	}
}

// FormatBRL renders a price in cents as "R$ 12,34"; zero renders as "Gratuito".
func FormatBRL(cents int) string {
	if cents <= 0 {
		return "Gratuito"
	}
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}

// Greeting returns the Portuguese greeting for the given hour of day (0-23).
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Bom dia"
	case hour >= 12 && hour < 18:
		return "Boa tarde"
	case hour >= 18 && hour < 24:
		return "Boa noite"
	default:
		return "Boa madrugada"
	}
}

// TruncateName cuts s to max runes and appends "..." when it was longer.
func TruncateName(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

// Percentage calculates the integer percentage of a/b.
// Returns 0 if a or b is 0.
func Percentage(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return int((float64(a) / float64(b)) * 100)
}

// FloatRound rounds a float to the specified number of decimal places.
func FloatRound(number float64, ndigits int) float64 {
	pow := math.Pow(10, float64(ndigits))
	return math.Round(number*pow) / pow
}
