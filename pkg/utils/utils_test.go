package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "R$ 0,00"},
		{9.9, "R$ 9,90"},
		{1234.56, "R$ 1.234,56"},
		{1000000, "R$ 1.000.000,00"},
		{-50.5, "-R$ 50,50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMoney(tt.in))
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "5511987654321", DigitsOnly("+55 (11) 98765-4321"))
	assert.Equal(t, "", DigitsOnly("abc"))
}

func TestDaysBetween(t *testing.T) {
	base := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysBetween(base, base.Add(30*time.Minute).Add(-time.Hour)))
	assert.Equal(t, 1, DaysBetween(base, base.Add(2*time.Hour)))
	assert.Equal(t, 5, DaysBetween(base.AddDate(0, 0, -5), base))
	assert.Equal(t, -2, DaysBetween(base, base.AddDate(0, 0, -2)))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "05/01/2024", FormatDate(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)))
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
	assert.Equal(t, 4, strings.Count(a, "-"))
}

func TestValidateMessage(t *testing.T) {
	assert.False(t, ValidateMessage(""))
	assert.True(t, ValidateMessage("oi"))
	assert.False(t, ValidateMessage(strings.Repeat("x", 4097)))
}
