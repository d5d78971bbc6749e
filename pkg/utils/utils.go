package utils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID 生成随机 ID
func GenerateID() string {
	return uuid.NewString()
}

// FormatTime 时间格式化
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// FormatDate formats a date the way Brazilian templates expect (dd/mm/yyyy).
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// FormatMoney renders v as BRL currency, e.g. R$ 1.234,56.
func FormatMoney(v float64) string {
	neg := v < 0
	cents := int64(math.Round(math.Abs(v) * 100))
	intPart := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", intPart)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("R$ %s,%02d", b.String(), frac)
	if neg {
		return "-" + out
	}
	return out
}

// DigitsOnly strips everything but 0-9 from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the whole calendar days from `from` to `to` (negative if to is earlier).
func DaysBetween(from, to time.Time) int {
	a := StartOfDay(from)
	b := StartOfDay(to.In(from.Location()))
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// ValidateMessage 验证消息内容
func ValidateMessage(content string) bool {
	if len(content) == 0 || len(content) > 4096 {
		return false
	}
	return true
}
