package gsheet

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ==================== 工作表标题解析 ====================

// 标题约定："07.03.2024 (весна)" —— 日期 DD.MM.YYYY 或 DD.MM.YY，括号里是批次标签
var (
	titleDateRe  = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4}|\d{2})`)
	titleLabelRe = regexp.MustCompile(`\(([^)]+)\)`)
)

// 历史遗留：个别老表名没有日期，写死映射
var legacySheetDates = map[string]time.Time{
	"Старый прайс": time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC),
}

// ParseBatchTitle 从工作表标题提取批次日期与标签
// 解析不出日期时返回 (nil, 原始标题)
func ParseBatchTitle(title string) (*time.Time, string) {
	trimmed := strings.TrimSpace(title)

	if d, ok := legacySheetDates[trimmed]; ok {
		return &d, trimmed
	}

	m := titleDateRe.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, trimmed
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil, trimmed
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

	label := trimmed
	if lm := titleLabelRe.FindStringSubmatch(trimmed); lm != nil {
		label = strings.TrimSpace(lm[1])
	}
	return &d, label
}

// ParseSheetDate 解析 DD.MM.YYYY / DD.MM.YY 格式的单元格日期
func ParseSheetDate(raw string) *time.Time {
	m := titleDateRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &d
}
