package gsheet

import (
	"testing"
	"time"
)

func TestParseBatchTitle_FullDate(t *testing.T) {
	d, label := ParseBatchTitle("07.03.2024 (весна)")
	if d == nil {
		t.Fatal("日期应该解析成功")
	}
	want := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	if !d.Equal(want) {
		t.Errorf("日期 = %v, 期望 %v", d, want)
	}
	if label != "весна" {
		t.Errorf("标签 = %q, 期望 %q", label, "весна")
	}
}

func TestParseBatchTitle_TwoDigitYear(t *testing.T) {
	d, _ := ParseBatchTitle("15.11.23")
	if d == nil {
		t.Fatal("两位年份应该解析成功")
	}
	if d.Year() != 2023 {
		t.Errorf("年份 = %d, 期望 2023", d.Year())
	}
}

func TestParseBatchTitle_NoDate(t *testing.T) {
	d, label := ParseBatchTitle("Просто текст")
	if d != nil {
		t.Errorf("无日期标题不应解析出日期，得到 %v", d)
	}
	if label != "Просто текст" {
		t.Errorf("无日期时标签应回退为原始标题，得到 %q", label)
	}
}

func TestParseBatchTitle_NoLabel(t *testing.T) {
	d, label := ParseBatchTitle("01.02.2024")
	if d == nil {
		t.Fatal("日期应该解析成功")
	}
	if label != "01.02.2024" {
		t.Errorf("无括号标签时应回退为原始标题，得到 %q", label)
	}
}

func TestParseBatchTitle_Legacy(t *testing.T) {
	d, label := ParseBatchTitle("Старый прайс")
	if d == nil {
		t.Fatal("历史表名应走写死的日期映射")
	}
	want := time.Date(2021, 1, 10, 0, 0, 0, 0, time.UTC)
	if !d.Equal(want) {
		t.Errorf("日期 = %v, 期望 %v", d, want)
	}
	if label != "Старый прайс" {
		t.Errorf("标签 = %q", label)
	}
}

func TestParseBatchTitle_BogusDate(t *testing.T) {
	if d, _ := ParseBatchTitle("99.99.2024"); d != nil {
		t.Errorf("非法日期不应解析成功，得到 %v", d)
	}
}

func TestParseSheetDate(t *testing.T) {
	d := ParseSheetDate(" 05.06.2025 ")
	if d == nil {
		t.Fatal("日期应该解析成功")
	}
	want := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	if !d.Equal(want) {
		t.Errorf("日期 = %v, 期望 %v", d, want)
	}

	if ParseSheetDate("не дата") != nil {
		t.Error("非日期文本应返回 nil")
	}
}
