package gsheet

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ==================== 数据源网关 ====================

// RawRow 一行原始单元格文本
type RawRow []string

// SheetInfo 远端工作表元信息
type SheetInfo struct {
	Title   string
	SheetID int64
}

// BatchHandle 一个批次（一张工作表）的句柄
type BatchHandle struct {
	Title   string
	SheetID int64
	// Date/Label 从标题解析；标题无日期时 Date 为 nil
	Date  *time.Time
	Label string
}

// API 对 Sheets 远端的最小访问面，测试用假实现替换
type API interface {
	ListSheets(ctx context.Context) ([]SheetInfo, error)
	GetValues(ctx context.Context, a1Range string) ([][]string, error)
}

// ==================== 真实实现（sheets/v4） ====================

type googleSheetsAPI struct {
	svc           *sheets.Service
	spreadsheetID string
}

func (g *googleSheetsAPI) ListSheets(ctx context.Context) ([]SheetInfo, error) {
	resp, err := g.svc.Spreadsheets.Get(g.spreadsheetID).
		Fields("sheets.properties.title", "sheets.properties.sheetId").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([]SheetInfo, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		out = append(out, SheetInfo{Title: s.Properties.Title, SheetID: s.Properties.SheetId})
	}
	return out, nil
}

func (g *googleSheetsAPI) GetValues(ctx context.Context, a1Range string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, a1Range).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, v := range row {
			cells = append(cells, fmt.Sprint(v))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// ==================== Client 网关客户端 ====================

// 内部/管理用工作表，跑批时排除
var excludedSheets = map[string]struct{}{
	"Настройки":  {},
	"Отчет":      {},
	"Отчёт":      {},
	"Справочник": {},
}

// Client 配额感知的表格数据源网关
type Client struct {
	api         API
	listBackoff Backoff
	readBackoff Backoff
}

// NewClient 用服务账号凭证文件建立只读 Sheets 访问
// 凭证/鉴权失败在这里直接报错，调用方视为致命、终止整次跑批
func NewClient(ctx context.Context, credentialsFile, spreadsheetID string) (*Client, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets 服务初始化失败: %w", err)
	}
	return NewClientWithAPI(&googleSheetsAPI{svc: svc, spreadsheetID: spreadsheetID}), nil
}

// NewClientWithAPI 注入访问面（测试用）
func NewClientWithAPI(api API) *Client {
	return &Client{
		api:         api,
		listBackoff: ListBackoff,
		readBackoff: ReadBackoff,
	}
}

// SetBackoff 覆盖退避参数（测试缩短等待用）
func (c *Client) SetBackoff(list, read Backoff) {
	c.listBackoff = list
	c.readBackoff = read
}

// ListBatches 列出全部批次句柄，按批次日期新到旧排序
// 标题解析不出日期的批次按最小日期比较，排在有日期批次之后
func (c *Client) ListBatches(ctx context.Context) ([]BatchHandle, error) {
	var infos []SheetInfo
	err := c.withRetry(ctx, c.listBackoff, "listBatches", func() error {
		var e error
		infos, e = c.api.ListSheets(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}

	handles := make([]BatchHandle, 0, len(infos))
	for _, info := range infos {
		if isInternalSheet(info.Title) {
			continue
		}
		date, label := ParseBatchTitle(info.Title)
		handles = append(handles, BatchHandle{
			Title:   info.Title,
			SheetID: info.SheetID,
			Date:    date,
			Label:   label,
		})
	}

	sort.SliceStable(handles, func(i, j int) bool {
		di, dj := handles[i].Date, handles[j].Date
		switch {
		case di == nil && dj == nil:
			return false
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.After(*dj)
		}
	})
	return handles, nil
}

// ReadRows 读取一个批次的全部行
func (c *Client) ReadRows(ctx context.Context, handle BatchHandle) ([]RawRow, error) {
	a1 := fmt.Sprintf("'%s'!A:Z", handle.Title)
	var values [][]string
	err := c.withRetry(ctx, c.readBackoff, "readRows("+handle.Title+")", func() error {
		var e error
		values, e = c.api.GetValues(ctx, a1)
		return e
	})
	if err != nil {
		return nil, err
	}
	rows := make([]RawRow, len(values))
	for i, v := range values {
		rows[i] = RawRow(v)
	}
	return rows, nil
}

// withRetry 限流错误按退避重试，其余错误立即包装浮出
func (c *Client) withRetry(ctx context.Context, b Backoff, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRateLimited(err) {
			return &TransportError{Op: op, Err: err}
		}
		lastErr = err
		if attempt == b.MaxAttempts {
			break
		}
		if serr := sleep(ctx, b.Delay(attempt)); serr != nil {
			return &TransportError{Op: op, Err: serr}
		}
	}
	return &RateLimitedError{Op: op, Attempts: b.MaxAttempts, Err: lastErr}
}

func isInternalSheet(title string) bool {
	trimmed := strings.TrimSpace(title)
	if strings.HasPrefix(trimmed, "!") {
		return true
	}
	_, excluded := excludedSheets[trimmed]
	return excluded
}
