package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/model"
	"github.com/nclamvn/english-center-cms/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoCharges    = errors.New("没有符合条件的收费单")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

const (
	// calendarDefaultBefore / calendarDefaultAfter 未指定范围时日历导出的时间窗口
	calendarDefaultBefore = 30 * 24 * time.Hour
	calendarDefaultAfter  = 180 * 24 * time.Hour
	calendarProductID     = "-//English Center CMS//Sessions//VI"
)

var chargeStatusNames = map[string]string{
	model.ChargeStatusPending:   "待付款",
	model.ChargeStatusPaid:      "已付款",
	model.ChargeStatusPartial:   "部分付款",
	model.ChargeStatusCancelled: "已取消",
}

// ExportService 导出业务接口
//
//   - 收费单导出为 Excel (.xlsx)，供财务对账
//   - 班级课次导出为 iCalendar (.ics)，供教师订阅
//
// 导出内容以 bytes.Buffer 返回，由 Handler 层设置响应头后写出
type ExportService interface {
	ExportCharges(ctx context.Context, req *dto.ChargeListRequest) (*bytes.Buffer, string, error)
	// ExportClassCalendar from / to 为空时使用默认窗口
	ExportClassCalendar(ctx context.Context, classID string, from, to *time.Time) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	policy *LockPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, policy *LockPolicy, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, policy: policy, logger: logger, now: time.Now}
}

// ═══════════════════════════════════════════════════════════
// ExportCharges — 导出收费单为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "收费单"
//   - 列：学员 / 学员ID / 周期开始 / 周期结束 / 计费课次 / 单价 / 金额 / 状态
//   - 末行合计金额

func (s *exportService) ExportCharges(ctx context.Context, req *dto.ChargeListRequest) (*bytes.Buffer, string, error) {
	filter, verr := chargeFilter(req)
	if verr != nil {
		return nil, "", verr
	}

	charges, _, err := s.repo.Charge.List(ctx, filter, 0, 0)
	if err != nil {
		s.logger.Error("查询收费单失败", zap.Error(err))
		return nil, "", err
	}
	if len(charges) == 0 {
		return nil, "", ErrExportNoCharges
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "收费单"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 22)
	f.SetColWidth(sheetName, "B", "B", 38)
	f.SetColWidth(sheetName, "C", "D", 12)
	f.SetColWidth(sheetName, "E", "E", 10)
	f.SetColWidth(sheetName, "F", "G", 14)
	f.SetColWidth(sheetName, "H", "H", 10)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	moneyStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 3}) // #,##0

	headers := []string{"学员", "学员ID", "周期开始", "周期结束", "计费课次", "单价", "金额", "状态"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 1), h)
	}
	f.SetCellStyle(sheetName, "A1", cell(colName(len(headers)-1), 1), headerStyle)

	row := 2
	var total int64
	for i := range charges {
		c := &charges[i]
		calc := c.CalcJSON.Data()
		name := ""
		if c.Student != nil {
			name = c.Student.FullName
		}
		f.SetCellValue(sheetName, cell("A", row), name)
		f.SetCellValue(sheetName, cell("B", row), c.StudentID)
		f.SetCellValue(sheetName, cell("C", row), c.PeriodStart.Format(time.DateOnly))
		f.SetCellValue(sheetName, cell("D", row), c.PeriodEnd.Format(time.DateOnly))
		f.SetCellValue(sheetName, cell("E", row), calc.ChargeableSessions)
		f.SetCellValue(sheetName, cell("F", row), calc.PricePerSession)
		f.SetCellValue(sheetName, cell("G", row), c.Amount)
		f.SetCellValue(sheetName, cell("H", row), chargeStatusName(c.Status))
		total += c.Amount
		row++
	}
	f.SetCellValue(sheetName, cell("F", row), "合计")
	f.SetCellValue(sheetName, cell("G", row), total)
	f.SetCellStyle(sheetName, cell("F", 2), cell("G", row), moneyStyle)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := "charges.xlsx"
	if req.PeriodStart != "" {
		filename = fmt.Sprintf("charges_%s.xlsx", req.PeriodStart)
	}
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportClassCalendar — 导出班级课次为 iCalendar
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportClassCalendar(ctx context.Context, classID string, from, to *time.Time) (*bytes.Buffer, string, error) {
	class, err := s.repo.Class.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrClassNotFound
		}
		s.logger.Error("查询班级失败", zap.String("class_id", classID), zap.Error(err))
		return nil, "", err
	}

	now := s.now()
	rangeFrom := now.Add(-calendarDefaultBefore)
	rangeTo := now.Add(calendarDefaultAfter)
	if from != nil {
		rangeFrom = *from
	}
	if to != nil {
		rangeTo = *to
	}
	if rangeTo.Before(rangeFrom) {
		return nil, "", newValidationError("to", "结束日期不能早于开始日期")
	}

	sessions, err := s.repo.Session.ListByClassAndPeriod(ctx, classID, rangeFrom, rangeTo)
	if err != nil {
		s.logger.Error("查询课次失败", zap.String("class_id", classID), zap.Error(err))
		return nil, "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName(class.Name)
	cal.SetXWRTimezone(s.policy.Location().String())

	for i := range sessions {
		sess := &sessions[i]
		start, err := s.policy.SessionTime(sess.Date, sess.StartTime)
		if err != nil {
			s.logger.Warn("课次时间无效，跳过", zap.String("session_id", sess.SessionID), zap.Error(err))
			continue
		}
		end, err := s.policy.SessionTime(sess.Date, sess.EndTime)
		if err != nil {
			s.logger.Warn("课次时间无效，跳过", zap.String("session_id", sess.SessionID), zap.Error(err))
			continue
		}

		event := cal.AddEvent(sess.SessionID + "@english-center-cms")
		event.SetDtStampTime(now)
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(class.Name)
		if sess.Room != "" {
			event.SetLocation(sess.Room)
		}
		event.SetDescription(fmt.Sprintf("mode=%s status=%s", sess.Mode, sess.Status))
		event.SetStatus(ics.ObjectStatusConfirmed)
	}

	buf := bytes.NewBufferString(cal.Serialize())
	return buf, fmt.Sprintf("class_%s_sessions.ics", classID), nil
}

// ── 辅助函数 ──

func chargeStatusName(status string) string {
	if name, ok := chargeStatusNames[status]; ok {
		return name
	}
	return status
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
