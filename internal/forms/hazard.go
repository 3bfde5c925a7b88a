package forms

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/extract"
	"github.com/tjfontaine/formflow/internal/schema"
)

// HazardReportID identifies the safety hazard inspection form.
const HazardReportID = "hazard_report"

// CheckTypeLeaderLed is the inspection type that requires checkLeader.
const CheckTypeLeaderLed = 8

// HazardReportSchema describes a hazard inspection record.
func HazardReportSchema() *schema.Schema {
	return schema.New(
		schema.Field{
			Name: "underCheckOrg", Kind: schema.KindString, Required: schema.Always,
			Description: "被检查部门",
		},
		schema.Field{
			Name: "checkDate", Kind: schema.KindString,
			Description: "检查日期 (YYYYMMDD)",
		},
		schema.Field{
			Name: "hiddenTroubleLevel", Kind: schema.KindEnum, Default: 7, OnInvalid: schema.Fallback,
			Description: "隐患级别",
			Options: []schema.Option{
				{Value: 5, Label: "重大隐患"},
				{Value: 6, Label: "较大隐患"},
				{Value: 7, Label: "一般隐患"},
				{Value: 8, Label: "轻微隐患"},
			},
		},
		schema.Field{
			Name: "checkType", Kind: schema.KindEnum, Default: 1, OnInvalid: schema.Fallback,
			Description: "检查类型",
			Options: []schema.Option{
				{Value: 1, Label: "日常检查"},
				{Value: 3, Label: "专项检查"},
				{Value: 4, Label: "月度检查"},
				{Value: 5, Label: "节假日检查"},
				{Value: 6, Label: "季度检查"},
				{Value: CheckTypeLeaderLed, Label: "领导带班检查"},
			},
		},
		schema.Field{
			Name: "hiddenTroubleType", Kind: schema.KindEnum, OnInvalid: schema.Fallback,
			Description: "隐患类别",
			Options: []schema.Option{
				{Value: 1, Label: "安全管理"}, {Value: 2, Label: "消防安全"}, {Value: 3, Label: "电气安全"},
				{Value: 4, Label: "机械设备"}, {Value: 5, Label: "特种设备"}, {Value: 6, Label: "危险化学品"},
				{Value: 7, Label: "职业健康"}, {Value: 8, Label: "作业环境"}, {Value: 9, Label: "高处作业"},
				{Value: 10, Label: "有限空间"}, {Value: 11, Label: "动火作业"}, {Value: 12, Label: "临时用电"},
				{Value: 13, Label: "起重吊装"}, {Value: 14, Label: "交通运输"}, {Value: 15, Label: "建构筑物"},
				{Value: 16, Label: "防汛防台"}, {Value: 17, Label: "应急管理"}, {Value: 18, Label: "其他"},
			},
		},
		schema.Field{
			Name: "illegalType", Kind: schema.KindEnum, OnInvalid: schema.Fallback,
			Description: "隐患标签",
			Options: []schema.Option{
				{Value: 1, Label: "违章指挥"},
				{Value: 2, Label: "违章作业"},
				{Value: 3, Label: "违反劳动纪律"},
				{Value: 4, Label: "管理缺陷"},
			},
		},
		schema.Field{
			Name: "checkMoney", Kind: schema.KindNumber, OnInvalid: schema.Fallback,
			Description: "考核金额(元)",
		},
		schema.Field{
			Name: "checkScore", Kind: schema.KindInteger, OnInvalid: schema.Fallback,
			Description: "考核分数",
		},
		schema.Field{
			Name: "checkLeader", Kind: schema.KindEnum, OnInvalid: schema.Fallback,
			Description: "带队领导",
			Required:    schema.When(schema.Equals("checkType", CheckTypeLeaderLed)),
			Options: []schema.Option{
				{Value: 1, Label: "总经理"}, {Value: 2, Label: "党委书记"}, {Value: 3, Label: "生产副总经理"},
				{Value: 4, Label: "安全副总经理"}, {Value: 6, Label: "总工程师"}, {Value: 7, Label: "安全总监"},
				{Value: 8, Label: "工会主席"}, {Value: 9, Label: "纪委书记"}, {Value: 10, Label: "机电副总经理"},
				{Value: 11, Label: "经营副总经理"}, {Value: 13, Label: "总会计师"}, {Value: 14, Label: "总经济师"},
			},
		},
	)
}

// HazardReport is the typed form of a finalized hazard record.
type HazardReport struct {
	UnderCheckOrg      string   `mapstructure:"underCheckOrg"`
	CheckDate          string   `mapstructure:"checkDate"`
	HiddenTroubleLevel int      `mapstructure:"hiddenTroubleLevel"`
	CheckType          int      `mapstructure:"checkType"`
	HiddenTroubleType  *int     `mapstructure:"hiddenTroubleType"`
	IllegalType        *int     `mapstructure:"illegalType"`
	CheckMoney         *float64 `mapstructure:"checkMoney"`
	CheckScore         *int     `mapstructure:"checkScore"`
	CheckLeader        *int     `mapstructure:"checkLeader"`
}

// Record converts the report back to a record with explicit nulls.
func (h HazardReport) Record() domain.Record {
	return domain.Record{
		"underCheckOrg":      h.UnderCheckOrg,
		"checkDate":          h.CheckDate,
		"hiddenTroubleLevel": h.HiddenTroubleLevel,
		"checkType":          h.CheckType,
		"hiddenTroubleType":  derefOrNil(h.HiddenTroubleType),
		"illegalType":        derefOrNil(h.IllegalType),
		"checkMoney":         derefOrNil(h.CheckMoney),
		"checkScore":         derefOrNil(h.CheckScore),
		"checkLeader":        derefOrNil(h.CheckLeader),
	}
}

// checkTypeKeywords override the model's checkType when the utterance names
// the inspection kind outright. Order matters: the first match wins.
var checkTypeKeywords = []struct {
	keyword   string
	checkType int
}{
	{"专项", 3},
	{"月度", 4},
	{"季度", 6},
}

// HazardReportFinalizer normalizes dates and applies keyword rules for the
// inspection type. Numeric strings and blanks are already resolved by
// validation.
func HazardReportFinalizer(now func() time.Time) extract.Finalizer {
	return func(record map[string]any, utterance string) (domain.Record, error) {
		var report HazardReport
		if err := decode(record, &report); err != nil {
			return nil, fmt.Errorf("decode hazard report: %w", err)
		}

		report.CheckDate = NormalizeDate(report.CheckDate, now())

		if report.CheckType != CheckTypeLeaderLed {
			normalized := strings.ToLower(utterance)
			for _, kw := range checkTypeKeywords {
				if strings.Contains(normalized, kw.keyword) {
					report.CheckType = kw.checkType
					break
				}
			}
		}

		return report.Record(), nil
	}
}

// HazardReportDefinition binds the hazard form together.
func HazardReportDefinition(tpl TemplateSource, now func() time.Time) (extract.Definition, error) {
	t, err := tpl.Lookup(HazardReportID)
	if err != nil {
		return extract.Definition{}, err
	}
	return extract.Definition{
		FormID:   HazardReportID,
		Title:    "安全隐患排查记录",
		Schema:   HazardReportSchema(),
		Template: t,
		Finalize: HazardReportFinalizer(now),
	}, nil
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func derefOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
