package forms

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/extract"
	"github.com/tjfontaine/formflow/internal/schema"
)

// ExpenseClaimID identifies the expense reimbursement form.
const ExpenseClaimID = "expense_claim"

// ApprovalThreshold is the amount above which a claim needs an approver.
const ApprovalThreshold = 1000

// Expense categories.
const (
	CategoryTravel = 1
	CategoryMeals  = 2
	CategoryOther  = 3
)

// ExpenseClaimSchema describes a reimbursement claim.
func ExpenseClaimSchema() *schema.Schema {
	return schema.New(
		schema.Field{Name: "amount", Kind: schema.KindNumber, Description: "claimed amount"},
		schema.Field{
			Name: "category", Kind: schema.KindEnum, Required: schema.Always, Default: CategoryOther,
			Description: "expense category",
			Options: []schema.Option{
				{Value: CategoryTravel, Label: "travel"},
				{Value: CategoryMeals, Label: "meals"},
				{Value: CategoryOther, Label: "other"},
			},
		},
		schema.Field{Name: "expenseDate", Kind: schema.KindString, Description: "date of the expense (YYYYMMDD)"},
		schema.Field{Name: "merchant", Kind: schema.KindString, Description: "merchant or vendor"},
		schema.Field{Name: "reimbursable", Kind: schema.KindBoolean, Default: true, Description: "whether the company pays it back"},
		schema.Field{
			Name: "approver", Kind: schema.KindString, Description: "manager approving the claim",
			Required: schema.When(schema.GreaterThan("amount", ApprovalThreshold)),
		},
	)
}

// ExpenseClaim is the typed form of a finalized expense record.
type ExpenseClaim struct {
	Amount       *float64 `mapstructure:"amount"`
	Category     int      `mapstructure:"category"`
	ExpenseDate  *string  `mapstructure:"expenseDate"`
	Merchant     *string  `mapstructure:"merchant"`
	Reimbursable bool     `mapstructure:"reimbursable"`
	Approver     *string  `mapstructure:"approver"`
}

// Record converts the claim back to a record with explicit nulls.
func (c ExpenseClaim) Record() domain.Record {
	return domain.Record{
		"amount":       derefOrNil(c.Amount),
		"category":     c.Category,
		"expenseDate":  derefOrNil(c.ExpenseDate),
		"merchant":     derefOrNil(c.Merchant),
		"reimbursable": c.Reimbursable,
		"approver":     derefOrNil(c.Approver),
	}
}

// ExpenseClaimFinalizer rounds the amount to cents and tidies free text.
// A stated date is normalized; a missing one stays null.
func ExpenseClaimFinalizer(now func() time.Time) extract.Finalizer {
	return func(record map[string]any, _ string) (domain.Record, error) {
		blankToNil(record, "expenseDate", "merchant", "approver")

		var claim ExpenseClaim
		if err := decode(record, &claim); err != nil {
			return nil, fmt.Errorf("decode expense claim: %w", err)
		}

		if claim.Amount != nil {
			cents := math.Round(*claim.Amount*100) / 100
			claim.Amount = &cents
		}
		if claim.ExpenseDate != nil {
			d := NormalizeDate(*claim.ExpenseDate, now())
			claim.ExpenseDate = &d
		}
		claim.Merchant = trimmed(claim.Merchant)
		claim.Approver = trimmed(claim.Approver)

		return claim.Record(), nil
	}
}

// ExpenseClaimDefinition binds the expense form together.
func ExpenseClaimDefinition(tpl TemplateSource, now func() time.Time) (extract.Definition, error) {
	t, err := tpl.Lookup(ExpenseClaimID)
	if err != nil {
		return extract.Definition{}, err
	}
	return extract.Definition{
		FormID:   ExpenseClaimID,
		Title:    "Expense claim",
		Schema:   ExpenseClaimSchema(),
		Template: t,
		Finalize: ExpenseClaimFinalizer(now),
	}, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
