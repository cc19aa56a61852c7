package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodSummary is the derived closing view for one owner over a date range.
// It is never persisted; every field is recomputed from the ledger and the
// adjacent domain tables on demand.
type PeriodSummary struct {
	OwnerID      string          `json:"owner_id"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Collected    decimal.Decimal `json:"collected"`
	Expensed     decimal.Decimal `json:"expensed"`
	Lent         decimal.Decimal `json:"lent"`
	Withdrawn    decimal.Decimal `json:"withdrawn"`
	CashAdjusted decimal.Decimal `json:"cash_adjusted"`
	Net          decimal.Decimal `json:"net"`
	Commission   decimal.Decimal `json:"commission"`
}

// ComputeNet applies the closing formula:
// net = collected - expensed - lent - withdrawn + cashAdjusted.
func (s *PeriodSummary) ComputeNet() {
	s.Net = s.Collected.
		Sub(s.Expensed).
		Sub(s.Lent).
		Sub(s.Withdrawn).
		Add(s.CashAdjusted)
}
