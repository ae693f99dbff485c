package model

// FineTotals описывает свод штрафов одного основания в одном состоянии. Суммы в копейках.
type FineTotals struct {
	Kind        FineKind
	Status      FineStatus
	Count       int
	Assessed    int64
	Paid        int64
	Outstanding int64
}

// OverdueTotals описывает свод по активным просроченным выдачам.
type OverdueTotals struct {
	Loans            int
	TotalDaysOverdue int
	MaxDaysOverdue   int
}

// AverageDaysOverdue возвращает среднюю просрочку в сутках.
func (o OverdueTotals) AverageDaysOverdue() float64 {
	if o.Loans == 0 {
		return 0
	}
	return float64(o.TotalDaysOverdue) / float64(o.Loans)
}
