package deal

import (
	"github.com/shopspring/decimal"

	"didex/internal/models"
)

// ComputePayout — чистая функция расчёта выплаты: доли комиссионеров
// вычитаются из суммы сделки, остаток уходит основному получателю,
// определяемому исходом. Сумма переводов всегда равна amount,
// остаток не теряется.
func ComputePayout(amount decimal.Decimal, commissioners models.Commissioners, outcome models.DealStatus, senderAddr, receiverAddr string) ([]models.Transfer, error) {
	if !outcome.IsTerminal() {
		return nil, ErrInvalidOutcome
	}
	for _, c := range commissioners {
		if c.Amount.IsNegative() {
			return nil, ErrInvalidCommission
		}
	}
	net := amount.Sub(commissioners.Sum())
	if net.IsNegative() {
		return nil, ErrInsufficientAmount
	}

	transfers := make([]models.Transfer, 0, len(commissioners)+1)
	for _, c := range commissioners {
		transfers = append(transfers, models.Transfer{Address: c.Address, Amount: c.Amount})
	}

	recipient := receiverAddr
	if outcome == models.DealStatusResolvedSender {
		recipient = senderAddr
	}
	if net.IsPositive() {
		transfers = append(transfers, models.Transfer{Address: recipient, Amount: net})
	}
	return transfers, nil
}
