package models

// DealAction тип действия, доступного по сделке
type DealAction string

const (
	// DealActionSubmitRequisites замена реквизитов сделки
	DealActionSubmitRequisites DealAction = "submitRequisites"
	// DealActionConfirmDeposit сообщение хеша депозита
	DealActionConfirmDeposit DealAction = "confirmDeposit"
	// DealActionApprove подтверждение исполнения сделки
	DealActionApprove DealAction = "approve"
	// DealActionAppeal открытие апелляции
	DealActionAppeal DealAction = "appeal"
	// DealActionResolve решение апелляции арбитром
	DealActionResolve DealAction = "resolve"
	// DealActionConfirmPayout сообщение хеша выплаты
	DealActionConfirmPayout DealAction = "confirmPayout"
)

// CanAct — таблица авторизации: разрешено ли actorDID выполнить действие
// над сделкой в её текущем статусе. Никакой диспетчеризации по ролям,
// только явные правила.
func CanAct(d *Deal, actorDID string, action DealAction) bool {
	switch action {
	case DealActionSubmitRequisites:
		return d.IsParty(actorDID) && !d.Status.IsTerminal()
	case DealActionConfirmDeposit:
		return actorDID == d.SenderDID &&
			(d.Status == DealStatusWaitDeposit || d.Status == DealStatusProcessing)
	case DealActionApprove:
		if d.Status != DealStatusProcessing {
			return false
		}
		if actorDID == d.ReceiverDID {
			return true
		}
		return actorDID == d.SenderDID && !d.NeedReceiverApprove
	case DealActionAppeal:
		return d.IsParty(actorDID) && d.Status == DealStatusProcessing
	case DealActionResolve:
		return actorDID == d.ArbiterDID && d.Status == DealStatusAppeal
	case DealActionConfirmPayout:
		if !d.Status.IsTerminal() || d.PayoutTxn == nil || d.PayoutTxnHash != nil {
			return false
		}
		return d.IsParty(actorDID) || actorDID == d.ArbiterDID
	}
	return false
}

// AllowedActions возвращает действия, доступные actorDID по сделке.
func AllowedActions(d *Deal, actorDID string) []DealAction {
	all := []DealAction{
		DealActionSubmitRequisites,
		DealActionConfirmDeposit,
		DealActionApprove,
		DealActionAppeal,
		DealActionResolve,
		DealActionConfirmPayout,
	}
	var out []DealAction
	for _, a := range all {
		if CanAct(d, actorDID, a) {
			out = append(out, a)
		}
	}
	return out
}
