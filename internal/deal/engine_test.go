package deal

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"didex/internal/escrow"
	"didex/internal/models"
)

const (
	senderDID   = "did:tron:Tsender11111111111111111111111111"
	receiverDID = "did:tron:Treceiver111111111111111111111111"
	arbiterDID  = "did:tron:Tarbiter1111111111111111111111111"
)

var dbSeq int

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:deal_test_%d?mode=memory&cache=shared", dbSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.EscrowAccount{},
		&models.EscrowTxnLog{},
		&models.Deal{},
	))
	return db
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewEngine(db), db
}

func createTestDeal(t *testing.T, e *Engine, p CreateParams) *models.Deal {
	t.Helper()
	if p.SenderDID == "" {
		p.SenderDID = senderDID
	}
	if p.ReceiverDID == "" {
		p.ReceiverDID = receiverDID
	}
	if p.ArbiterDID == "" {
		p.ArbiterDID = arbiterDID
	}
	d, err := e.Create(p)
	require.NoError(t, err)
	return d
}

func testRequisites() models.Requisites {
	return models.Requisites{
		Method:  "bank",
		Country: "Spain",
		Bank:    "Caixa",
		Account: "ES91 2100 0418 4502 0005 1332",
		Holder:  "R. Receiver",
	}
}

func TestCreate(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{Label: "laptop"})

	require.NotEmpty(t, d.ID)
	require.Equal(t, models.DealStatusWaitDeposit, d.Status)
	require.Nil(t, d.DepositTxnHash)
	require.Nil(t, d.PayoutTxn)
}

func TestCreateInvalidParticipants(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Create(CreateParams{SenderDID: senderDID, ReceiverDID: senderDID, ArbiterDID: arbiterDID})
	require.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = e.Create(CreateParams{SenderDID: senderDID, ReceiverDID: receiverDID})
	require.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestCreateUnknownEscrow(t *testing.T) {
	e, _ := newTestEngine(t)
	id := "missing"
	_, err := e.Create(CreateParams{SenderDID: senderDID, ReceiverDID: receiverDID, ArbiterDID: arbiterDID, EscrowID: &id})
	require.ErrorIs(t, err, escrow.ErrUnknownEscrow)
}

func TestConfirmDeposit(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})

	got, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)
	require.Equal(t, models.DealStatusProcessing, got.Status)
	require.Equal(t, "0xabc", *got.DepositTxnHash)
	require.True(t, got.Amount.Equal(dec("1000")))
}

func TestConfirmDepositIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})

	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)

	// same hash is a no-op
	got, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)
	require.Equal(t, models.DealStatusProcessing, got.Status)

	// different hash is a hard stop
	_, err = e.ConfirmDeposit(d.ID, "0xdef", dec("1000"))
	require.ErrorIs(t, err, ErrConflictingDeposit)
}

func TestConfirmDepositAmountMismatch(t *testing.T) {
	e, _ := newTestEngine(t)
	amount := dec("500")
	d := createTestDeal(t, e, CreateParams{Amount: &amount})

	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.ErrorIs(t, err, ErrAmountMismatch)

	got, err := e.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusWaitDeposit, got.Status)
	require.Nil(t, got.DepositTxnHash)
}

func TestApprove(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})
	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)
	_, err = e.SubmitRequisites(d.ID, testRequisites(), receiverDID)
	require.NoError(t, err)

	got, err := e.Approve(d.ID, receiverDID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusSuccess, got.Status)
	require.NotNil(t, got.PayoutTxn)
	require.Equal(t, models.DealStatusSuccess, got.PayoutTxn.Outcome)
	require.Len(t, got.PayoutTxn.Transfers, 1)
	require.Equal(t, models.DIDAddress(receiverDID), got.PayoutTxn.Transfers[0].Address)
	require.True(t, got.PayoutTxn.Transfers[0].Amount.Equal(dec("1000")))

	// черновик выплаты сохранён вместе со статусом
	reloaded, err := e.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusSuccess, reloaded.Status)
	require.NotNil(t, reloaded.PayoutTxn)
	require.Len(t, reloaded.PayoutTxn.Transfers, 1)
	require.True(t, reloaded.PayoutTxn.Transfers[0].Amount.Equal(dec("1000")))
}

func TestApproveGuards(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{NeedReceiverApprove: true})

	// from wait_deposit approve is not a valid transition
	_, err := e.Approve(d.ID, receiverDID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)

	// requisites must be submitted first
	_, err = e.Approve(d.ID, receiverDID)
	require.ErrorIs(t, err, ErrRequisitesRequired)

	_, err = e.SubmitRequisites(d.ID, testRequisites(), receiverDID)
	require.NoError(t, err)

	// with need_receiver_approve the sender's confirmation is not enough
	_, err = e.Approve(d.ID, senderDID)
	require.ErrorIs(t, err, ErrUnauthorized)

	// a stranger cannot approve at all
	_, err = e.Approve(d.ID, "did:tron:Tstranger")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.Approve(d.ID, receiverDID)
	require.NoError(t, err)
}

func TestApproveBySenderWithoutReceiverApprove(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{NeedReceiverApprove: false})
	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("100"))
	require.NoError(t, err)
	_, err = e.SubmitRequisites(d.ID, testRequisites(), senderDID)
	require.NoError(t, err)

	got, err := e.Approve(d.ID, senderDID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusSuccess, got.Status)
}

func TestAppealAndResolve(t *testing.T) {
	e, _ := newTestEngine(t)
	commissioners := models.Commissioners{{Address: "Tfee", Amount: dec("50")}}
	d := createTestDeal(t, e, CreateParams{Commissioners: commissioners})
	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)

	got, err := e.RaiseAppeal(d.ID, senderDID, "goods not delivered")
	require.NoError(t, err)
	require.Equal(t, models.DealStatusAppeal, got.Status)
	require.Equal(t, "goods not delivered", *got.AppealReason)

	// parties cannot resolve
	_, err = e.ResolveAppeal(d.ID, senderDID, FavorSender)
	require.ErrorIs(t, err, ErrUnauthorized)

	got, err = e.ResolveAppeal(d.ID, arbiterDID, FavorSender)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusResolvedSender, got.Status)
	require.NotNil(t, got.PayoutTxn)
	require.Equal(t, []models.Transfer{
		{Address: "Tfee", Amount: dec("50")},
		{Address: models.DIDAddress(senderDID), Amount: dec("950")},
	}, got.PayoutTxn.Transfers)
}

func TestResolveInFavorOfReceiver(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})
	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("300"))
	require.NoError(t, err)
	_, err = e.RaiseAppeal(d.ID, receiverDID, "payment not received")
	require.NoError(t, err)

	got, err := e.ResolveAppeal(d.ID, arbiterDID, FavorReceiver)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusResolvedReceiver, got.Status)
	require.Equal(t, models.DIDAddress(receiverDID), got.PayoutTxn.Transfers[0].Address)
}

func TestConflictingTransitions(t *testing.T) {
	// approve and appeal race over the same deal: exactly one wins
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})
	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)
	_, err = e.SubmitRequisites(d.ID, testRequisites(), receiverDID)
	require.NoError(t, err)

	_, err = e.Approve(d.ID, receiverDID)
	require.NoError(t, err)

	_, err = e.RaiseAppeal(d.ID, senderDID, "too late")
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := e.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusSuccess, got.Status)
}

func TestConcurrentApproveAndAppeal(t *testing.T) {
	// два конкурирующих перехода из разных горутин: побеждает ровно один
	e, db := newTestEngine(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// единственный коннект: sqlite не допускает параллельных пишущих транзакций
	sqlDB.SetMaxOpenConns(1)

	d := createTestDeal(t, e, CreateParams{})
	_, err = e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)
	_, err = e.SubmitRequisites(d.ID, testRequisites(), receiverDID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var approveErr, appealErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = e.Approve(d.ID, receiverDID)
	}()
	go func() {
		defer wg.Done()
		_, appealErr = e.RaiseAppeal(d.ID, senderDID, "goods not delivered")
	}()
	wg.Wait()

	got, err := e.Get(d.ID)
	require.NoError(t, err)
	if approveErr == nil {
		require.ErrorIs(t, appealErr, ErrInvalidTransition)
		require.Equal(t, models.DealStatusSuccess, got.Status)
		require.NotNil(t, got.PayoutTxn)
	} else {
		require.NoError(t, appealErr)
		require.ErrorIs(t, approveErr, ErrInvalidTransition)
		require.Equal(t, models.DealStatusAppeal, got.Status)
		require.Nil(t, got.PayoutTxn)
	}
}

func TestInvalidTransitionLeavesDealUnchanged(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})

	_, err := e.RaiseAppeal(d.ID, senderDID, "nope")
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := e.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusWaitDeposit, got.Status)
	require.Nil(t, got.AppealReason)
	require.Nil(t, got.PayoutTxn)
}

func TestSubmitRequisites(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})

	got, err := e.SubmitRequisites(d.ID, testRequisites(), receiverDID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Requisites.Version)
	require.Equal(t, "bank", got.Requisites.Method)

	// replaced wholesale, version grows
	r2 := testRequisites()
	r2.Bank = "BBVA"
	got, err = e.SubmitRequisites(d.ID, r2, senderDID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Requisites.Version)
	require.Equal(t, "BBVA", got.Requisites.Bank)

	// реквизиты действительно доехали до строки в базе
	reloaded, err := e.Get(d.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Requisites)
	require.Equal(t, 2, reloaded.Requisites.Version)
	require.Equal(t, "BBVA", reloaded.Requisites.Bank)

	_, err = e.SubmitRequisites(d.ID, testRequisites(), arbiterDID)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestConfirmPayout(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})
	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)
	_, err = e.SubmitRequisites(d.ID, testRequisites(), receiverDID)
	require.NoError(t, err)
	_, err = e.Approve(d.ID, receiverDID)
	require.NoError(t, err)

	got, err := e.ConfirmPayout(d.ID, "0xdef")
	require.NoError(t, err)
	require.Equal(t, "0xdef", *got.PayoutTxnHash)

	// idempotent
	_, err = e.ConfirmPayout(d.ID, "0xdef")
	require.NoError(t, err)

	// conflicting hash is a hard stop
	_, err = e.ConfirmPayout(d.ID, "0x999")
	require.ErrorIs(t, err, ErrConflictingPayout)
}

func TestConfirmPayoutBeforeTerminal(t *testing.T) {
	e, _ := newTestEngine(t)
	d := createTestDeal(t, e, CreateParams{})

	_, err := e.ConfirmPayout(d.ID, "0xdef")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func registerEscrowForDeal(t *testing.T, db *gorm.DB) *models.EscrowAccount {
	t.Helper()
	r := escrow.NewRegistry(db)
	acc, err := r.Register(escrow.RegisterParams{
		Blockchain: "tron",
		Network:    "mainnet",
		Address:    "Tescrow1111111111111111111111111111",
		Type:       models.EscrowTypeMultisig,
		Config: &models.MultisigConfig{Threshold: 2, Keys: []models.MultisigKey{
			{Address: models.DIDAddress(senderDID), Weight: 1},
			{Address: models.DIDAddress(receiverDID), Weight: 1},
			{Address: models.DIDAddress(arbiterDID), Weight: 1},
		}},
		Roles: models.AddressRoles{
			{Address: models.DIDAddress(senderDID), Role: models.EscrowRoleParticipant},
			{Address: models.DIDAddress(receiverDID), Role: models.EscrowRoleParticipant},
			{Address: models.DIDAddress(arbiterDID), Role: models.EscrowRoleArbiter},
		},
		OwnerDID: senderDID,
	})
	require.NoError(t, err)
	return acc
}

func TestTransitionsAreLogged(t *testing.T) {
	e, db := newTestEngine(t)
	acc := registerEscrowForDeal(t, db)
	d := createTestDeal(t, e, CreateParams{EscrowID: &acc.ID})

	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)

	entry, err := e.TxnLog().Get(acc.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Contains(t, string(entry.Txn), d.ID)
	require.Contains(t, string(entry.Txn), string(models.DealStatusProcessing))
	require.Equal(t, "deposit confirmed", entry.Comment)
}

func TestReconcileAdvancesStatusFromLog(t *testing.T) {
	e, db := newTestEngine(t)
	acc := registerEscrowForDeal(t, db)
	d := createTestDeal(t, e, CreateParams{EscrowID: &acc.ID})
	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)
	_, err = e.SubmitRequisites(d.ID, testRequisites(), receiverDID)
	require.NoError(t, err)
	_, err = e.Approve(d.ID, receiverDID)
	require.NoError(t, err)

	// simulate a crash between log write and status commit:
	// the stored status is rolled back while the log says success
	require.NoError(t, db.Model(&models.Deal{}).Where("id = ?", d.ID).
		Update("status", models.DealStatusProcessing).Error)

	got, err := e.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusSuccess, got.Status)

	// idempotent: a second read changes nothing
	got, err = e.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusSuccess, got.Status)
}

func TestReconcileIgnoresOlderLog(t *testing.T) {
	e, db := newTestEngine(t)
	acc := registerEscrowForDeal(t, db)
	d := createTestDeal(t, e, CreateParams{EscrowID: &acc.ID})
	_, err := e.ConfirmDeposit(d.ID, "0xabc", dec("1000"))
	require.NoError(t, err)

	got, err := e.Get(d.ID)
	require.NoError(t, err)
	require.Equal(t, models.DealStatusProcessing, got.Status)
}
