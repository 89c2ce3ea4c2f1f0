package deal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"didex/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputePayoutSuccess(t *testing.T) {
	commissioners := models.Commissioners{
		{Address: "Ta", Amount: dec("50")},
		{Address: "Tb", Amount: dec("30")},
	}
	transfers, err := ComputePayout(dec("1000"), commissioners, models.DealStatusSuccess, "Tsender", "Treceiver")
	require.NoError(t, err)
	require.Equal(t, []models.Transfer{
		{Address: "Ta", Amount: dec("50")},
		{Address: "Tb", Amount: dec("30")},
		{Address: "Treceiver", Amount: dec("920")},
	}, transfers)

	total := decimal.Zero
	for _, tr := range transfers {
		total = total.Add(tr.Amount)
	}
	require.True(t, total.Equal(dec("1000")))
}

func TestComputePayoutResolvedSender(t *testing.T) {
	transfers, err := ComputePayout(dec("100"), models.Commissioners{{Address: "Ta", Amount: dec("10")}},
		models.DealStatusResolvedSender, "Tsender", "Treceiver")
	require.NoError(t, err)
	require.Equal(t, []models.Transfer{
		{Address: "Ta", Amount: dec("10")},
		{Address: "Tsender", Amount: dec("90")},
	}, transfers)
}

func TestComputePayoutResolvedReceiver(t *testing.T) {
	transfers, err := ComputePayout(dec("100"), nil, models.DealStatusResolvedReceiver, "Tsender", "Treceiver")
	require.NoError(t, err)
	require.Equal(t, []models.Transfer{{Address: "Treceiver", Amount: dec("100")}}, transfers)
}

func TestComputePayoutInsufficient(t *testing.T) {
	_, err := ComputePayout(dec("100"), models.Commissioners{{Address: "Ta", Amount: dec("150")}},
		models.DealStatusSuccess, "Tsender", "Treceiver")
	require.ErrorIs(t, err, ErrInsufficientAmount)
}

func TestComputePayoutExactCommission(t *testing.T) {
	// commissioners consume the whole amount, no transfer for the recipient
	transfers, err := ComputePayout(dec("80"), models.Commissioners{{Address: "Ta", Amount: dec("80")}},
		models.DealStatusSuccess, "Tsender", "Treceiver")
	require.NoError(t, err)
	require.Equal(t, []models.Transfer{{Address: "Ta", Amount: dec("80")}}, transfers)
}

func TestComputePayoutFractional(t *testing.T) {
	transfers, err := ComputePayout(dec("0.00000003"),
		models.Commissioners{{Address: "Ta", Amount: dec("0.00000001")}},
		models.DealStatusSuccess, "Tsender", "Treceiver")
	require.NoError(t, err)
	require.True(t, transfers[1].Amount.Equal(dec("0.00000002")))
}

func TestComputePayoutInvalid(t *testing.T) {
	_, err := ComputePayout(dec("100"), nil, models.DealStatusProcessing, "Tsender", "Treceiver")
	require.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = ComputePayout(dec("100"), models.Commissioners{{Address: "Ta", Amount: dec("-5")}},
		models.DealStatusSuccess, "Tsender", "Treceiver")
	require.ErrorIs(t, err, ErrInvalidCommission)
}
