package ledger

import (
	"context"
	"errors"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EVMClient — адаптер для EVM-сетей. Эскроу в таких сетях контрактные,
// структуры прав аккаунта у них нет.
type EVMClient struct {
	client *ethclient.Client
}

func NewEVMClient(rpcURL string) (*EVMClient, error) {
	cl, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &EVMClient{client: cl}, nil
}

// SubmitTransaction транслирует подписанную raw-транзакцию.
func (c *EVMClient) SubmitTransaction(ctx context.Context, escrowAddress string, payload []byte) (string, error) {
	if !common.IsHexAddress(escrowAddress) {
		return "", fmt.Errorf("%w: invalid escrow address %q", ErrRejected, escrowAddress)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(payload); err != nil {
		return "", fmt.Errorf("%w: decode transaction: %v", ErrRejected, err)
	}
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tx.Hash().Hex(), nil
}

// GetTransactionStatus определяет статус по квитанции исполнения.
func (c *EVMClient) GetTransactionStatus(ctx context.Context, txnHash string) (TxnStatus, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txnHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return TxnStatusPending, nil
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return TxnStatusConfirmed, nil
	}
	return TxnStatusFailed, nil
}

// GetAccountPermissions не поддерживается для EVM-сетей.
func (c *EVMClient) GetAccountPermissions(ctx context.Context, address string) (Permissions, error) {
	return Permissions{}, fmt.Errorf("%w: account permissions are not supported on EVM chains", ErrRejected)
}

var _ Client = (*EVMClient)(nil)
