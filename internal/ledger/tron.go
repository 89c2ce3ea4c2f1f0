package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcutil/base58"
)

// tronAddressVersion — префикс base58check-адресов TRON.
const tronAddressVersion = 0x41

// ValidTronAddress проверяет base58check-кодировку адреса TRON.
func ValidTronAddress(addr string) bool {
	_, version, err := base58.CheckDecode(addr)
	return err == nil && version == tronAddressVersion
}

// TronClient — клиент REST-интерфейса полного узла TRON.
type TronClient struct {
	baseURL string
	http    *http.Client
}

// NewTronClient создаёт клиента узла. Таймаут на запрос ограничен,
// истечение трактуется вызывающим как повторяемая ошибка.
func NewTronClient(baseURL string, timeout time.Duration) *TronClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TronClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *TronClient) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrRejected, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: node status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: node status %d", ErrRejected, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// SubmitTransaction транслирует подписанную транзакцию в сеть.
func (c *TronClient) SubmitTransaction(ctx context.Context, escrowAddress string, payload []byte) (string, error) {
	if !ValidTronAddress(escrowAddress) {
		return "", fmt.Errorf("%w: invalid escrow address %q", ErrRejected, escrowAddress)
	}
	var res struct {
		Result  bool   `json:"result"`
		TxID    string `json:"txid"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	body := map[string]string{"transaction": hex.EncodeToString(payload)}
	if err := c.post(ctx, "/wallet/broadcasthex", body, &res); err != nil {
		return "", err
	}
	if !res.Result {
		return "", fmt.Errorf("%w: %s %s", ErrRejected, res.Code, res.Message)
	}
	return res.TxID, nil
}

// GetTransactionStatus возвращает статус транзакции по её хешу.
// Отсутствие записи об исполнении означает pending.
func (c *TronClient) GetTransactionStatus(ctx context.Context, txnHash string) (TxnStatus, error) {
	var res struct {
		ID          string `json:"id"`
		BlockNumber int64  `json:"blockNumber"`
		Result      string `json:"result"`
	}
	body := map[string]string{"value": txnHash}
	if err := c.post(ctx, "/wallet/gettransactioninfobyid", body, &res); err != nil {
		return "", err
	}
	switch {
	case res.ID == "":
		return TxnStatusPending, nil
	case res.Result == "FAILED":
		return TxnStatusFailed, nil
	default:
		return TxnStatusConfirmed, nil
	}
}

// GetAccountPermissions возвращает активную структуру прав аккаунта.
func (c *TronClient) GetAccountPermissions(ctx context.Context, address string) (Permissions, error) {
	if !ValidTronAddress(address) {
		return Permissions{}, fmt.Errorf("%w: invalid address %q", ErrRejected, address)
	}
	var res struct {
		Address          string `json:"address"`
		ActivePermission []struct {
			Threshold int64 `json:"threshold"`
			Keys      []struct {
				Address string `json:"address"`
				Weight  int64  `json:"weight"`
			} `json:"keys"`
		} `json:"active_permission"`
	}
	body := map[string]any{"address": address, "visible": true}
	if err := c.post(ctx, "/wallet/getaccount", body, &res); err != nil {
		return Permissions{}, err
	}
	if res.Address == "" {
		return Permissions{}, fmt.Errorf("%w: account %s not found", ErrRejected, address)
	}
	if len(res.ActivePermission) == 0 {
		return Permissions{}, nil
	}
	active := res.ActivePermission[0]
	perms := Permissions{Threshold: active.Threshold}
	for _, k := range active.Keys {
		perms.Keys = append(perms.Keys, Key{Address: k.Address, Weight: k.Weight})
	}
	return perms, nil
}

var _ Client = (*TronClient)(nil)
