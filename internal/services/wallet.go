package services

import (
	"errors"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	bip39 "github.com/tyler-smith/go-bip39"

	"didex/internal/models"
)

const tronAddressVersion = 0x41

// DeriveDID выводит DID аккаунта из мнемонической фразы: первые 32 байта
// seed используются как приватный ключ secp256k1, адрес кодируется
// base58check с версией TRON. Одна и та же фраза всегда даёт один DID.
func DeriveDID(mnemonic string) (string, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", errors.New("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv, err := crypto.ToECDSA(seed[:32])
	if err != nil {
		return "", err
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	return models.MakeDID("tron", base58.CheckEncode(addr.Bytes(), tronAddressVersion)), nil
}
