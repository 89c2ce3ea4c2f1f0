package models

import "strings"

// MakeDID строит DID из имени блокчейна и адреса: did:<blockchain>:<address>.
func MakeDID(blockchain, address string) string {
	return "did:" + blockchain + ":" + address
}

// DIDAddress извлекает адрес из DID. Строка без префикса did:
// трактуется как голый адрес.
func DIDAddress(did string) string {
	if i := strings.LastIndex(did, ":"); i >= 0 {
		return did[i+1:]
	}
	return did
}
