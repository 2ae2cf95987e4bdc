package api

import (
	"errors"
	"regexp"
	"strings"
)

import (
	"github.com/gagliardetto/solana-go"
)

var addressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

var (
	errAddressRequired = errors.New("wallet_address is required")
	errAddressInvalid  = errors.New("invalid solana address")
)

// validateAddress 校验 base58 格式并确认能解码为 32 字节公钥
func validateAddress(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", errAddressRequired
	}
	if !addressPattern.MatchString(addr) {
		return "", errAddressInvalid
	}
	if _, err := solana.PublicKeyFromBase58(addr); err != nil {
		return "", errAddressInvalid
	}
	return addr, nil
}

// validationMessage is the client-facing text for a validateAddress error.
func validationMessage(err error) string {
	if errors.Is(err, errAddressRequired) {
		return "wallet_address is required"
	}
	return "Invalid Solana address"
}
