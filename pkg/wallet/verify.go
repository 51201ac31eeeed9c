package wallet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

var (
	ErrMalformedAddress   = errors.New("malformed account address")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrSignatureMismatch  = errors.New("recovered address does not match account address")
)

const signatureLength = 65

// TextHash is the EIP-191 personal_sign digest of message.
func TextHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message)) + message))
	return h.Sum(nil)
}

// RecoverAddress returns the checksummed address that produced signatureHex
// over message.
func RecoverAddress(message, signatureHex string) (string, error) {
	sig, err := decodeSignature(signatureHex)
	if err != nil {
		return "", err
	}

	pub, err := crypto.SigToPub(TextHash(message), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// Verify checks that signatureHex is accountAddress's signature over
// ChallengeMessage(accountAddress). Address comparison ignores case.
func Verify(accountAddress, signatureHex string) error {
	if !common.IsHexAddress(accountAddress) {
		return ErrMalformedAddress
	}

	recovered, err := RecoverAddress(ChallengeMessage(accountAddress), signatureHex)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered, accountAddress) {
		return ErrSignatureMismatch
	}
	return nil
}

// NormalizeAddress is the storage form of an address: lower-case, 0x-prefixed.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func decodeSignature(signatureHex string) ([]byte, error) {
	s := strings.TrimSpace(signatureHex)
	if s == "" {
		return nil, ErrMalformedSignature
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	sig, err := hexutil.Decode(s)
	if err != nil || len(sig) != signatureLength {
		return nil, ErrMalformedSignature
	}

	// wallets emit V as 27/28; recovery wants 0/1
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return nil, ErrMalformedSignature
	}
	return sig, nil
}
