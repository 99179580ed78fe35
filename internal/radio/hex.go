package radio

import "encoding/hex"

// DecodeHex accepts case-insensitive, even-length hex strings, per the
// UART modem's `radio_rx <hex>` parsing rule.
func DecodeHex(op, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, InvalidHex(op, err)
	}
	return b, nil
}

// EncodeHex is the inverse used when framing an outbound `radio tx
// <hex>` command.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
