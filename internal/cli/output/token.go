package output

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Encoding is the textual form of a token on the command line.
type Encoding string

const (
	// EncodingHex is lowercase hex; whitespace is ignored when decoding so
	// wrapped packet dumps can be pasted as is.
	EncodingHex Encoding = "hex"
	// EncodingBase64 is standard padded base64, as in HTTP Negotiate headers.
	EncodingBase64 Encoding = "base64"
	// EncodingRaw is the binary token itself.
	EncodingRaw Encoding = "raw"
)

// ParseEncoding parses an --encoding value. The empty string selects hex.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hex", "":
		return EncodingHex, nil
	case "base64", "b64":
		return EncodingBase64, nil
	case "raw", "bin":
		return EncodingRaw, nil
	default:
		return "", fmt.Errorf("invalid token encoding: %q (valid: hex, base64, raw)", s)
	}
}

func (e Encoding) String() string {
	return string(e)
}

// Decode converts data from encoding e to token bytes.
func (e Encoding) Decode(data []byte) ([]byte, error) {
	switch e {
	case EncodingRaw:
		return data, nil
	case EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 token: %w", err)
		}
		return b, nil
	case EncodingHex, "":
		b, err := hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if err != nil {
			return nil, fmt.Errorf("invalid hex token: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("invalid token encoding: %q", string(e))
	}
}

// Encode renders b for display. Raw tokens are not printable and fall back
// to hex.
func (e Encoding) Encode(b []byte) string {
	if e == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(b)
	}
	return hex.EncodeToString(b)
}
