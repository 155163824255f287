package transport

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mcdev12/scorelink/go/internal/score"
	"google.golang.org/protobuf/encoding/protowire"
)

// Format selects how commands are written to the wire. Decoding accepts both.
type Format int

const (
	// FormatToken sends the bare UTF-8 command token and nothing else
	FormatToken Format = iota
	// FormatEnvelope wraps the token in a versioned protobuf-encoded envelope
	FormatEnvelope
)

// EnvelopeVersion is the envelope version this build writes
const EnvelopeVersion = 1

const (
	envelopeVersionField protowire.Number = 1
	envelopeTokenField   protowire.Number = 2
)

var ErrMalformedPayload = errors.New("malformed payload")

// ParseFormat accepts "token" and "envelope"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "token":
		return FormatToken, nil
	case "envelope":
		return FormatEnvelope, nil
	default:
		return 0, fmt.Errorf("unknown payload format %q", s)
	}
}

func (f Format) String() string {
	if f == FormatEnvelope {
		return "envelope"
	}
	return "token"
}

// EncodePayload serializes one command
func EncodePayload(cmd score.Command, format Format) []byte {
	if format != FormatEnvelope {
		return []byte(cmd)
	}

	b := protowire.AppendTag(nil, envelopeVersionField, protowire.VarintType)
	b = protowire.AppendVarint(b, EnvelopeVersion)
	b = protowire.AppendTag(b, envelopeTokenField, protowire.BytesType)
	b = protowire.AppendString(b, string(cmd))
	return b
}

// DecodePayload reads a command from either wire format. An envelope always starts with
// the version field tag, which no command token does.
func DecodePayload(data []byte) (score.Command, error) {
	if isEnvelope(data) {
		return decodeEnvelope(data)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrMalformedPayload)
	}
	return score.ParseCommand(string(data))
}

func isEnvelope(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(data)
	return n > 0 && num == envelopeVersionField && typ == protowire.VarintType
}

func decodeEnvelope(data []byte) (score.Command, error) {
	var (
		version  uint64
		token    string
		hasToken bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", fmt.Errorf("%w: %v", ErrMalformedPayload, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == envelopeVersionField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return "", fmt.Errorf("%w: %v", ErrMalformedPayload, protowire.ParseError(n))
			}
			version = v
			data = data[n:]
		case num == envelopeTokenField && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return "", fmt.Errorf("%w: %v", ErrMalformedPayload, protowire.ParseError(n))
			}
			token, hasToken = s, true
			data = data[n:]
		default:
			// newer peers may add fields
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return "", fmt.Errorf("%w: %v", ErrMalformedPayload, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if version == 0 || !hasToken {
		return "", fmt.Errorf("%w: missing version or token", ErrMalformedPayload)
	}
	return score.ParseCommand(token)
}
