// Package envelope decodes the newline-delimited envelope format submitted by
// Sentry-compatible SDKs.
//
// An envelope is a JSON header line followed by zero or more items. Each item is an
// item-header line followed by a payload line:
//
//	{"event_id":"...","trace":{"public_key":"..."}}
//	{"type":"event"}
//	{"exception":{"values":[...]},"timestamp":"..."}
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrDecode is returned when the body cannot be decompressed or decoded.
	ErrDecode = errors.New("envelope decode failed")

	// ErrNoEnvelope is returned when the body holds no envelope lines at all.
	ErrNoEnvelope = errors.New("no envelope")
)

// DefaultMaxDecompressedBytes caps how much a gzip body may expand to.
const DefaultMaxDecompressedBytes = 20 << 20

// Envelope is a decoded envelope. It is transient and never persisted.
type Envelope struct {
	// Header is the envelope header, always a JSON object.
	Header json.RawMessage
	Items  []Item
}

// Item is one header/payload pair of an envelope.
type Item struct {
	// Header is the item header, always a JSON object.
	Header json.RawMessage

	// Payload holds the payload line when it is valid JSON, nil otherwise.
	Payload json.RawMessage

	// Raw is the payload line as received.
	Raw string
}

// IsJSON reports whether the payload line parsed as JSON.
func (i Item) IsJSON() bool {
	return i.Payload != nil
}

// Decoder turns request bodies into envelopes.
type Decoder struct {
	maxDecompressed int64
}

// NewDecoder returns a Decoder that refuses gzip bodies expanding beyond maxDecompressed
// bytes. A non-positive value selects DefaultMaxDecompressedBytes.
func NewDecoder(maxDecompressed int64) *Decoder {
	if maxDecompressed <= 0 {
		maxDecompressed = DefaultMaxDecompressedBytes
	}
	return &Decoder{maxDecompressed: maxDecompressed}
}

// Decode decodes body using DefaultMaxDecompressedBytes.
func Decode(body []byte, contentEncoding string) (*Envelope, error) {
	return NewDecoder(0).Decode(body, contentEncoding)
}

// Decode decodes body. contentEncoding is the request's Content-Encoding header; only
// "gzip" triggers decompression.
func (d *Decoder) Decode(body []byte, contentEncoding string) (*Envelope, error) {
	text, err := d.text(body, contentEncoding)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoEnvelope
	}
	lines := strings.Split(text, "\n")

	header, err := parseObject(lines[0])
	if err != nil {
		return nil, fmt.Errorf("%w: envelope header: %v", ErrDecode, err)
	}

	env := &Envelope{Header: header, Items: []Item{}}
	for i := 1; i < len(lines); i += 2 {
		itemHeader, err := parseObject(lines[i])
		if err != nil {
			return nil, fmt.Errorf("%w: item header on line %d: %v", ErrDecode, i+1, err)
		}
		// Trailing item header without a payload line is dropped.
		if i+1 >= len(lines) {
			break
		}
		env.Items = append(env.Items, newItem(itemHeader, lines[i+1]))
	}

	return env, nil
}

func (d *Decoder) text(body []byte, contentEncoding string) (string, error) {
	raw := body
	if strings.EqualFold(strings.TrimSpace(contentEncoding), "gzip") {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("%w: gzip: %v", ErrDecode, err)
		}
		defer zr.Close()

		raw, err = io.ReadAll(io.LimitReader(zr, d.maxDecompressed+1))
		if err != nil {
			return "", fmt.Errorf("%w: gzip: %v", ErrDecode, err)
		}
		if int64(len(raw)) > d.maxDecompressed {
			return "", fmt.Errorf("%w: decompressed body exceeds %d bytes", ErrDecode, d.maxDecompressed)
		}
	}

	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: body is not valid UTF-8", ErrDecode)
	}
	return string(raw), nil
}

func parseObject(line string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("not a JSON object")
	}
	if !json.Valid(trimmed) {
		return nil, errors.New("invalid JSON")
	}
	return json.RawMessage(trimmed), nil
}

func newItem(header json.RawMessage, line string) Item {
	item := Item{Header: header, Raw: line}
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) > 0 && json.Valid(trimmed) {
		item.Payload = json.RawMessage(trimmed)
	}
	return item
}
