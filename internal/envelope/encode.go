package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// RawPayload is written to an envelope verbatim instead of being JSON-encoded.
type RawPayload string

// Part is one item to encode: Header and Payload are JSON-encoded unless Payload is a
// RawPayload.
type Part struct {
	Header  any
	Payload any
}

// Encode writes header and parts in envelope form.
func Encode(header any, parts ...Part) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeLine(&buf, header); err != nil {
		return nil, fmt.Errorf("encode envelope header: %w", err)
	}
	for i, p := range parts {
		if err := writeLine(&buf, p.Header); err != nil {
			return nil, fmt.Errorf("encode item %d header: %w", i, err)
		}
		if raw, ok := p.Payload.(RawPayload); ok {
			buf.WriteString(string(raw))
			buf.WriteByte('\n')
			continue
		}
		if err := writeLine(&buf, p.Payload); err != nil {
			return nil, fmt.Errorf("encode item %d payload: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

// Gzip compresses data for a Content-Encoding: gzip request body.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeLine(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}
