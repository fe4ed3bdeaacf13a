package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// GzipPayload compresses msg.Payload in place and tags the message accordingly.
func GzipPayload(msg *Message) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(msg.Payload); err != nil {
		return fmt.Errorf("protocol: gzip payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("protocol: gzip payload: %w", err)
	}
	msg.Payload = buf.Bytes()
	msg.Compression = CompressionGzip
	return nil
}

// PlainPayload returns msg.Payload with any gzip compression removed. Custom
// compression is left to the caller and reported as an error.
func PlainPayload(msg *Message) ([]byte, error) {
	switch msg.Compression {
	case CompressionNone:
		return msg.Payload, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(msg.Payload))
		if err != nil {
			return nil, fmt.Errorf("protocol: gunzip payload: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("protocol: gunzip payload: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("protocol: unsupported payload compression %s", msg.Compression)
	}
}

type statusFrame struct {
	StatusCode *int   `json:"status_code"`
	Code       *int   `json:"code"`
	Message    string `json:"message"`
}

// StatusCode extracts the status code embedded in a JSON status frame. It returns 0
// when the payload is not JSON or carries no code.
func StatusCode(msg *Message) (int, string) {
	if msg.Serialization != SerializationJSON {
		return 0, ""
	}
	payload, err := PlainPayload(msg)
	if err != nil || len(payload) == 0 {
		return 0, ""
	}
	var status statusFrame
	if err := json.Unmarshal(payload, &status); err != nil {
		return 0, ""
	}
	switch {
	case status.StatusCode != nil:
		return *status.StatusCode, status.Message
	case status.Code != nil:
		return *status.Code, status.Message
	default:
		return 0, status.Message
	}
}
