package protocol

import (
	"bytes"
	"testing"
)

func TestGzipPayloadRoundTrip(t *testing.T) {
	msg := eventMessage(MsgTypeFullClientRequest, EventTaskRequest)
	msg.SessionID = "abc"
	original := []byte(`{"req_params":{"text":"Selamat pagi, pendengar setia."}}`)
	msg.Payload = append([]byte(nil), original...)

	if err := GzipPayload(msg); err != nil {
		t.Fatalf("GzipPayload failed: %v", err)
	}
	if msg.Compression != CompressionGzip {
		t.Errorf("Expected gzip compression tag, got %s", msg.Compression)
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	plain, err := PlainPayload(decoded)
	if err != nil {
		t.Fatalf("PlainPayload failed: %v", err)
	}
	if !bytes.Equal(plain, original) {
		t.Errorf("Expected %q, got %q", original, plain)
	}
}

func TestPlainPayloadRejectsCustomCompression(t *testing.T) {
	msg := NewMessage(MsgTypeFullServerResponse, MsgTypeFlagNoSeq)
	msg.Compression = CompressionCustom
	if _, err := PlainPayload(msg); err == nil {
		t.Error("Expected error for custom compression")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		gzip    bool
		want    int
		message string
	}{
		{"status_code", `{"status_code":45000000,"message":"quota exceeded"}`, false, 45000000, "quota exceeded"},
		{"code", `{"code":20000000}`, false, 20000000, ""},
		{"gzip", `{"status_code":3}`, true, 3, ""},
		{"no code", `{"text":"halo"}`, false, 0, ""},
		{"not json", `not json`, false, 0, ""},
		{"empty", ``, false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := eventMessage(MsgTypeFullServerResponse, EventTTSSentenceEnd)
			msg.Payload = []byte(tt.payload)
			if tt.gzip {
				if err := GzipPayload(msg); err != nil {
					t.Fatalf("GzipPayload failed: %v", err)
				}
			}
			code, message := StatusCode(msg)
			if code != tt.want {
				t.Errorf("Expected code %d, got %d", tt.want, code)
			}
			if message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, message)
			}
		})
	}
}
