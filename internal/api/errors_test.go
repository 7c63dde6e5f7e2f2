package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      string
		wantKind  Kind
		wantAuthn bool
	}{
		{
			name:     "message only",
			status:   500,
			body:     `{"message":"Server sedang sibuk"}`,
			want:     "Server sedang sibuk",
			wantKind: KindServer,
		},
		{
			name:     "field errors win over message",
			status:   422,
			body:     `{"message":"The given data was invalid.","errors":{"amount":["Jumlah wajib diisi."]}}`,
			want:     "Jumlah wajib diisi.",
			wantKind: KindValidation,
		},
		{
			name:     "error list",
			status:   400,
			body:     `{"errors":["satu","dua"]}`,
			want:     "satu, dua",
			wantKind: KindValidation,
		},
		{
			name:     "single string per field",
			status:   422,
			body:     `{"errors":{"month":"Bulan tidak valid."}}`,
			want:     "Bulan tidak valid.",
			wantKind: KindValidation,
		},
		{
			name:     "non json body",
			status:   502,
			body:     `<html>Bad Gateway</html>`,
			want:     "fallback",
			wantKind: KindServer,
		},
		{
			name:      "unauthorized",
			status:    401,
			body:      `{"message":"Unauthenticated."}`,
			want:      "Unauthenticated.",
			wantKind:  KindServer,
			wantAuthn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := parseError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, UserMessage(e, "fallback"))
			assert.Equal(t, tt.wantKind, e.Kind())
			assert.Equal(t, tt.wantAuthn, errors.Is(e, ErrUnauthenticated))
		})
	}
}

func TestUserMessage_Wrapped(t *testing.T) {
	e := parseError(422, []byte(`{"errors":{"type":["Jenis tidak valid."]}}`))
	wrapped := fmt.Errorf("create saving: %w", e)
	assert.Equal(t, "Jenis tidak valid.", UserMessage(wrapped, "fallback"))

	assert.Equal(t, "", UserMessage(nil, "fallback"))
	assert.Equal(t, "Sesi berakhir, silakan masuk kembali.", UserMessage(ErrUnauthenticated, "fallback"))
	assert.Equal(t, "boom", UserMessage(errors.New("boom"), "fallback"))
}

func TestError_Error(t *testing.T) {
	assert.Equal(t, "api error 404: Not Found", (&Error{StatusCode: 404}).Error())
	assert.Equal(t, "api error 409: sudah diproses", (&Error{StatusCode: 409, Message: "sudah diproses"}).Error())
}
