package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"

	"github.com/streamkit/kickhooks"
	"github.com/streamkit/kickhooks/internal/signature"
)

type fakeProducer struct {
	published []string
	err       error
}

func (p *fakeProducer) SendRaw(ctx context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, string(body))
	return nil
}

func Test_Server_handlePostWebhook(t *testing.T) {
	tests := []struct {
		name          string
		requestBody   string
		verifyErr     error
		producerErr   error
		wantStatus    int
		wantPublished []string
	}{
		{
			"verified event is published with its raw bytes preserved",
			`{"event":"chat.message.sent","version":1,"data":{"content":"cats & dogs"}}`,
			nil,
			nil,
			200,
			[]string{`{"event":"chat.message.sent","version":1,"data":{"content":"cats & dogs"}}`},
		},
		{
			"escape sequences in the raw body are not re-encoded",
			`{"event":"chat.message.sent","version":1,"data":{"content":"cats \u0026 dogs"}}`,
			nil,
			nil,
			200,
			[]string{`{"event":"chat.message.sent","version":1,"data":{"content":"cats \u0026 dogs"}}`},
		},
		{
			"signature verification failure returns 400",
			`{"event":"chat.message.sent","version":1}`,
			signature.ErrInvalidProductionSignature,
			nil,
			400,
			nil,
		},
		{
			"disallowed test event returns 400",
			`{"is_test_event":true,"event":"chat.message.sent","version":1}`,
			signature.ErrTestWebhooksDisabled,
			nil,
			400,
			nil,
		},
		{
			"malformed body returns 400 without verification",
			`{not-json`,
			nil,
			nil,
			400,
			nil,
		},
		{
			"publish failure returns 500",
			`{"event":"channel.followed","version":1}`,
			nil,
			errors.New("mock publish failure"),
			500,
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &fakeProducer{err: tt.producerErr}
			s := &Server{
				verify: func(payload *kickhooks.EventPayload, rawBody []byte, header http.Header) error {
					return tt.verifyErr
				},
				producer: producer,
				logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			}
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.requestBody))
			res := httptest.NewRecorder()
			s.handlePostWebhook(res, req)

			assert.Equal(t, tt.wantStatus, res.Code)
			if tt.wantPublished == nil {
				assert.Empty(t, producer.published)
			} else {
				assert.Equal(t, tt.wantPublished, producer.published)
			}
		})
	}
}
