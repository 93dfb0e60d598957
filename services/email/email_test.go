package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func testConfig() *core.Config {
	return &core.Config{AppName: "ELLAHOS", Email: core.EmailConfig{Provider: "resend", DefaultFrom: "ELLAHOS <noreply@ellahos.com>"}}
}

func TestNewService(t *testing.T) {
	conf := testConfig()
	assert.IsType(t, &resendService{}, NewService(conf, nopLogger{}))

	conf.Email.Provider = "sendgrid"
	assert.IsType(t, &sendgridService{}, NewService(conf, nopLogger{}))

	conf.Email.Provider = ""
	assert.IsType(t, &consoleService{}, NewService(conf, nopLogger{}))
}

func TestConsoleServiceMock(t *testing.T) {
	ResetSentMessages()
	t.Cleanup(ResetSentMessages)
	svc := NewConsoleServiceMock(testConfig(), nopLogger{})

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "ana@cliente.com"}}, Subject: "Aprovacao", BodyStr: "Link: x"},
		&core.EmailMessage{Subject: "sem destinatario", BodyStr: "ignored"},
		&core.EmailMessage{To: []mail.Address{{Address: "ana@cliente.com"}}, Subject: "vazio"},
	)

	require.Equal(t, 1, SentCount())
	assert.Equal(t, "Link: x", SentMessages[0].TextContent)
}

func TestResendService_Prepare(t *testing.T) {
	svc := NewResendService(testConfig(), nopLogger{}).(*resendService)
	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Ana", Address: "ana@cliente.com"}},
		Subject:     "Relatorio",
		TextContent: "segue",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a;b\r\n"), "relatorio.csv", "text/csv"))

	params, err := svc.prepare(msg)
	require.NoError(t, err)
	assert.Equal(t, `"ELLAHOS" <noreply@ellahos.com>`, params.From)
	assert.Equal(t, []string{`"Ana" <ana@cliente.com>`}, params.To)
	assert.Nil(t, params.Cc)
	assert.Equal(t, "[ELLAHOS] Relatorio", params.Subject)
	require.Len(t, params.Attachments, 1)
	assert.Equal(t, []byte("a;b\r\n"), params.Attachments[0].Content)
	assert.Equal(t, "text/csv", params.Attachments[0].ContentType)

	msg.Attachments[0].Content = bytes.NewBufferString("%%%")
	_, err = svc.prepare(msg)
	assert.Error(t, err)
}

func TestSendgridService_Prepare(t *testing.T) {
	svc := NewSendgridService(testConfig(), nopLogger{}).(*sendgridService)
	msg := core.EmailMessage{
		To:           []mail.Address{{Name: "Ana", Address: "ana@cliente.com"}},
		Bcc:          []mail.Address{{Address: "arquivo@ellahos.com"}},
		Subject:      "Falha de integracao",
		TextContent:  "detalhes",
		HTMLContent:  "<p>detalhes</p>",
		TemplateName: "integration_failed",
	}

	m := svc.prepare(msg)
	assert.Equal(t, "noreply@ellahos.com", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[ELLAHOS] Falha de integracao", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "ana@cliente.com", p.To[0].Address)
	assert.Empty(t, p.CC)
	require.Len(t, p.BCC, 1)
	assert.Equal(t, []string{"integration_failed"}, m.Categories)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}
