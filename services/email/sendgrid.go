package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/ellahos/ellahos/core"
)

type sendgridService struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		client:     sendgrid.NewSendClient(conf.Email.SendgridAPIKey),
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
				return
			}
			if err := svc.send(svc.prepare(*msg)); err != nil {
				svc.logger.Error(fmt.Sprintf("sending %q email: %v", msg.TemplateName, err), err)
			}
		}()
	}
}

// prepare builds one personalization for every recipient list; the template name becomes a
// SendGrid category so deliveries can be filtered per kind of email.
func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	p.AddTos(sgEmails(msg.To)...)
	p.AddCCs(sgEmails(msg.Cc)...)
	p.AddBCCs(sgEmails(msg.Bcc)...)

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}

	contents := []*sgmail.Content{sgmail.NewContent("text/plain", msg.TextContent)}
	if msg.HTMLContent != "" {
		contents = append(contents, sgmail.NewContent("text/html", msg.HTMLContent))
	}
	m.AddContent(contents...)

	for _, at := range msg.Attachments {
		m.AddAttachment(sgmail.NewAttachment().
			SetContent(at.Content.String()).
			SetType(at.ContentType).
			SetFilename(at.Filename).
			SetDisposition("attachment"))
	}
	return m
}

func (svc sendgridService) send(m *sgmail.SGMailV3) error {
	res, err := svc.client.Send(m)
	if err != nil {
		return errors.Wrap(err, "calling sendgrid")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sendgrid answered %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func sgEmails(addrs []mail.Address) []*sgmail.Email {
	out := make([]*sgmail.Email, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, sgmail.NewEmail(a.Name, a.Address))
	}
	return out
}
