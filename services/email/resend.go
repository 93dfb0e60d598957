package emailsvc

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/resend/resend-go/v3"

	"github.com/ellahos/ellahos/core"
)

const resendTimeout = 15 * time.Second

type resendService struct {
	client     *resend.Client
	from       string
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*resendService)(nil)

func NewResendService(conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.DefaultFromEmail()
	return &resendService{
		client:     resend.NewClient(conf.Email.ResendAPIKey),
		from:       from.String(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc resendService) SendMessages(messages ...*core.EmailMessage) {
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
			params, err := svc.prepare(*msg)
			if err != nil {
				svc.logger.Error("preparing email", err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), resendTimeout)
			defer cancel()
			if _, err := svc.client.Emails.SendWithContext(ctx, params); err != nil {
				svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
			}
		}()
	}
}

func (svc resendService) prepare(msg core.EmailMessage) (*resend.SendEmailRequest, error) {
	params := &resend.SendEmailRequest{
		From:    svc.from,
		To:      addressList(msg.To),
		Cc:      addressList(msg.Cc),
		Bcc:     addressList(msg.Bcc),
		Subject: svc.subjPrefix + msg.Subject,
		Text:    msg.TextContent,
		Html:    msg.HTMLContent,
	}
	for _, at := range msg.Attachments {
		// attachments are kept base64 encoded; the client encodes raw bytes itself
		content, err := base64.StdEncoding.DecodeString(at.Content.String())
		if err != nil {
			return nil, errors.Wrap(err, "decoding attachment "+at.Filename)
		}
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Content:     content,
			Filename:    at.Filename,
			ContentType: at.ContentType,
		})
	}
	return params, nil
}
