// Package emailsvc sends the transactional emails (approval links, password resets, integration
// failure alerts) through the configured provider.
package emailsvc

import (
	"net/mail"

	"github.com/ellahos/ellahos/core"
)

// NewService picks the provider named by conf.Email.Provider; unknown providers print to the console.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.Email.Provider {
	case "sendgrid":
		return NewSendgridService(conf, logger)
	case "resend":
		return NewResendService(conf, logger)
	default:
		return NewConsoleService(conf, logger)
	}
}

func addressList(addrs []mail.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
