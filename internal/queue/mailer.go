package queue

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer sends confirmation messages over plain SMTP.  When no host is
// configured the mailer only logs the message, which keeps local
// development working without a mail account.
type Mailer struct {
	Host string
	Port string
	User string
	Pass string
}

// Send delivers a confirmation mail for the event.  The body embeds the
// confirmation link built from the event's base URL and token.
func (m Mailer) Send(ev EmailConfirmationEvent) error {
	link := strings.TrimRight(ev.BaseURL, "/") + "/auth/confirmed_email/" + ev.Token

	if m.Host == "" {
		log.Printf("mailer: SMTP not configured, confirmation link for %s: %s", ev.Email, link)
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Confirm your email\r\n\r\nHi %s,\r\n\r\nConfirm your email by opening the link below:\r\n%s\r\n",
		m.User, ev.Email, ev.Username, link)

	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Pass, m.Host)
	}
	return smtp.SendMail(m.Host+":"+m.Port, auth, m.User, []string{ev.Email}, []byte(msg))
}
