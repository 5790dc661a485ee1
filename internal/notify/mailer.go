package notify

import (
	"fmt"
	"net/smtp"
	"os"
)

// SendMail delivers a plain-text email through the configured SMTP relay.
func SendMail(to string, subject string, body string) error {
	from := os.Getenv("SMTP_FROM")
	password := os.Getenv("SMTP_PASSWORD")
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")

	auth := smtp.PlainAuth("", from, password, host)

	err := smtp.SendMail(host+":"+port, auth, from, []string{to}, buildMessage(from, to, subject, body))
	if err != nil {
		fmt.Println("❌ SMTP error:", err)
	}
	return err
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte("Subject: " + subject + "\r\n" +
		"From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body + "\r\n")
}
