package auth

import (
	"fmt"

	"booking-app/internal/notify"
)

func SendVerificationEmail(to string, token string) error {
	link := fmt.Sprintf("http://localhost:8080/verify?token=%s", token)
	body := fmt.Sprintf("Click the following link to verify your account:\n\n%s", link)
	return notify.SendMail(to, "Verify Your Account", body)
}
