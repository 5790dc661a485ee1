package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@test.local", "patient@test.local", "Verify Your Account", "click the link"))

	assert.True(t, strings.HasPrefix(msg, "Subject: Verify Your Account\r\n"))
	assert.Contains(t, msg, "From: noreply@test.local\r\n")
	assert.Contains(t, msg, "To: patient@test.local\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nclick the link\r\n"))
}
