package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/testutil"
)

func TestConsoleService_SendMessages(t *testing.T) {
	out := new(bytes.Buffer)
	svc := NewConsoleService(testutil.NewConfig(), out, testutil.NewLogger())
	svc.sync = true

	svc.SendMessages(
		&core.EmailMessage{
			To:      []mail.Address{{Name: "Ada", Address: "ada@heures.test"}},
			Cc:      []mail.Address{{Address: "office@heures.test"}},
			Subject: "Hello",
			BodyStr: "plain body",
		},
		&core.EmailMessage{Subject: "nobody to send to", BodyStr: "lost"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@heures.test"}}, Subject: "no content"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "plain body", sent[0].TextContent)

	printed := out.String()
	assert.Contains(t, printed, "From: \"Heures\" <noreply@heures.test>")
	assert.Contains(t, printed, "Subject: [Heures] Hello")
	assert.Contains(t, printed, "To: \"Ada\" <ada@heures.test>")
	assert.Contains(t, printed, "CC: <office@heures.test>")
	assert.Contains(t, printed, "Content-Type: multipart/alternative")
	assert.Contains(t, printed, "plain body")
	assert.NotContains(t, printed, "lost")
}

func TestConsoleService_htmlAlternative(t *testing.T) {
	out := new(bytes.Buffer)
	svc := NewConsoleService(testutil.NewConfig(), out, testutil.NewLogger())
	svc.sync = true

	svc.SendMessages(&core.EmailMessage{
		To:          []mail.Address{{Address: "ada@heures.test"}},
		Subject:     "Report",
		TextContent: "see below",
		HTMLContent: "<p>see below</p>",
	})

	printed := out.String()
	assert.Equal(t, 1, strings.Count(printed, "Content-Type: multipart/alternative"))
	assert.Contains(t, printed, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, printed, "Content-Type: text/html; charset=utf-8")
	assert.Contains(t, printed, "<p>see below</p>")
	assert.NotContains(t, printed, "multipart/mixed")
	assert.Equal(t, 1, strings.Count(printed, "Subject: "))
}
