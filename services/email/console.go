package emailsvc

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
)

// ConsoleService prints emails to its output instead of sending them.
// It also keeps every delivered message, for tests.
type ConsoleService struct {
	from       mail.Address
	subjPrefix string
	out        *log.Logger
	logger     core.Logger
	sync       bool

	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*ConsoleService)(nil)

func NewConsoleService(conf *core.Config, out io.Writer, logger core.Logger) *ConsoleService {
	return &ConsoleService{
		from:       conf.DefaultFromEmail(),
		subjPrefix: "[" + conf.AppName + "] ",
		out:        log.New(out, "", log.LstdFlags),
		logger:     logger,
	}
}

// NewConsoleServiceMock returns a silent ConsoleService delivering messages synchronously.
func NewConsoleServiceMock(conf *core.Config, logger core.Logger) *ConsoleService {
	svc := NewConsoleService(conf, io.Discard, logger)
	svc.sync = true
	return svc
}

func (svc *ConsoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.sync {
			svc.sendMessage(msg)
			continue
		}
		go svc.sendMessage(msg)
	}
}

// SentMessages returns a copy of the messages delivered so far.
func (svc *ConsoleService) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	sent := make([]core.EmailMessage, len(svc.sent))
	copy(sent, svc.sent)
	return sent
}

func (svc *ConsoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
		return
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}
	if err := svc.send(*msg); err != nil {
		svc.logger.Error(fmt.Sprintf("writing email: %v", err), err)
		return
	}
	svc.mu.Lock()
	svc.sent = append(svc.sent, *msg)
	svc.mu.Unlock()
}

func (svc *ConsoleService) send(msg core.EmailMessage) error {
	body := new(strings.Builder)

	// mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.from.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	}

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
		if err != nil {
			return errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}
	if err := altW.Close(); err != nil {
		return errors.Wrap(err, "closing multipart/alternative")
	}

	svc.out.Println(body.String())
	return nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}
