package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailcal/internal/config"
	"mailcal/internal/models"
)

const (
	gmailUser      = "me"
	recentMessages = 10
)

// GmailClient reads relevant inbound mail and sends notifications from the
// authenticated mailbox.
type GmailClient struct {
	service  *gmail.Service
	keywords []string
	maxBody  int
	from     mail.Address
	logger   *slog.Logger
}

// NewGmailClient creates a Gmail client. Callers pass option.WithHTTPClient
// with an authorized client from HTTPClient.
func NewGmailClient(ctx context.Context, logger *slog.Logger, cfg config.MailConfig, opts ...option.ClientOption) (*GmailClient, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	keywords := make([]string, 0, len(cfg.SubjectKeywords))
	for _, k := range cfg.SubjectKeywords {
		keywords = append(keywords, strings.ToLower(k))
	}
	return &GmailClient{
		service:  service,
		keywords: keywords,
		maxBody:  cfg.MaxBodyLength,
		from:     mail.Address{Name: cfg.SenderName, Address: cfg.SenderEmail},
		logger:   logger,
	}, nil
}

// FetchOne returns the first of the most recent messages whose subject
// names a meeting keyword and that accept takes, or nil when there is none.
// accept is consulted for relevant messages only, newest first; a nil
// accept takes the first relevant message.
func (c *GmailClient) FetchOne(ctx context.Context, accept func(ctx context.Context, messageID string) (bool, error)) (*models.InboundEmail, error) {
	list, err := c.service.Users.Messages.List(gmailUser).MaxResults(recentMessages).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	for _, m := range list.Messages {
		full, err := c.service.Users.Messages.Get(gmailUser, m.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", m.Id, err)
		}

		email, err := c.decode(m.Id, full.Raw)
		if err != nil {
			c.logger.Warn("Skipping undecodable message", "messageID", m.Id, "error", err)
			continue
		}
		if !c.relevant(email.Subject) {
			c.logger.Debug("Skipping message without meeting keyword", "messageID", m.Id, "subject", email.Subject)
			continue
		}
		if accept != nil {
			ok, err := accept(ctx, m.Id)
			if err != nil {
				return nil, err
			}
			if !ok {
				c.logger.Debug("Skipping already processed message", "messageID", m.Id)
				continue
			}
		}

		c.logger.Info("Relevant email found", "messageID", m.Id, "from", email.SenderEmail, "subject", email.Subject)
		return email, nil
	}

	c.logger.Info("No relevant email found", "scanned", len(list.Messages))
	return nil, nil
}

func (c *GmailClient) relevant(subject string) bool {
	s := strings.ToLower(subject)
	for _, k := range c.keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func (c *GmailClient) decode(id, raw string) (*models.InboundEmail, error) {
	data, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode raw message: %w", err)
		}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	var dec mime.WordDecoder
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		subject = msg.Header.Get("Subject")
	}
	if subject == "" {
		subject = "No Subject"
	}

	senderName, senderEmail := parseFrom(msg.Header.Get("From"))

	body, err := plainText(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	receivedAt := time.Now()
	if d, err := msg.Header.Date(); err == nil {
		receivedAt = d
	}

	return &models.InboundEmail{
		MessageID:   id,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		Subject:     subject,
		Body:        truncateRunes(body, c.maxBody),
		ReceivedAt:  receivedAt,
	}, nil
}

func parseFrom(header string) (name, address string) {
	if addr, err := mail.ParseAddress(header); err == nil {
		return addr.Name, addr.Address
	}
	if i := strings.Index(header, "<"); i >= 0 {
		name = strings.Trim(strings.TrimSpace(header[:i]), `"`)
		address = strings.TrimSuffix(header[i+1:], ">")
		if j := strings.Index(address, ">"); j >= 0 {
			address = address[:j]
		}
		return name, strings.TrimSpace(address)
	}
	return header, header
}

// plainText returns the first text/plain part of a message body, walking
// nested multiparts.
func plainText(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			text, err := plainText(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			if text != "" {
				return text, nil
			}
		}
	}

	if mediaType != "text/plain" {
		return "", nil
	}

	b, err := io.ReadAll(transferDecoder(encoding, r))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), ""), nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// newlineStripper drops CR and LF so wrapped base64 decodes.
type newlineStripper struct{ r io.Reader }

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		k, err := n.r.Read(p)
		j := 0
		for _, b := range p[:k] {
			if b != '\r' && b != '\n' {
				p[j] = b
				j++
			}
		}
		if j > 0 || err != nil {
			return j, err
		}
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var messageTemplate = template.Must(template.New("message").Parse(`<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <p>{{range $i, $line := .Body}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
{{- if .Details}}
    <div style="margin-top: 20px; padding: 15px; background-color: #f5f5f5; border-left: 4px solid #4CAF50;">{{range $i, $line := .Details}}{{if $i}}<br>{{end}}{{$line}}{{end}}</div>
{{- end}}
    <p style="margin-top: 30px; font-size: 12px; color: #666;">
      This is an automated message from {{.SenderName}}.
    </p>
  </body>
</html>
`))

// renderHTML lays out a notification as the HTML mail body.
func renderHTML(n models.Notification, senderName string) (string, error) {
	if senderName == "" {
		senderName = "Calendar Assistant"
	}
	var details []string
	if strings.TrimSpace(n.MeetingDetails) != "" {
		details = strings.Split(n.MeetingDetails, "\n")
	}

	var buf bytes.Buffer
	err := messageTemplate.Execute(&buf, struct {
		Body       []string
		Details    []string
		SenderName string
	}{
		Body:       strings.Split(n.Body, "\n"),
		Details:    details,
		SenderName: senderName,
	})
	if err != nil {
		return "", fmt.Errorf("render notification: %w", err)
	}
	return buf.String(), nil
}

// buildMIME assembles an RFC 5322 message with a quoted-printable HTML body.
func (c *GmailClient) buildMIME(n models.Notification) ([]byte, error) {
	html, err := renderHTML(n, c.from.Name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", c.from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", n.Recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", n.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(html)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Send delivers n from the configured sender identity.
func (c *GmailClient) Send(ctx context.Context, n models.Notification) error {
	raw, err := c.buildMIME(n)
	if err != nil {
		return err
	}

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := c.service.Users.Messages.Send(gmailUser, msg).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.Recipient, err)
	}

	c.logger.Info("Email sent", "recipient", n.Recipient, "subject", n.Subject, "messageID", sent.Id)
	return nil
}
