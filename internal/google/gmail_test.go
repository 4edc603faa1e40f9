package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailcal/internal/config"
	"mailcal/internal/models"
)

func testMailConfig() config.MailConfig {
	return config.MailConfig{
		SenderEmail:     "assistant@example.com",
		SenderName:      "Calendar Assistant",
		SubjectKeywords: []string{"meet", "meeting", "collaboration", "client", "partenaria"},
		MaxBodyLength:   40,
	}
}

func newTestGmail(t *testing.T, handler http.HandlerFunc) *GmailClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewGmailClient(context.Background(), discardLogger(), testMailConfig(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	if err != nil {
		t.Fatalf("NewGmailClient: %v", err)
	}
	return c
}

const newsletter = "From: News <news@example.com>\r\n" +
	"Subject: Weekly digest\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"Nothing to see.\r\n"

const meetingRequest = "From: \"Sami Trabelsi\" <sami@acme.tn>\r\n" +
	"Subject: =?utf-8?q?Meeting_request_-_Solar_Panels?=\r\n" +
	"Date: Mon, 15 Dec 2025 08:30:00 +0100\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n\r\n" +
	"<p>html version</p>\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n\r\n" +
	"Hello, can we meet on 2025-12-20 at 10:00 for one hour to discuss the offer=\r\n" +
	"?\r\n" +
	"--b1--\r\n"

func TestGmailClient_FetchOne(t *testing.T) {
	raw := map[string]string{
		"m1": base64.URLEncoding.EncodeToString([]byte(newsletter)),
		"m2": base64.RawURLEncoding.EncodeToString([]byte(meetingRequest)),
	}

	c := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			if r.URL.Query().Get("maxResults") != "10" {
				t.Errorf("maxResults = %q, want 10", r.URL.Query().Get("maxResults"))
			}
			io.WriteString(w, `{"messages":[{"id":"m1"},{"id":"m2"}]}`)
		case strings.Contains(r.URL.Path, "/users/me/messages/"):
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			if r.URL.Query().Get("format") != "raw" {
				t.Errorf("format = %q, want raw", r.URL.Query().Get("format"))
			}
			fmt.Fprintf(w, `{"id":%q,"raw":%q}`, id, raw[id])
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	email, err := c.FetchOne(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchOne() error: %v", err)
	}
	if email == nil {
		t.Fatal("FetchOne() = nil, want the meeting request")
	}
	if email.MessageID != "m2" {
		t.Errorf("MessageID = %q, want m2", email.MessageID)
	}
	if email.SenderEmail != "sami@acme.tn" || email.SenderName != "Sami Trabelsi" {
		t.Errorf("sender = %q <%q>", email.SenderName, email.SenderEmail)
	}
	if email.Subject != "Meeting request - Solar Panels" {
		t.Errorf("Subject = %q", email.Subject)
	}
	want := "Hello, can we meet on 2025-12-20 at 10:0"
	if email.Body != want {
		t.Errorf("Body = %q, want %q", email.Body, want)
	}
	if email.ReceivedAt.Year() != 2025 {
		t.Errorf("ReceivedAt = %v", email.ReceivedAt)
	}
}

func TestGmailClient_FetchOneNoneRelevant(t *testing.T) {
	c := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/users/me/messages") {
			io.WriteString(w, `{"messages":[{"id":"m1"}]}`)
			return
		}
		fmt.Fprintf(w, `{"id":"m1","raw":%q}`, base64.URLEncoding.EncodeToString([]byte(newsletter)))
	})

	email, err := c.FetchOne(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchOne() error: %v", err)
	}
	if email != nil {
		t.Errorf("FetchOne() = %+v, want nil", email)
	}
}

func TestGmailClient_FetchOneSkipsRejected(t *testing.T) {
	raw := base64.URLEncoding.EncodeToString([]byte(meetingRequest))
	c := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/users/me/messages") {
			io.WriteString(w, `{"messages":[{"id":"new"},{"id":"old"}]}`)
			return
		}
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		fmt.Fprintf(w, `{"id":%q,"raw":%q}`, id, raw)
	})

	var asked []string
	accept := func(_ context.Context, id string) (bool, error) {
		asked = append(asked, id)
		return id != "new", nil
	}

	email, err := c.FetchOne(context.Background(), accept)
	if err != nil {
		t.Fatalf("FetchOne() error: %v", err)
	}
	if email == nil || email.MessageID != "old" {
		t.Fatalf("FetchOne() = %+v, want message old", email)
	}
	if strings.Join(asked, ",") != "new,old" {
		t.Errorf("accept asked for %v, want [new old]", asked)
	}

	_, err = c.FetchOne(context.Background(), func(context.Context, string) (bool, error) {
		return false, errors.New("redis down")
	})
	if err == nil {
		t.Error("FetchOne() error = nil, want accept error")
	}
}

func TestGmailClient_Send(t *testing.T) {
	var got gmail.Message
	c := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"sent1"}`)
	})

	n := models.Notification{
		Recipient:      "sami@acme.tn",
		Subject:        "Meeting Confirmed: Solar Panels",
		Body:           "Hello Sami,\nYour meeting is confirmed.",
		MeetingDetails: "Date: Monday\nDuration: 1 hour(s)",
	}
	if err := c.Send(context.Background(), n); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	raw, err := base64.URLEncoding.DecodeString(got.Raw)
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	msg := string(raw)
	for _, want := range []string{
		"From: \"Calendar Assistant\" <assistant@example.com>",
		"To: sami@acme.tn",
		"Subject: Meeting Confirmed: Solar Panels",
		"Content-Type: text/html",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := renderHTML(models.Notification{
		Body:           "Hello <Sami>,\nSee you soon.",
		MeetingDetails: "Date: Monday\nDuration: 1 hour(s)",
	}, "Calendar Assistant")
	if err != nil {
		t.Fatalf("renderHTML() error: %v", err)
	}

	for _, want := range []string{
		"Hello &lt;Sami&gt;,<br>See you soon.",
		"border-left: 4px solid #4CAF50",
		"Date: Monday<br>Duration: 1 hour(s)",
		"This is an automated message from Calendar Assistant.",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q:\n%s", want, html)
		}
	}

	plain, err := renderHTML(models.Notification{Body: "Hi"}, "")
	if err != nil {
		t.Fatalf("renderHTML() error: %v", err)
	}
	if strings.Contains(plain, "#f5f5f5") {
		t.Error("details box rendered without meeting details")
	}
}
