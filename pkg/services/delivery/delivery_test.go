package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Name() string {
	return "mock"
}

func (m *mockTransport) Send(ctx context.Context, sender, recipient string, raw []byte) (string, error) {
	args := m.Called(ctx, sender, recipient, raw)
	return args.String(0), args.Error(1)
}

func testContent() Content {
	return Content{
		Narrative:      "Potential monthly savings: 35.00 USD",
		HTML:           "<p>35.00 USD</p>",
		Export:         []byte("resourceId,resourceType\r\ni-1,EC2Instance\r\n"),
		AttachmentName: "cost_optimization_recommendations_20261019.csv",
		Date:           time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
	}
}

func TestMessage_Bytes(t *testing.T) {
	content := testContent()
	raw, err := Message{
		Sender:         "reports@example.com",
		Recipient:      "finops@example.com",
		Subject:        "Savings – weekly",
		TextBody:       content.Narrative,
		HTMLBody:       content.HTML,
		Attachment:     content.Export,
		AttachmentName: content.AttachmentName,
		Date:           content.Date,
	}.Bytes()
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Savings – weekly", subject)
	assert.Equal(t, "finops@example.com", msg.Header.Get("To"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(msg.Body, params["boundary"])

	alt, err := reader.NextPart()
	require.NoError(t, err)
	altType, altParams, err := mime.ParseMediaType(alt.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", altType)

	altReader := multipart.NewReader(alt, altParams["boundary"])
	textPart, err := altReader.NextRawPart()
	require.NoError(t, err)
	text, err := io.ReadAll(quotedprintable.NewReader(textPart))
	require.NoError(t, err)
	assert.Equal(t, content.Narrative, string(text))

	htmlPart, err := altReader.NextRawPart()
	require.NoError(t, err)
	assert.Contains(t, htmlPart.Header.Get("Content-Type"), "text/html")

	attachment, err := reader.NextRawPart()
	require.NoError(t, err)
	assert.Equal(t, content.AttachmentName, attachment.FileName())
	encoded, err := io.ReadAll(attachment)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, content.Export, decoded)

	_, err = reader.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("sent", func(t *testing.T) {
		transport := new(mockTransport)
		transport.On("Send", mock.Anything, "reports@example.com", "finops@example.com", mock.Anything).
			Return("msg-1", nil).Once()

		result := NewDispatcher(transport, "", 0).Dispatch(ctx, testContent(), "reports@example.com", "finops@example.com")

		assert.Equal(t, domain.DeliveryResult{Status: domain.DeliverySent, MessageID: "msg-1"}, result)
		assert.NoError(t, AsError(result))
		transport.AssertExpectations(t)

		raw := transport.Calls[0].Arguments.Get(3).([]byte)
		assert.Contains(t, string(raw), "Subject: "+DefaultSubject)
	})

	t.Run("transport failure is terminal and not retried", func(t *testing.T) {
		transport := new(mockTransport)
		transport.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("", errors.New("MessageRejected: address not verified"))

		result := NewDispatcher(transport, "subject", time.Second).
			Dispatch(ctx, testContent(), "reports@example.com", "finops@example.com")

		assert.Equal(t, domain.DeliveryFailed, result.Status)
		assert.Contains(t, result.Reason, "address not verified")
		assert.ErrorIs(t, AsError(result), ErrDeliveryFailed)
		transport.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("missing recipient", func(t *testing.T) {
		transport := new(mockTransport)

		result := NewDispatcher(transport, "", 0).Dispatch(ctx, testContent(), "reports@example.com", "")

		assert.Equal(t, domain.DeliveryFailed, result.Status)
		transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESTransport_Send(t *testing.T) {
	api := &fakeSES{}

	id, err := NewSESTransportWithAPI(api).Send(context.Background(), "a@example.com", "b@example.com", []byte("raw"))

	require.NoError(t, err)
	assert.Equal(t, "ses-1", id)
	assert.Equal(t, "a@example.com", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"b@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, []byte("raw"), api.input.Content.Raw.Data)

	_, err = NewSESTransportWithAPI(&fakeSES{err: errors.New("throttled")}).
		Send(context.Background(), "a@example.com", "b@example.com", nil)
	assert.ErrorContains(t, err, "throttled")
}

// fakeRelay speaks just enough SMTP over one end of a pipe to accept a
// single message. A non-nil stall holds the DATA reply until it is closed.
type fakeRelay struct {
	rejectRcpt bool
	stall      chan struct{}

	mu       sync.Mutex
	commands []string
	message  []byte
}

func (r *fakeRelay) serve(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 relay.example.com ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.commands = append(r.commands, line)
		r.mu.Unlock()

		switch verb := strings.ToUpper(strings.Fields(line)[0]); verb {
		case "EHLO":
			_ = tp.PrintfLine("250-relay.example.com")
			_ = tp.PrintfLine("250 AUTH PLAIN")
		case "AUTH":
			_ = tp.PrintfLine("235 authenticated")
		case "RCPT":
			if r.rejectRcpt {
				_ = tp.PrintfLine("550 no such user")
				continue
			}
			_ = tp.PrintfLine("250 ok")
		case "DATA":
			if r.stall != nil {
				<-r.stall
				return
			}
			_ = tp.PrintfLine("354 go ahead")
			body, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			r.mu.Lock()
			r.message = body
			r.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 ok")
		}
	}
}

func (r *fakeRelay) delivered() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message
}

func (r *fakeRelay) sawCommand(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func relayTransport(config SMTPConfig, relay *fakeRelay, dialed *string) *SMTPTransport {
	tr := NewSMTPTransport(config)
	tr.dial = func(_ context.Context, _, addr string) (net.Conn, error) {
		if dialed != nil {
			*dialed = addr
		}
		client, server := net.Pipe()
		go relay.serve(server)
		return client, nil
	}
	return tr
}

func TestSMTPTransport_Send(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		relay := &fakeRelay{}
		var dialed string
		tr := relayTransport(SMTPConfig{Host: "localhost", Username: "u", Password: "p"}, relay, &dialed)

		_, err := tr.Send(context.Background(), "a@example.com", "b@example.com", []byte("Subject: hi\r\n\r\nbody\r\n"))

		require.NoError(t, err)
		assert.Equal(t, "localhost:587", dialed)
		assert.True(t, relay.sawCommand("AUTH PLAIN"))
		assert.True(t, relay.sawCommand("MAIL FROM:<a@example.com>"))
		assert.True(t, relay.sawCommand("RCPT TO:<b@example.com>"))
		assert.Contains(t, string(relay.delivered()), "body")
	})

	t.Run("no auth without username", func(t *testing.T) {
		relay := &fakeRelay{}
		var dialed string
		tr := relayTransport(SMTPConfig{Host: "smtp.example.com", Port: 25}, relay, &dialed)

		_, err := tr.Send(context.Background(), "a@example.com", "b@example.com", []byte("raw\r\n"))

		require.NoError(t, err)
		assert.Equal(t, "smtp.example.com:25", dialed)
		assert.False(t, relay.sawCommand("AUTH"))
	})

	t.Run("rejected recipient", func(t *testing.T) {
		relay := &fakeRelay{rejectRcpt: true}
		tr := relayTransport(SMTPConfig{Host: "smtp.example.com"}, relay, nil)

		_, err := tr.Send(context.Background(), "a@example.com", "b@example.com", []byte("raw\r\n"))

		assert.ErrorContains(t, err, "550")
		assert.Nil(t, relay.delivered())
	})

	t.Run("dial failure", func(t *testing.T) {
		tr := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com"})
		tr.dial = func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		}

		_, err := tr.Send(context.Background(), "a@example.com", "b@example.com", nil)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("context deadline stops a stalled relay", func(t *testing.T) {
		relay := &fakeRelay{stall: make(chan struct{})}
		defer close(relay.stall)
		tr := relayTransport(SMTPConfig{Host: "smtp.example.com"}, relay, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := tr.Send(ctx, "a@example.com", "b@example.com", []byte("raw\r\n"))

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
		assert.Nil(t, relay.delivered())
	})

	t.Run("cancellation closes the connection", func(t *testing.T) {
		relay := &fakeRelay{stall: make(chan struct{})}
		defer close(relay.stall)
		tr := relayTransport(SMTPConfig{Host: "smtp.example.com"}, relay, nil)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := tr.Send(ctx, "a@example.com", "b@example.com", []byte("raw\r\n"))

		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, relay.delivered())
	})
}
