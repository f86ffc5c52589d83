package delivery

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"time"
)

const base64LineLength = 76

// Message is a report email: text and HTML alternatives plus one attachment.
type Message struct {
	Sender         string
	Recipient      string
	Subject        string
	TextBody       string
	HTMLBody       string
	Attachment     []byte
	AttachmentName string
	Date           time.Time
}

// Bytes encodes the message as multipart/mixed MIME.
func (m Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.Sender)
	fmt.Fprintf(&buf, "To: %s\r\n", m.Recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.Date.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	if err := m.writeAlternative(mixed); err != nil {
		return nil, err
	}
	if len(m.Attachment) > 0 || m.AttachmentName != "" {
		if err := m.writeAttachment(mixed); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func (m Message) writeAlternative(mixed *multipart.Writer) error {
	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)

	if err := writeText(alt, "text/plain; charset=utf-8", m.TextBody); err != nil {
		return err
	}
	if m.HTMLBody != "" {
		if err := writeText(alt, "text/html; charset=utf-8", m.HTMLBody); err != nil {
			return err
		}
	}
	if err := alt.Close(); err != nil {
		return fmt.Errorf("failed to close alternative part: %w", err)
	}

	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary())},
	})
	if err != nil {
		return fmt.Errorf("failed to create alternative part: %w", err)
	}
	_, err = part.Write(altBuf.Bytes())
	return err
}

func (m Message) writeAttachment(mixed *multipart.Writer) error {
	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType("text/csv", map[string]string{"charset": "utf-8", "name": m.AttachmentName})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": m.AttachmentName})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(m.Attachment)
	for len(encoded) > base64LineLength {
		if _, err := fmt.Fprintf(part, "%s\r\n", encoded[:base64LineLength]); err != nil {
			return err
		}
		encoded = encoded[base64LineLength:]
	}
	_, err = fmt.Fprintf(part, "%s\r\n", encoded)
	return err
}

func writeText(w *multipart.Writer, contentType, body string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create text part: %w", err)
	}

	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}
