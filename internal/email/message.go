package email

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"time"
)

// Kind classifies outgoing mail for mock storage.
type Kind string

const (
	KindNewEnquiry Kind = "new_enquiry"
	KindUnknown    Kind = "unknown"
)

// SubjectPrefixNewEnquiry starts the subject of every staff notification about a new enquiry.
const SubjectPrefixNewEnquiry = "New enquiry"

// KindFromSubject maps a subject line back to its Kind.
func KindFromSubject(subject string) Kind {
	if strings.HasPrefix(subject, SubjectPrefixNewEnquiry) {
		return KindNewEnquiry
	}
	return KindUnknown
}

// BuildPlainMessage renders a minimal RFC 5322 plain-text message.
func BuildPlainMessage(from string, to []string, subject, body string, at time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", at.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes()
}
