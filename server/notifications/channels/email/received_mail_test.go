package email_test

import (
	"strings"

	smtpmock "github.com/mocktools/go-smtp-mock/v2"
)

type ReceivedMail struct {
	smtpmock.Message
}

func (r ReceivedMail) breakDown() []string {
	return strings.Split(r.MsgRequest(), "\r\n")
}

func (r ReceivedMail) header(name string) (string, bool) {
	prefix := name + ": "
	for _, line := range r.breakDown() {
		if line == "" {
			break
		}
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix), true
		}
	}
	return "", false
}

func (r ReceivedMail) GetTo() []string {
	to, found := r.header("To")
	if !found {
		return nil
	}
	rawMails := strings.Split(to, ">, <")
	for i := range rawMails {
		rawMails[i] = strings.Trim(rawMails[i], "<>")
	}
	return rawMails
}

func (r ReceivedMail) GetContentType() string {
	contentType, _ := r.header("Content-Type")
	return contentType
}

func (r ReceivedMail) GetSubject() string {
	subject, _ := r.header("Subject")
	return subject
}

func (r ReceivedMail) GetMessageID() string {
	id, _ := r.header("Message-ID")
	return strings.Trim(id, "<>")
}

func (r ReceivedMail) GetContent() string {
	request := r.MsgRequest()
	from := strings.Index(request, "\r\n\r\n")

	return request[from+4 : len(request)-2]
}
