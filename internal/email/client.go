// Package email imports invoice PDFs from IMAP mailboxes. A browsing
// session keeps one authenticated connection alive between the connect,
// list and import requests of the review UI.
package email

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/mlindner/invoicescan/internal/domain/entity"
	"go.uber.org/zap"
)

// Attachment is one PDF pulled out of a mailbox message.
type Attachment struct {
	Filename  string
	Data      []byte
	Mailbox   string
	MessageID string
	Subject   string
	From      string
	Date      time.Time
}

// Client wraps one authenticated IMAP connection.
type Client struct {
	c      *imapclient.Client
	logger *zap.Logger
}

// Connect dials the account's IMAP server and logs in.
func Connect(account *entity.EmailAccount, logger *zap.Logger) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAPServer, account.Port)

	var c *imapclient.Client
	var err error
	if account.UseSSL {
		c, err = imapclient.DialTLS(addr, nil)
	} else {
		c, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := c.Login(account.Email, account.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("login failed for %s: %w", account.Email, err)
	}

	logger.Info("connected to mailbox",
		zap.String("server", addr), zap.String("email", account.Email))
	return &Client{c: c, logger: logger}, nil
}

// Close logs out and drops the connection.
func (c *Client) Close() error {
	return c.c.Logout()
}

// Mailboxes lists the folder names on the server.
func (c *Client) Mailboxes() ([]string, error) {
	ch := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.c.List("", "*", ch)
	}()

	var names []string
	for m := range ch {
		names = append(names, m.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return names, nil
}

// SearchSince selects a mailbox read-only and returns the UIDs of
// messages received on or after the given date.
func (c *Client) SearchSince(mailbox string, since time.Time) ([]uint32, error) {
	if _, err := c.c.Select(mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select mailbox %q: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}
	uids, err := c.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed in %q: %w", mailbox, err)
	}
	return uids, nil
}

// FetchPDFAttachments fetches the given messages and extracts every PDF
// attachment. Messages that cannot be parsed are skipped with a warning.
func (c *Client) FetchPDFAttachments(mailbox string, uids []uint32) ([]Attachment, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope, imap.FetchUid}

	messages := make(chan *imap.Message, 8)
	done := make(chan error, 1)
	go func() {
		done <- c.c.UidFetch(seqset, items, messages)
	}()

	var attachments []Attachment
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		found, err := c.extractPDFs(msg, body, mailbox)
		if err != nil {
			c.logger.Warn("failed to parse message, skipping",
				zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		attachments = append(attachments, found...)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch failed in %q: %w", mailbox, err)
	}
	return attachments, nil
}

func (c *Client) extractPDFs(msg *imap.Message, body io.Reader, mailbox string) ([]Attachment, error) {
	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, err
	}

	var messageID, subject, from string
	var date time.Time
	if msg.Envelope != nil {
		messageID = msg.Envelope.MessageId
		subject = msg.Envelope.Subject
		date = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}
	}

	var attachments []Attachment
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		h, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil || !strings.EqualFold(filepath.Ext(filename), ".pdf") {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, Attachment{
			Filename:  filename,
			Data:      data,
			Mailbox:   mailbox,
			MessageID: messageID,
			Subject:   subject,
			From:      from,
			Date:      date,
		})
	}
	return attachments, nil
}
