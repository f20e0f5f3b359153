package email

import (
	"context"
	"time"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/internal/processing"
	"github.com/mlindner/invoicescan/internal/repository"
	"go.uber.org/zap"
)

// Importer drives the mailbox import flow: connect, browse, pull PDF
// attachments through the standard extraction pipeline.
type Importer struct {
	registry  *SessionRegistry
	processor *processing.Processor
	accounts  *repository.EmailAccountRepository
	logger    *zap.Logger
}

func NewImporter(
	registry *SessionRegistry,
	processor *processing.Processor,
	accounts *repository.EmailAccountRepository,
	logger *zap.Logger,
) *Importer {
	return &Importer{
		registry:  registry,
		processor: processor,
		accounts:  accounts,
		logger:    logger,
	}
}

// Connect opens an authenticated session for the account and stores the
// credentials for reuse. Returns the session ID for follow-up calls.
func (i *Importer) Connect(ctx context.Context, account *entity.EmailAccount) (string, error) {
	client, err := Connect(account, i.logger)
	if err != nil {
		return "", err
	}

	if err := i.accounts.Save(ctx, account); err != nil {
		i.logger.Warn("failed to store email account", zap.Error(err))
	}
	if err := i.accounts.TouchLastUsed(ctx, account.Email); err != nil {
		i.logger.Warn("failed to record account usage", zap.Error(err))
	}

	return i.registry.Add(account, client), nil
}

// Disconnect closes a session.
func (i *Importer) Disconnect(sessionID string) {
	i.registry.Remove(sessionID)
}

// Mailboxes lists the folders of a connected session.
func (i *Importer) Mailboxes(sessionID string) ([]string, error) {
	s, err := i.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Client.Mailboxes()
}

// ImportResult summarizes one mailbox import run.
type ImportResult struct {
	Mailbox    string                      `json:"mailbox"`
	Messages   int                         `json:"messages_searched"`
	Found      int                         `json:"attachments_found"`
	Imported   int                         `json:"imported"`
	Duplicates int                         `json:"duplicates"`
	Failed     int                         `json:"failed"`
	Results    []*processing.ProcessResult `json:"results"`
}

// Import searches a mailbox for messages since the given date and feeds
// every PDF attachment through extraction. Per-attachment failures do
// not abort the run.
func (i *Importer) Import(ctx context.Context, sessionID, mailbox string, since time.Time) (*ImportResult, error) {
	s, err := i.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	uids, err := s.Client.SearchSince(mailbox, since)
	if err != nil {
		return nil, err
	}
	attachments, err := s.Client.FetchPDFAttachments(mailbox, uids)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Mailbox:  mailbox,
		Messages: len(uids),
		Found:    len(attachments),
	}
	for _, att := range attachments {
		res, err := i.processor.ProcessEmailAttachment(ctx, att.Filename, att.Data, att.Mailbox, att.MessageID)
		if err != nil {
			i.logger.Error("failed to import attachment",
				zap.String("filename", att.Filename), zap.Error(err))
			result.Failed++
			result.Results = append(result.Results, &processing.ProcessResult{
				Filename: att.Filename,
				Error:    err.Error(),
			})
			continue
		}
		switch {
		case res.Duplicate:
			result.Duplicates++
		default:
			result.Imported++
		}
		result.Results = append(result.Results, res)
	}

	i.logger.Info("mailbox import finished",
		zap.String("mailbox", mailbox),
		zap.Int("messages", result.Messages),
		zap.Int("imported", result.Imported),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed))
	return result, nil
}
