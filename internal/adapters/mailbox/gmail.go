package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"

	"github.com/spec-kit/helpdesk-intake/internal/adapters/resilience"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
)

// GmailSource lists unread inbox messages, hands each one out once and
// marks it read.
type GmailSource struct {
	svc        *gmail.Service
	user       string
	query      string
	maxResults int64
	seen       repository.SeenMessageRepository
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewGmailSource creates the source. seen may be nil, in which case the
// UNREAD label alone guards against redelivery.
func NewGmailSource(svc *gmail.Service, cfg config.GmailConfig, seen repository.SeenMessageRepository, logger *zap.Logger) *GmailSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	user := cfg.User
	if user == "" {
		user = "me"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	return &GmailSource{
		svc:        svc,
		user:       user,
		query:      cfg.Query,
		maxResults: maxResults,
		seen:       seen,
		cb:         resilience.NewBreaker("gmail", logger),
		logger:     logger.With(zap.String("component", "gmail_source")),
	}
}

// FetchCandidates implements service.MailSource.
func (s *GmailSource) FetchCandidates(ctx context.Context, since time.Time) ([]domain.EmailCandidate, error) {
	ids, err := s.list(ctx, since)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.EmailCandidate, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		msg, err := resilience.Do(s.cb, "get message", func() (*gmail.Message, error) {
			return s.svc.Users.Messages.Get(s.user, id).Format("full").Context(ctx).Do()
		})
		if err != nil {
			s.logger.Warn("skipping unreadable message", zap.String("message_id", id), zap.Error(err))
			continue
		}

		if s.seen != nil {
			fresh, err := s.seen.MarkSeen(ctx, id)
			if err != nil {
				s.logger.Warn("seen-message store unavailable", zap.String("message_id", id), zap.Error(err))
			} else if !fresh {
				s.logger.Debug("message already handed out", zap.String("message_id", id))
				s.markRead(ctx, id)
				continue
			}
		}

		candidates = append(candidates, toCandidate(msg))
		s.markRead(ctx, id)
	}

	s.logger.Info("fetched candidates", zap.Int("listed", len(ids)), zap.Int("returned", len(candidates)))
	return candidates, nil
}

// Requeue implements service.MailRequeuer: each message is forgotten by the
// seen store and marked unread again so the next fetch lists it.
func (s *GmailSource) Requeue(ctx context.Context, messageIDs []string) error {
	var errs []error
	for _, id := range messageIDs {
		if s.seen != nil {
			if err := s.seen.Forget(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("forget %s: %w", id, err))
			}
		}
		_, err := resilience.Do(s.cb, "modify message", func() (*gmail.Message, error) {
			return s.svc.Users.Messages.Modify(s.user, id, &gmail.ModifyMessageRequest{
				AddLabelIds: []string{"UNREAD"},
			}).Context(ctx).Do()
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("mark %s unread: %w", id, err))
			continue
		}
		s.logger.Info("message requeued", zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

func (s *GmailSource) list(ctx context.Context, since time.Time) ([]string, error) {
	q := s.query
	if !since.IsZero() {
		q = strings.TrimSpace(fmt.Sprintf("%s after:%d", q, since.Unix()))
	}

	var ids []string
	pageToken := ""
	for int64(len(ids)) < s.maxResults {
		call := s.svc.Users.Messages.List(s.user).Q(q).MaxResults(s.maxResults - int64(len(ids))).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := resilience.Do(s.cb, "list messages", func() (*gmail.ListMessagesResponse, error) {
			return call.Do()
		})
		if err != nil {
			return nil, err
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}

func (s *GmailSource) markRead(ctx context.Context, id string) {
	_, err := resilience.Do(s.cb, "modify message", func() (*gmail.Message, error) {
		return s.svc.Users.Messages.Modify(s.user, id, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
	})
	if err != nil {
		s.logger.Warn("failed to mark message read", zap.String("message_id", id), zap.Error(err))
	}
}

func toCandidate(msg *gmail.Message) domain.EmailCandidate {
	var headers map[string]string
	var body string
	if msg.Payload != nil {
		headers = headerMap(msg.Payload.Headers)
		body = extractBody(msg.Payload)
	}

	c := domain.EmailCandidate{
		MessageID:  msg.Id,
		Subject:    strings.TrimSpace(headers["Subject"]),
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
		Headers:    headers,
	}
	if addr, err := mail.ParseAddress(headers["From"]); err == nil {
		c.Sender = strings.ToLower(addr.Address)
		c.SenderName = addr.Name
	} else {
		c.Sender = strings.ToLower(strings.TrimSpace(headers["From"]))
	}
	if IsVagueSubject(c.Subject) {
		c.Preview = BodyPreview(body)
	}
	return c
}

func headerMap(headers []*gmail.MessagePartHeader) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		if _, ok := out[h.Name]; !ok {
			out[h.Name] = h.Value
		}
	}
	return out
}

// extractBody returns the first text/plain part, searching nested
// multiparts.
func extractBody(part *gmail.MessagePart) string {
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
			return decoded
		}
	}
	for _, p := range part.Parts {
		if body := extractBody(p); body != "" {
			return body
		}
	}
	return ""
}

func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return "", err
		}
	}
	return string(decoded), nil
}
