package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailminder/internal/apperr"
	"mailminder/internal/model"
)

const (
	DefaultGmailBaseURL = "https://gmail.googleapis.com/"
	DefaultGmailQuery   = "is:important in:inbox"
	DefaultMaxResults   = 15
)

// GmailProvider 通过 Gmail API 拉取邮件元数据
type GmailProvider struct {
	baseURL    string
	query      string
	maxResults int
	timeout    time.Duration
	logger     *zap.Logger
}

type GmailOption func(*GmailProvider)

// WithGmailBaseURL 覆盖 API 地址，测试时指向 httptest
func WithGmailBaseURL(u string) GmailOption {
	return func(p *GmailProvider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/") + "/"
		}
	}
}

func WithGmailQuery(q string, maxResults int) GmailOption {
	return func(p *GmailProvider) {
		if q != "" {
			p.query = q
		}
		if maxResults > 0 {
			p.maxResults = maxResults
		}
	}
}

func WithGmailTimeout(d time.Duration) GmailOption {
	return func(p *GmailProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewGmailProvider(logger *zap.Logger, opts ...GmailOption) *GmailProvider {
	p := &GmailProvider{
		baseURL:    DefaultGmailBaseURL,
		query:      DefaultGmailQuery,
		maxResults: DefaultMaxResults,
		timeout:    15 * time.Second,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GmailProvider) Name() string { return "gmail" }

// Fetch lists matching messages and loads metadata for each. An empty access
// token yields an empty result.
func (p *GmailProvider) Fetch(ctx context.Context, creds Credentials) ([]model.MessageSummary, error) {
	if creds.AccessToken == "" {
		p.logger.Warn("Gmail fetch skipped: empty access token")
		return []model.MessageSummary{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
	}))
	svc, err := gmail.NewService(ctx,
		option.WithHTTPClient(httpClient),
		option.WithEndpoint(p.baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %w", err)
	}

	list, err := svc.Users.Messages.List("me").
		Q(p.query).
		MaxResults(int64(p.maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, gmailError("list messages", err)
	}

	out := make([]model.MessageSummary, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date").
			Fields("id", "snippet", "internalDate", "payload/headers").
			Context(ctx).
			Do()
		if err != nil {
			return nil, gmailError("get message "+ref.Id, err)
		}
		out = append(out, toSummary(msg))
	}

	p.logger.Debug("Fetched Gmail messages", zap.Int("count", len(out)))
	return out, nil
}

// gmailError 401/403 视为凭据失效，其余原样包装
func gmailError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return apperr.Unauthenticated("mail provider rejected the access token")
	}
	return fmt.Errorf("gmail %s: %w", op, err)
}

func toSummary(msg *gmail.Message) model.MessageSummary {
	s := model.MessageSummary{
		ID:      msg.Id,
		Subject: defaultSubject,
		Sender:  defaultSender,
		Snippet: msg.Snippet,
	}
	if msg.Payload != nil {
		s.Subject = orDefault(header(msg.Payload.Headers, "Subject"), defaultSubject)
		s.Sender = orDefault(header(msg.Payload.Headers, "From"), defaultSender)
	}
	if msg.InternalDate > 0 {
		s.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	return s
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
