package provider

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"

	"mailminder/internal/apperr"
	"mailminder/internal/model"
)

// IMAPProvider 通过 IMAP 读取收件箱最新的信封，凭据中的 token 作为密码
type IMAPProvider struct {
	addr     string
	username string
	mailbox  string
	limit    int
	since    time.Duration
	dial     func(addr string, opts *imapclient.Options) (*imapclient.Client, error)
	logger   *zap.Logger
}

func NewIMAPProvider(addr, username, mailbox string, limit int, logger *zap.Logger) *IMAPProvider {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	return &IMAPProvider{
		addr:     addr,
		username: username,
		mailbox:  mailbox,
		limit:    limit,
		since:    14 * 24 * time.Hour,
		dial:     imapclient.DialTLS,
		logger:   logger,
	}
}

func (p *IMAPProvider) Name() string { return "imap" }

func (p *IMAPProvider) Fetch(ctx context.Context, creds Credentials) ([]model.MessageSummary, error) {
	if creds.AccessToken == "" {
		return []model.MessageSummary{}, nil
	}
	username := creds.Username
	if username == "" {
		username = p.username
	}

	client, err := p.dial(p.addr, clientOptions())
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", p.addr, err)
	}
	defer func() { _ = client.Logout().Wait() }()

	// imapclient 的命令不接收 context，取消时直接关闭连接
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if err := client.Login(username, creds.AccessToken).Wait(); err != nil {
		return nil, loginError(ctx, username, err)
	}

	if _, err := client.Select(p.mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", p.mailbox, err)
	}

	search, err := client.UIDSearch(&imap.SearchCriteria{
		Since:   time.Now().Add(-p.since),
		Flag:    []imap.Flag{imap.FlagFlagged},
		NotFlag: []imap.Flag{imap.FlagDeleted},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := search.AllUIDs()
	if len(uids) == 0 {
		return []model.MessageSummary{}, nil
	}
	if len(uids) > p.limit {
		uids = uids[len(uids)-p.limit:]
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	})
	defer fetchCmd.Close()

	out := make([]model.MessageSummary, 0, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			p.logger.Warn("Skipping unreadable IMAP message", zap.Error(err))
			continue
		}
		out = append(out, summaryFromBuffer(buf))
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching envelopes: %w", err)
	}

	// 最新的在前，与 Gmail 保持一致
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// clientOptions 非 UTF-8 的编码字(如 KOI8-R、GB2312)交给 go-message 解码
func clientOptions() *imapclient.Options {
	return &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}
}

// loginError 只有服务端明确回复 NO/BAD 才算凭据问题，连接错误按不可用处理
func loginError(ctx context.Context, username string, err error) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return apperr.Unauthenticated("IMAP login rejected for %s", username)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("IMAP login interrupted: %w", ctxErr)
	}
	return fmt.Errorf("IMAP login: %w", err)
}

func summaryFromBuffer(buf *imapclient.FetchMessageBuffer) model.MessageSummary {
	s := model.MessageSummary{
		ID:      fmt.Sprintf("%d", buf.UID),
		Subject: defaultSubject,
		Sender:  defaultSender,
	}
	if env := buf.Envelope; env != nil {
		s.Subject = orDefault(env.Subject, defaultSubject)
		s.Date = env.Date.UTC()
		if len(env.From) > 0 {
			from := env.From[0]
			if from.Name != "" {
				s.Sender = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
			} else {
				s.Sender = orDefault(from.Addr(), defaultSender)
			}
		}
	}
	return s
}
