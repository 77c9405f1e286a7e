package provider

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailminder/pkg/circuitbreaker"
	"mailminder/pkg/config"
)

// New 按 driver 构造邮件源并套上熔断器
func New(cfg config.ProviderConfig, logger *zap.Logger) (MessageProvider, error) {
	var p MessageProvider
	switch cfg.Driver {
	case "", "gmail":
		p = NewGmailProvider(logger,
			WithGmailBaseURL(cfg.GmailBaseURL),
			WithGmailQuery(cfg.Query, cfg.MaxResults),
			WithGmailTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		)
	case "imap":
		if cfg.IMAP.Addr == "" {
			return nil, fmt.Errorf("provider.imap.addr is required for the imap driver")
		}
		p = NewIMAPProvider(cfg.IMAP.Addr, cfg.IMAP.Username, cfg.IMAP.Mailbox, cfg.MaxResults, logger)
	default:
		return nil, fmt.Errorf("unknown provider driver %q", cfg.Driver)
	}

	bc := circuitbreaker.DefaultConfig()
	if cfg.Breaker.MaxFailures > 0 {
		bc.FailureThreshold = cfg.Breaker.MaxFailures
	}
	if cfg.Breaker.ResetSeconds > 0 {
		bc.Timeout = time.Duration(cfg.Breaker.ResetSeconds) * time.Second
	}
	if cfg.Breaker.HalfOpenMaxReqs > 0 {
		bc.HalfOpenMaxRequests = cfg.Breaker.HalfOpenMaxReqs
	}
	return WithBreaker(p, bc), nil
}
