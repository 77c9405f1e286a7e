package provider

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailminder/internal/apperr"
	"mailminder/pkg/circuitbreaker"
)

const (
	imapTestUser = "alice@example.com"
	imapTestPass = "app-password"
)

func newIMAPServer(t *testing.T) string {
	t.Helper()

	mem := imapmemserver.New()
	user := imapmemserver.NewUser(imapTestUser, imapTestPass)
	require.NoError(t, user.Create("INBOX", nil))
	mem.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps:         imap.CapSet{imap.CapIMAP4rev1: {}},
		InsecureAuth: true,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return ln.Addr().String()
}

func appendMessage(t *testing.T, addr string, raw string, flags ...imap.Flag) {
	t.Helper()

	c, err := imapclient.DialInsecure(addr, nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Login(imapTestUser, imapTestPass).Wait())

	cmd := c.Append("INBOX", int64(len(raw)), &imap.AppendOptions{Flags: flags})
	_, err = io.WriteString(cmd, raw)
	require.NoError(t, err)
	require.NoError(t, cmd.Close())
	_, err = cmd.Wait()
	require.NoError(t, err)
}

func rawMessage(subject, from string) string {
	h := "Date: Mon, 02 Mar 2026 09:00:00 +0000\r\n"
	if subject != "" {
		h += "Subject: " + subject + "\r\n"
	}
	if from != "" {
		h += "From: " + from + "\r\n"
	}
	return h + "\r\nbody\r\n"
}

func newTestIMAPProvider(addr string, limit int) *IMAPProvider {
	p := NewIMAPProvider(addr, imapTestUser, "", limit, zap.NewNop())
	p.dial = imapclient.DialInsecure
	return p
}

func TestIMAPFetchNewestFlaggedFirst(t *testing.T) {
	addr := newIMAPServer(t)
	appendMessage(t, addr, rawMessage("Not important", "x@example.com"))
	for i := 1; i <= 3; i++ {
		appendMessage(t, addr, rawMessage(fmt.Sprintf("Flagged %d", i), "Bob <bob@example.com>"), imap.FlagFlagged)
	}

	got, err := newTestIMAPProvider(addr, 2).Fetch(context.Background(), Credentials{AccessToken: imapTestPass})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "Flagged 3", got[0].Subject)
	assert.Equal(t, "Bob <bob@example.com>", got[0].Sender)
	assert.Equal(t, "3", got[1].ID)
	assert.Equal(t, "Flagged 2", got[1].Subject)
}

func TestIMAPFetchDefaultsAndEncodedSubject(t *testing.T) {
	addr := newIMAPServer(t)
	appendMessage(t, addr, rawMessage("", ""), imap.FlagFlagged)
	appendMessage(t, addr, rawMessage("=?KOI8-R?B?8NLJ18XU?=", "ivan@example.com"), imap.FlagFlagged)

	got, err := newTestIMAPProvider(addr, 10).Fetch(context.Background(), Credentials{AccessToken: imapTestPass})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Привет", got[0].Subject)
	assert.Equal(t, "ivan@example.com", got[0].Sender)
	assert.Equal(t, "(No Subject)", got[1].Subject)
	assert.Equal(t, "(Unknown Sender)", got[1].Sender)
}

func TestIMAPFetchRejectedLogin(t *testing.T) {
	addr := newIMAPServer(t)

	_, err := newTestIMAPProvider(addr, 5).Fetch(context.Background(), Credentials{AccessToken: "wrong"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestIMAPFetchEmptyToken(t *testing.T) {
	got, err := newTestIMAPProvider("127.0.0.1:1", 5).Fetch(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIMAPLoginErrorClassification(t *testing.T) {
	rejected := &imap.Error{Type: imap.StatusResponseTypeNo, Text: "invalid credentials"}
	assert.True(t, apperr.Is(loginError(context.Background(), "a", rejected), apperr.KindUnauthenticated))

	err := loginError(context.Background(), "a", io.ErrUnexpectedEOF)
	assert.False(t, apperr.Is(err, apperr.KindUnauthenticated))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, loginError(ctx, "a", net.ErrClosed), context.Canceled)
}

func TestIMAPClientDecodesLegacyCharsets(t *testing.T) {
	got, err := clientOptions().WordDecoder.DecodeHeader("=?KOI8-R?B?8NLJ18XU?=")
	require.NoError(t, err)
	assert.Equal(t, "Привет", got)
}

func TestIMAPBreakerCountsConnectionFailures(t *testing.T) {
	err := loginError(context.Background(), "a", io.ErrUnexpectedEOF)
	stub := &stubProvider{err: err}
	p := WithBreaker(stub, circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour})

	_, _ = p.Fetch(context.Background(), Credentials{AccessToken: "x"})
	_, err = p.Fetch(context.Background(), Credentials{AccessToken: "x"})
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, 1, stub.calls)
}
