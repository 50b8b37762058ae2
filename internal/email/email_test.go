package email

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/config"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	args := m.Called(ctx, to, subject, rawMessage)
	return args.Error(0)
}

func TestCompositeEmailSender_CallsAllAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	to := []string{"staff@example.com"}
	boom := errors.New("boom")

	failing := new(mockSender)
	failing.On("Send", ctx, to, "subj", []byte("raw")).Return(boom)
	ok := new(mockSender)
	ok.On("Send", ctx, to, "subj", []byte("raw")).Return(nil)

	cs := NewCompositeEmailSender(failing)
	cs.AddSender(ok)
	cs.AddSender(nil)

	err := cs.Send(ctx, to, "subj", []byte("raw"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)

	assert.Contains(t, err.Error(), "*email.mockSender: boom")

	assert.ErrorIs(t, NewCompositeEmailSender().Send(ctx, to, "subj", nil), ErrNoSenders)
	assert.ErrorIs(t, NewCompositeEmailSender(nil, nil).Send(ctx, to, "subj", nil), ErrNoSenders)
}

func TestCompositeEmailSender_SingleSenderPassesErrorThrough(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	only := new(mockSender)
	only.On("Send", ctx, []string{"a@example.com"}, "s", []byte("b")).Return(boom)

	err := NewCompositeEmailSender(only).Send(ctx, []string{"a@example.com"}, "s", []byte("b"))
	assert.Equal(t, boom, err)
	only.AssertExpectations(t)
}

func TestFileEmailSender_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "emails.log")
	sender, err := NewFileEmailSender(path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), []string{"a@example.com"}, "first", []byte("body one")))
	require.NoError(t, sender.Send(context.Background(), []string{"b@example.com"}, "second", []byte("body two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Subject: first")
	assert.Contains(t, content, "body two")
	assert.Equal(t, 2, strings.Count(content, "--- End Logged Email ---"))

	_, err = NewFileEmailSender("  ", zap.NewNop())
	assert.Error(t, err)
}

func TestNewSMTPSender_FallsBackToLogging(t *testing.T) {
	sender := NewSMTPSender(&config.Config{}, zap.NewNop())
	_, isLogging := sender.(*LoggingSender)
	assert.True(t, isLogging)
	assert.NoError(t, sender.Send(context.Background(), []string{"x@example.com"}, "s", []byte("b")))
}

func TestBuildPlainMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	raw := string(BuildPlainMessage("noreply@example.com", []string{"a@example.com", "b@example.com"}, "New enquiry: Flat", "line one\nline two", at))

	assert.Contains(t, raw, "From: noreply@example.com\r\n")
	assert.Contains(t, raw, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, raw, "Subject: New enquiry: Flat\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline one\r\nline two"))

	assert.Equal(t, KindNewEnquiry, KindFromSubject("New enquiry: Flat"))
	assert.Equal(t, KindUnknown, KindFromSubject("Hello"))
}

func TestRedisSender_StoresPerRecipient(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR_TEST")
	if addr == "" {
		t.Skip("REDIS_ADDR_TEST not set, skipping Redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	sender := NewRedisSender(client, &config.Config{SmtpFromAddress: "noreply@example.com"}, zap.NewNop())
	to := []string{"one@example.com", "two@example.com"}
	require.NoError(t, sender.Send(ctx, to, SubjectPrefixNewEnquiry+": Flat", []byte("body")))

	for _, address := range to {
		val, err := client.Get(ctx, MockEmailKey(address, KindNewEnquiry)).Result()
		require.NoError(t, err)
		assert.Contains(t, val, `"kind":"new_enquiry"`)
		client.Del(ctx, MockEmailKey(address, KindNewEnquiry))
	}
}
