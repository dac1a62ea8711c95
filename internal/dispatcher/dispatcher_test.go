package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"wisefido-escalation/internal/models"
	"wisefido-escalation/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSMS struct {
	calls      int
	lastTo     string
	lastBody   string
	err        error
	providerID string
	block      bool
}

func (f *fakeSMS) SendSMS(ctx context.Context, toE164, body string) (string, error) {
	f.calls++
	f.lastTo = toE164
	f.lastBody = body
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.providerID, f.err
}

type fakePush struct {
	calls      int
	lastTopic  string
	err        error
	providerID string
}

func (f *fakePush) SendPush(ctx context.Context, endpoint, title, body string) (string, error) {
	f.calls++
	f.lastTopic = endpoint
	return f.providerID, f.err
}

type fakeEmail struct {
	calls     int
	lastTo    string
	err       error
	messageID string
}

func (f *fakeEmail) SendEmail(ctx context.Context, to, subject, html, text string) (string, error) {
	f.calls++
	f.lastTo = to
	return f.messageID, f.err
}

func str(s string) *string { return &s }

func testTimeouts() Timeouts {
	return Timeouts{SMS: 10 * time.Second, Push: 5 * time.Second, Email: 10 * time.Second}
}

func testMessage() Message {
	return Message{Title: "t", Short: "s", Subject: "subj", HTML: "<p>h</p>", Text: "txt"}
}

func TestSend_SMSSuccess(t *testing.T) {
	sms := &fakeSMS{providerID: "SM123"}
	d := NewDispatcher(sms, &fakePush{}, &fakeEmail{}, testTimeouts(), zap.NewNop())

	recipient := models.Recipient{RecipientID: "r1", Phone: str("+1 (415) 555-0100")}
	out := d.Send(context.Background(), models.ChannelSMS, recipient, testMessage())

	assert.Equal(t, models.AttemptSent, out.Status)
	assert.Equal(t, "SM123", out.ProviderMessageID)
	assert.Equal(t, 1, sms.calls)
	assert.Equal(t, "+14155550100", sms.lastTo)
}

func TestSend_MissingPhoneNoTransportCall(t *testing.T) {
	sms := &fakeSMS{}
	d := NewDispatcher(sms, &fakePush{}, &fakeEmail{}, testTimeouts(), zap.NewNop())

	out := d.Send(context.Background(), models.ChannelSMS, models.Recipient{RecipientID: "r1"}, testMessage())

	assert.Equal(t, models.AttemptFailed, out.Status)
	assert.True(t, out.Permanent)
	assert.Equal(t, 0, sms.calls, "no network call for malformed recipient")
}

func TestSend_UnnormalizablePhoneNoTransportCall(t *testing.T) {
	sms := &fakeSMS{}
	d := NewDispatcher(sms, &fakePush{}, &fakeEmail{}, testTimeouts(), zap.NewNop())

	recipient := models.Recipient{RecipientID: "r1", Phone: str("not-a-number")}
	out := d.Send(context.Background(), models.ChannelSMS, recipient, testMessage())

	assert.Equal(t, models.AttemptFailed, out.Status)
	assert.True(t, out.Permanent)
	assert.Contains(t, out.Error, "normalization")
	assert.Equal(t, 0, sms.calls)
}

func TestSend_TransientTransportFailure(t *testing.T) {
	sms := &fakeSMS{err: errors.New("gateway 503")}
	d := NewDispatcher(sms, &fakePush{}, &fakeEmail{}, testTimeouts(), zap.NewNop())

	recipient := models.Recipient{RecipientID: "r1", Phone: str("+14155550100")}
	out := d.Send(context.Background(), models.ChannelSMS, recipient, testMessage())

	assert.Equal(t, models.AttemptFailed, out.Status)
	assert.False(t, out.Permanent)
	assert.Contains(t, out.Error, "503")
}

func TestSend_PermanentTransportFailure(t *testing.T) {
	sms := &fakeSMS{err: transport.MarkPermanent(errors.New("invalid destination"))}
	d := NewDispatcher(sms, &fakePush{}, &fakeEmail{}, testTimeouts(), zap.NewNop())

	recipient := models.Recipient{RecipientID: "r1", Phone: str("+14155550100")}
	out := d.Send(context.Background(), models.ChannelSMS, recipient, testMessage())

	assert.Equal(t, models.AttemptFailed, out.Status)
	assert.True(t, out.Permanent)
}

func TestSend_TimeoutIsTransient(t *testing.T) {
	sms := &fakeSMS{block: true}
	d := NewDispatcher(sms, &fakePush{}, &fakeEmail{}, Timeouts{SMS: 20 * time.Millisecond, Push: time.Second, Email: time.Second}, zap.NewNop())

	recipient := models.Recipient{RecipientID: "r1", Phone: str("+14155550100")}
	out := d.Send(context.Background(), models.ChannelSMS, recipient, testMessage())

	assert.Equal(t, models.AttemptFailed, out.Status)
	assert.False(t, out.Permanent, "timeout must stay retryable")
}

func TestSend_PushSuccess(t *testing.T) {
	push := &fakePush{providerID: "p-1"}
	d := NewDispatcher(&fakeSMS{}, push, &fakeEmail{}, testTimeouts(), zap.NewNop())

	recipient := models.Recipient{RecipientID: "r1", PushEndpoint: str("wisefido/app/dev42")}
	out := d.Send(context.Background(), models.ChannelPush, recipient, testMessage())

	require.Equal(t, models.AttemptSent, out.Status)
	assert.Equal(t, "wisefido/app/dev42", push.lastTopic)
}

func TestSend_PushMissingEndpoint(t *testing.T) {
	push := &fakePush{}
	d := NewDispatcher(&fakeSMS{}, push, &fakeEmail{}, testTimeouts(), zap.NewNop())

	out := d.Send(context.Background(), models.ChannelPush, models.Recipient{RecipientID: "r1"}, testMessage())

	assert.Equal(t, models.AttemptFailed, out.Status)
	assert.True(t, out.Permanent)
	assert.Equal(t, 0, push.calls)
}

func TestSend_EmailSuccess(t *testing.T) {
	email := &fakeEmail{messageID: "m-9"}
	d := NewDispatcher(&fakeSMS{}, &fakePush{}, email, testTimeouts(), zap.NewNop())

	recipient := models.Recipient{RecipientID: "r1", Email: str("family@example.com")}
	out := d.Send(context.Background(), models.ChannelEmail, recipient, testMessage())

	require.Equal(t, models.AttemptSent, out.Status)
	assert.Equal(t, "m-9", out.ProviderMessageID)
	assert.Equal(t, "family@example.com", email.lastTo)
}

func TestSend_UnknownChannel(t *testing.T) {
	d := NewDispatcher(&fakeSMS{}, &fakePush{}, &fakeEmail{}, testTimeouts(), zap.NewNop())

	out := d.Send(context.Background(), models.Channel("fax"), models.Recipient{RecipientID: "r1"}, testMessage())

	assert.Equal(t, models.AttemptFailed, out.Status)
	assert.True(t, out.Permanent)
}
