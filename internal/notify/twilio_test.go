package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"github.com/chadiek/aura-companion/internal/escalation"
	"github.com/chadiek/aura-companion/internal/i18n"
)

type fakeAPI struct {
	mu       sync.Mutex
	messages []*twilioApi.CreateMessageParams
	calls    []*twilioApi.CreateCallParams
	msgErr   error
	callErr  error
}

func (f *fakeAPI) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, p)
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func (f *fakeAPI) CreateCall(p *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if f.callErr != nil {
		return nil, f.callErr
	}
	sid := "CA123"
	return &twilioApi.ApiV2010Call{Sid: &sid}, nil
}

type countingRecorder struct {
	mu      sync.Mutex
	results map[string][]error
}

func (c *countingRecorder) RecordNotification(channel string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = map[string][]error{}
	}
	c.results[channel] = append(c.results[channel], err)
}

func alert(lang i18n.Language) escalation.Alert {
	return escalation.Alert{UserName: "Lan", Language: lang, At: time.Now()}
}

func TestTwilio_SendsSMSAndCall(t *testing.T) {
	api := &fakeAPI{}
	rec := &countingRecorder{}
	n := NewTwilioWithAPI(api, Config{From: "+1000", To: "+2000", PublicBaseURL: "https://aura.example/", Call: true}).WithRecorder(rec)

	require.NoError(t, n.Notify(context.Background(), alert(i18n.Vietnamese)))

	require.Len(t, api.messages, 1)
	msg := api.messages[0]
	assert.Equal(t, "+2000", *msg.To)
	assert.Equal(t, "+1000", *msg.From)
	assert.Equal(t, "Aura: Lan vừa nhấn nút SOS và cần được hỗ trợ.", *msg.Body)

	require.Len(t, api.calls, 1)
	call := api.calls[0]
	assert.Equal(t, "https://aura.example/twilio/escalation-status", *call.StatusCallback)
	assert.Contains(t, *call.Twiml, "<Say")
	assert.Contains(t, *call.Twiml, `language="vi-VN"`)
	assert.Contains(t, *call.Twiml, "Lan")

	assert.Equal(t, []error{nil}, rec.results["sms"])
	assert.Equal(t, []error{nil}, rec.results["call"])
}

func TestTwilio_SMSOnlyWithoutCallback(t *testing.T) {
	api := &fakeAPI{}
	n := NewTwilioWithAPI(api, Config{From: "+1000", To: "+2000"})
	require.NoError(t, n.Notify(context.Background(), alert(i18n.English)))
	assert.Len(t, api.messages, 1)
	assert.Empty(t, api.calls)
}

func TestTwilio_CallStillPlacedWhenSMSFails(t *testing.T) {
	api := &fakeAPI{msgErr: errors.New("unverified number")}
	n := NewTwilioWithAPI(api, Config{From: "+1000", To: "+2000", Call: true})
	err := n.Notify(context.Background(), alert(i18n.English))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unverified number")
	assert.Len(t, api.calls, 1)
	assert.Nil(t, api.calls[0].StatusCallback)
}

func TestTwilio_NotConfigured(t *testing.T) {
	n := NewTwilioWithAPI(&fakeAPI{}, Config{From: "+1000"})
	assert.ErrorIs(t, n.Notify(context.Background(), alert(i18n.English)), ErrNotConfigured)
}

func TestTwilio_RateLimited(t *testing.T) {
	api := &fakeAPI{}
	n := NewTwilioWithAPI(api, Config{From: "+1000", To: "+2000"}).WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1))
	require.NoError(t, n.Notify(context.Background(), alert(i18n.English)))
	assert.ErrorIs(t, n.Notify(context.Background(), alert(i18n.English)), ErrRateLimited)
	assert.Len(t, api.messages, 1)
}

func TestAlertText_DefaultName(t *testing.T) {
	got := AlertText(escalation.Alert{Language: i18n.English})
	assert.Equal(t, "Aura: Friend pressed the SOS button and needs assistance.", got)
}
