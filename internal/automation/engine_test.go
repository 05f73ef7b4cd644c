package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/whatsapp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
	recorded []*models.Message
	logs     []*models.AutomationLog
}

func (m *mockRepo) ActiveAutomations(ctx context.Context, accountID string) ([]models.Automation, error) {
	args := m.Called(ctx, accountID)
	rules, _ := args.Get(0).([]models.Automation)
	return rules, args.Error(1)
}

func (m *mockRepo) HasEarlierInbound(ctx context.Context, conversationID, messageID string) (bool, error) {
	args := m.Called(ctx, conversationID, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) RecordMessage(_ context.Context, msg *models.Message) error {
	m.recorded = append(m.recorded, msg)
	return nil
}

func (m *mockRepo) LogFiring(_ context.Context, entry *models.AutomationLog) error {
	m.logs = append(m.logs, entry)
	return nil
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, account *models.Account, to, body string) (whatsapp.Delivery, error) {
	args := m.Called(ctx, account, to, body)
	return args.Get(0).(whatsapp.Delivery), args.Error(1)
}

func (m *mockSender) SendTemplate(ctx context.Context, account *models.Account, to, name string) (whatsapp.Delivery, error) {
	args := m.Called(ctx, account, to, name)
	return args.Get(0).(whatsapp.Delivery), args.Error(1)
}

// tuesday afternoon, inside business hours
var tuesday = time.Date(2024, 6, 4, 14, 0, 0, 0, time.UTC)

func newInbound(content string) Inbound {
	return Inbound{
		Account:      &models.Account{Base: models.Base{ID: "acc-1"}},
		Conversation: &models.Conversation{Base: models.Base{ID: "conv-1"}},
		Contact:      &models.Contact{Base: models.Base{ID: "ct-1"}, Phone: "+31611111111"},
		Message:      &models.Message{Base: models.Base{ID: "msg-1"}, Content: &content},
	}
}

func rule(id, kind, value, reply string) models.Automation {
	r := models.Automation{
		Base:        models.Base{ID: id},
		Name:        id,
		TriggerKind: kind,
		ActionKind:  models.ActionSendMessage,
		Active:      true,
	}
	if value != "" {
		r.TriggerValue = &value
	}
	if reply != "" {
		r.ActionMessage = &reply
	}
	return r
}

func TestEvaluate_KeywordFiresAndRecordsReply(t *testing.T) {
	repo := &mockRepo{}
	sender := &mockSender{}
	in := newInbound("Wanneer zijn jullie open?")

	repo.On("ActiveAutomations", mock.Anything, "acc-1").
		Return([]models.Automation{rule("a1", models.TriggerKeyword, "open", "We zijn ma-vr 9-18 open.")}, nil)
	sender.On("SendText", mock.Anything, in.Account, "+31611111111", "We zijn ma-vr 9-18 open.").
		Return(whatsapp.Delivery{MessageID: "wamid.out"}, nil).Once()

	e := NewEngine(repo, sender, time.UTC, WithClock(func() time.Time { return tuesday }))
	replies, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)

	sender.AssertExpectations(t)
	require.Len(t, replies, 1)
	require.Len(t, repo.recorded, 1)
	out := repo.recorded[0]
	assert.Equal(t, models.DirectionOutbound, out.Direction)
	assert.Equal(t, models.MessageText, out.Type)
	assert.Equal(t, models.StatusSent, out.Status)
	assert.Equal(t, "We zijn ma-vr 9-18 open.", *out.Content)
	assert.Equal(t, "wamid.out", *out.ProviderMessageID)

	require.Len(t, repo.logs, 1)
	assert.True(t, repo.logs[0].Success)
	assert.Equal(t, "a1", repo.logs[0].AutomationID)
}

func TestEvaluate_OutsideBusinessHours(t *testing.T) {
	saturday := time.Date(2024, 6, 8, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		now   time.Time
		fires bool
	}{
		{"saturday fires", saturday, true},
		{"tuesday 14:00 does not", tuesday, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			sender := &mockSender{}
			in := newInbound("hallo")
			repo.On("ActiveAutomations", mock.Anything, "acc-1").
				Return([]models.Automation{rule("a1", models.TriggerOutsideBusinessHours, "", "We zijn gesloten.")}, nil)
			if tt.fires {
				sender.On("SendText", mock.Anything, in.Account, "+31611111111", "We zijn gesloten.").
					Return(whatsapp.Delivery{Demo: true}, nil).Once()
			}

			e := NewEngine(repo, sender, time.UTC, WithClock(func() time.Time { return tt.now }))
			replies, err := e.Evaluate(context.Background(), in)
			require.NoError(t, err)

			sender.AssertExpectations(t)
			if tt.fires {
				assert.Len(t, replies, 1)
				assert.Nil(t, replies[0].ProviderMessageID)
			} else {
				assert.Empty(t, replies)
				assert.Empty(t, repo.logs)
				sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestEvaluate_FirstContact(t *testing.T) {
	tests := []struct {
		name    string
		earlier bool
		fires   bool
	}{
		{"first inbound fires", false, true},
		{"later inbound does not", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			sender := &mockSender{}
			in := newInbound("hoi")
			repo.On("ActiveAutomations", mock.Anything, "acc-1").
				Return([]models.Automation{rule("a1", models.TriggerFirstContact, "", "Welkom!")}, nil)
			repo.On("HasEarlierInbound", mock.Anything, "conv-1", "msg-1").Return(tt.earlier, nil)
			if tt.fires {
				sender.On("SendText", mock.Anything, mock.Anything, "+31611111111", "Welkom!").
					Return(whatsapp.Delivery{}, nil).Once()
			}

			e := NewEngine(repo, sender, time.UTC, WithClock(func() time.Time { return tuesday }))
			replies, err := e.Evaluate(context.Background(), in)
			require.NoError(t, err)

			repo.AssertExpectations(t)
			sender.AssertExpectations(t)
			assert.Equal(t, tt.fires, len(replies) == 1)
		})
	}
}

func TestEvaluate_AllMatchingRulesFireInOrder(t *testing.T) {
	repo := &mockRepo{}
	sender := &mockSender{}
	in := newInbound("wat is de prijs, zijn jullie open?")

	repo.On("ActiveAutomations", mock.Anything, "acc-1").Return([]models.Automation{
		rule("a1", models.TriggerKeyword, "prijs", "Prijzen staan op de site."),
		rule("a2", models.TriggerKeyword, "open", "ma-vr 9-18"),
		rule("a3", models.TriggerKeyword, "bezorgen", "Wij bezorgen niet."),
	}, nil)
	sender.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(whatsapp.Delivery{MessageID: "x"}, nil)

	e := NewEngine(repo, sender, time.UTC, WithClock(func() time.Time { return tuesday }))
	replies, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, replies, 2)
	assert.Equal(t, "Prijzen staan op de site.", *replies[0].Content)
	assert.Equal(t, "ma-vr 9-18", *replies[1].Content)
	sender.AssertNumberOfCalls(t, "SendText", 2)
}

func TestEvaluate_FailingRuleDoesNotStopOthers(t *testing.T) {
	repo := &mockRepo{}
	sender := &mockSender{}
	in := newInbound("prijs")

	repo.On("ActiveAutomations", mock.Anything, "acc-1").Return([]models.Automation{
		rule("first", models.TriggerFirstContact, "", "Welkom"),
		rule("kw", models.TriggerKeyword, "prijs", "Vanaf 10 euro"),
	}, nil)
	repo.On("HasEarlierInbound", mock.Anything, "conv-1", "msg-1").Return(false, errors.New("db down"))
	sender.On("SendText", mock.Anything, mock.Anything, "+31611111111", "Vanaf 10 euro").
		Return(whatsapp.Delivery{}, nil).Once()

	e := NewEngine(repo, sender, time.UTC, WithClock(func() time.Time { return tuesday }))
	replies, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, "Vanaf 10 euro", *replies[0].Content)
	sender.AssertExpectations(t)
}

func TestEvaluate_SendFailureIsLoggedAndReplyKept(t *testing.T) {
	repo := &mockRepo{}
	sender := &mockSender{}
	in := newInbound("prijs")

	repo.On("ActiveAutomations", mock.Anything, "acc-1").
		Return([]models.Automation{rule("kw", models.TriggerKeyword, "prijs", "Vanaf 10 euro")}, nil)
	sender.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(whatsapp.Delivery{}, &whatsapp.APIError{StatusCode: 400, Body: "bad"})

	e := NewEngine(repo, sender, time.UTC, WithClock(func() time.Time { return tuesday }))
	replies, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, models.StatusSent, replies[0].Status)
	assert.Nil(t, replies[0].ProviderMessageID)
	require.Len(t, repo.logs, 1)
	assert.False(t, repo.logs[0].Success)
	assert.Contains(t, repo.logs[0].ErrorMessage, "400")
}

func TestEvaluate_TemplateAction(t *testing.T) {
	repo := &mockRepo{}
	sender := &mockSender{}
	in := newInbound("hoi")

	r := rule("tpl", models.TriggerKeyword, "hoi", "welkom_nl")
	r.ActionKind = models.ActionSendTemplate
	repo.On("ActiveAutomations", mock.Anything, "acc-1").Return([]models.Automation{r}, nil)
	sender.On("SendTemplate", mock.Anything, mock.Anything, "+31611111111", "welkom_nl").
		Return(whatsapp.Delivery{MessageID: "wamid.t"}, nil).Once()

	e := NewEngine(repo, sender, time.UTC, WithClock(func() time.Time { return tuesday }))
	replies, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, models.MessageTemplate, replies[0].Type)
	sender.AssertExpectations(t)
}

func TestEvaluate_EmptyActionMessageSendsNothing(t *testing.T) {
	repo := &mockRepo{}
	sender := &mockSender{}
	in := newInbound("prijs")

	repo.On("ActiveAutomations", mock.Anything, "acc-1").
		Return([]models.Automation{rule("kw", models.TriggerKeyword, "prijs", "")}, nil)

	e := NewEngine(repo, sender, time.UTC, WithClock(func() time.Time { return tuesday }))
	replies, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)

	assert.Empty(t, replies)
	assert.Empty(t, repo.recorded)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluate_LoadErrorIsReturned(t *testing.T) {
	repo := &mockRepo{}
	repo.On("ActiveAutomations", mock.Anything, "acc-1").Return(nil, errors.New("boom"))

	e := NewEngine(repo, &mockSender{}, nil)
	_, err := e.Evaluate(context.Background(), newInbound("x"))
	assert.ErrorContains(t, err, "load automations")
}
