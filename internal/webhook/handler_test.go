package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"whatsapp-inbox/internal/automation"
	"whatsapp-inbox/internal/inbox"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/testutil"
	"whatsapp-inbox/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sentMessage struct {
	To   string
	Body string
}

// fakeGraph stands in for the Cloud API and records every send.
type fakeGraph struct {
	mu   sync.Mutex
	sent []sentMessage
	srv  *httptest.Server
}

func newFakeGraph(t *testing.T) *fakeGraph {
	g := &fakeGraph{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg whatsapp.GenericMessage
		_ = json.NewDecoder(r.Body).Decode(&msg)
		g.mu.Lock()
		body := ""
		if msg.Text != nil {
			body = msg.Text.Body
		}
		g.sent = append(g.sent, sentMessage{To: msg.To, Body: body})
		g.mu.Unlock()
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.reply1"}]}`))
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGraph) Sent() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}

type env struct {
	db     *gorm.DB
	router *gin.Engine
	graph  *fakeGraph
}

// tuesday 14:00, inside business hours
var testNow = time.Date(2024, 6, 4, 14, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	graph := newFakeGraph(t)

	store := inbox.NewStore(db)
	dispatcher := whatsapp.NewDispatcher(whatsapp.NewClient(graph.srv.URL, "v19.0", time.Second, 1))
	engine := automation.NewEngine(store, dispatcher, time.UTC, automation.WithClock(func() time.Time { return testNow }))
	pipeline := inbox.NewPipeline(store, engine, nil)

	h := NewHandler("verify-me", pipeline)
	r := gin.New()
	r.GET("/webhook/whatsapp", h.VerifyWebhook)
	r.POST("/webhook/whatsapp", h.HandleMessage)
	return &env{db: db, router: r, graph: graph}
}

func (e *env) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(w, req)
	return w
}

func textPayload(phoneNumberID, from, name, waID, body string) string {
	p := map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []interface{}{map[string]interface{}{
			"id": "waba-1",
			"changes": []interface{}{map[string]interface{}{
				"field": "messages",
				"value": map[string]interface{}{
					"messaging_product": "whatsapp",
					"metadata":          map[string]string{"display_phone_number": "31200000000", "phone_number_id": phoneNumberID},
					"contacts":          []interface{}{map[string]interface{}{"wa_id": from, "profile": map[string]string{"name": name}}},
					"messages": []interface{}{map[string]interface{}{
						"from": from, "id": waID, "timestamp": "1717502400", "type": "text",
						"text": map[string]string{"body": body},
					}},
				},
			}},
		}},
	}
	b, _ := json.Marshal(p)
	return string(b)
}

func TestVerifyWebhook(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name  string
		query string
		code  int
		body  string
	}{
		{"valid handshake echoes challenge", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1", http.StatusForbidden, ""},
		{"missing params", "", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?"+tt.query, nil))
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestHandleMessage_EndToEndKeywordReply(t *testing.T) {
	e := newEnv(t)
	acc := testutil.SeedAccount(t, e.db, "1055", "tok")
	testutil.SeedAutomation(t, e.db, acc.ID, models.TriggerKeyword, "open", "We zijn ma-vr 9-18 open.", testutil.Fixed())

	w := e.post(t, textPayload("1055", "+31611111111", "Jan", "wamid.123", "Wanneer zijn jullie open?"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	var contacts []models.Contact
	require.NoError(t, e.db.Find(&contacts).Error)
	require.Len(t, contacts, 1)
	assert.Equal(t, "+31611111111", contacts[0].Phone)
	require.NotNil(t, contacts[0].Name)
	assert.Equal(t, "Jan", *contacts[0].Name)

	var convs []models.Conversation
	require.NoError(t, e.db.Find(&convs).Error)
	require.Len(t, convs, 1)
	assert.Equal(t, models.ConversationOpen, convs[0].Status)

	var inbound []models.Message
	require.NoError(t, e.db.Where("direction = ?", models.DirectionInbound).Find(&inbound).Error)
	require.Len(t, inbound, 1)
	assert.Equal(t, "Wanneer zijn jullie open?", *inbound[0].Content)
	assert.Equal(t, "wamid.123", *inbound[0].ProviderMessageID)
	assert.Equal(t, models.StatusDelivered, inbound[0].Status)

	var outbound []models.Message
	require.NoError(t, e.db.Where("direction = ?", models.DirectionOutbound).Find(&outbound).Error)
	require.Len(t, outbound, 1)
	assert.Equal(t, "We zijn ma-vr 9-18 open.", *outbound[0].Content)
	assert.Equal(t, models.StatusSent, outbound[0].Status)
	assert.Equal(t, convs[0].ID, outbound[0].ConversationID)

	assert.Equal(t, []sentMessage{{To: "+31611111111", Body: "We zijn ma-vr 9-18 open."}}, e.graph.Sent())
	assert.EqualValues(t, 1, testutil.Count(t, e.db, &models.AutomationLog{}))
}

func TestHandleMessage_UnknownSenderCreatesNothing(t *testing.T) {
	e := newEnv(t)
	testutil.SeedAccount(t, e.db, "1055", "tok")

	w := e.post(t, textPayload("9999", "+31611111111", "", "wamid.1", "hallo"))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.EqualValues(t, 0, testutil.Count(t, e.db, &models.Contact{}))
	assert.EqualValues(t, 0, testutil.Count(t, e.db, &models.Conversation{}))
	assert.EqualValues(t, 0, testutil.Count(t, e.db, &models.Message{}))
}

// Provider redeliveries are not deduplicated; this documents that gap.
func TestHandleMessage_DuplicateDeliveryRecordsTwice(t *testing.T) {
	e := newEnv(t)
	testutil.SeedAccount(t, e.db, "1055", "tok")
	payload := textPayload("1055", "+31611111111", "", "wamid.dup", "hoi")

	require.Equal(t, http.StatusOK, e.post(t, payload).Code)
	require.Equal(t, http.StatusOK, e.post(t, payload).Code)

	var n int64
	require.NoError(t, e.db.Model(&models.Message{}).Where("provider_message_id = ?", "wamid.dup").Count(&n).Error)
	assert.EqualValues(t, 2, n)
	assert.EqualValues(t, 1, testutil.Count(t, e.db, &models.Contact{}))
	assert.EqualValues(t, 1, testutil.Count(t, e.db, &models.Conversation{}))
}

func TestHandleMessage_FirstContactFiresOnce(t *testing.T) {
	e := newEnv(t)
	acc := testutil.SeedAccount(t, e.db, "1055", "")
	testutil.SeedAutomation(t, e.db, acc.ID, models.TriggerFirstContact, "", "Welkom!", testutil.Fixed())

	e.post(t, textPayload("1055", "+31622222222", "", "wamid.a", "eerste"))
	e.post(t, textPayload("1055", "+31622222222", "", "wamid.b", "tweede"))

	var n int64
	require.NoError(t, e.db.Model(&models.Message{}).Where("direction = ? AND content = ?", models.DirectionOutbound, "Welkom!").Count(&n).Error)
	assert.EqualValues(t, 1, n)
	// credential-less account: demo mode, nothing reached the provider
	assert.Empty(t, e.graph.Sent())
}

func TestHandleMessage_MediaAndBatch(t *testing.T) {
	e := newEnv(t)
	testutil.SeedAccount(t, e.db, "1055", "tok")

	body := `{"object":"whatsapp_business_account","entry":[{"id":"w","changes":[{"field":"messages","value":{
		"metadata":{"phone_number_id":"1055"},
		"messages":[
			{"from":"+31633333333","id":"wamid.img","type":"image","image":{"id":"media-1","url":"https://lookaside.example/img","caption":"foto"}},
			{"from":"+31633333333","id":"wamid.doc","type":"document","document":{"id":"media-2","filename":"factuur.pdf"}},
			{"from":"+31633333333","id":"wamid.stk","type":"sticker"}
		]}}]}]}`
	require.Equal(t, http.StatusOK, e.post(t, body).Code)

	find := func(waID string) models.Message {
		var m models.Message
		require.NoError(t, e.db.Where("provider_message_id = ?", waID).First(&m).Error)
		return m
	}

	img := find("wamid.img")
	assert.Equal(t, models.MessageImage, img.Type)
	assert.Equal(t, "https://lookaside.example/img", *img.MediaURL)
	assert.Equal(t, "foto", *img.Content)

	doc := find("wamid.doc")
	assert.Equal(t, "media-2", *doc.MediaURL)
	assert.Equal(t, "factuur.pdf", *doc.Content)

	stk := find("wamid.stk")
	assert.Equal(t, "sticker", stk.Type)
	assert.Nil(t, stk.Content)
	assert.Nil(t, stk.MediaURL)
}

func TestHandleMessage_StatusUpdates(t *testing.T) {
	e := newEnv(t)
	acc := testutil.SeedAccount(t, e.db, "1055", "tok")
	store := inbox.NewStore(e.db)
	_, conv, err := store.Resolve(t.Context(), acc, "+31611111111", "")
	require.NoError(t, err)
	pid := "wamid.out9"
	msg := &models.Message{ConversationID: conv.ID, Direction: models.DirectionOutbound, Type: models.MessageText, ProviderMessageID: &pid, Status: models.StatusSent}
	require.NoError(t, store.RecordMessage(t.Context(), msg))

	statuses := func(s string) string {
		return `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"1055"},
			"statuses":[{"id":"wamid.out9","status":"` + s + `","timestamp":"1","recipient_id":"31611111111"}]}}]}]}`
	}

	require.Equal(t, http.StatusOK, e.post(t, statuses("read")).Code)
	require.Equal(t, http.StatusOK, e.post(t, statuses("delivered")).Code)

	var got models.Message
	require.NoError(t, e.db.First(&got, "id = ?", msg.ID).Error)
	assert.Equal(t, models.StatusRead, got.Status)
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	e := newEnv(t)
	w := e.post(t, "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
