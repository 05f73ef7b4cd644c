package database_test

import (
	"context"
	"testing"

	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyAll_CopiesEveryTableOnce(t *testing.T) {
	src := testutil.NewDB(t)
	dst := testutil.NewDB(t)

	acc := testutil.SeedAccount(t, src, "1055", "tok")
	testutil.SeedAutomation(t, src, acc.ID, models.TriggerKeyword, "open", "We zijn open", testutil.Fixed())
	contact := &models.Contact{AccountID: acc.ID, Phone: "+31611111111", Labels: []string{"vip"}}
	require.NoError(t, src.Create(contact).Error)
	conv := &models.Conversation{AccountID: acc.ID, ContactID: contact.ID, Status: models.ConversationOpen}
	require.NoError(t, src.Create(conv).Error)
	for i := 0; i < 3; i++ {
		require.NoError(t, src.Create(&models.Message{
			ConversationID: conv.ID, Direction: models.DirectionInbound, Type: models.MessageText, Status: models.StatusDelivered,
		}).Error)
	}

	counts, err := database.CopyAll(context.Background(), src, dst, 2)
	require.NoError(t, err)
	byTable := map[string]int64{}
	for _, c := range counts {
		byTable[c.Table] = c.Copied
	}
	assert.EqualValues(t, 1, byTable["accounts"])
	assert.EqualValues(t, 1, byTable["contacts"])
	assert.EqualValues(t, 3, byTable["messages"])
	assert.EqualValues(t, 1, byTable["automations"])

	var got models.Contact
	require.NoError(t, dst.First(&got, "id = ?", contact.ID).Error)
	assert.Equal(t, []string{"vip"}, got.Labels)

	// rerun is a no-op
	counts, err = database.CopyAll(context.Background(), src, dst, 2)
	require.NoError(t, err)
	for _, c := range counts {
		assert.Zero(t, c.Copied, c.Table)
	}
	assert.EqualValues(t, 3, testutil.Count(t, dst, &models.Message{}))
}
