package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receivables/internal/common"
	"receivables/internal/models"
	"receivables/internal/repositories/memory"
)

func testMessage() models.Message {
	return models.Message{
		InvoiceID: uuid.New(),
		Kind:      models.NotificationKindReminder,
		Subject:   "Payment reminder",
		Body:      "Invoice INV-000001 is overdue",
	}
}

func TestRelayTransport_SignsPayload(t *testing.T) {
	var (
		payload   RelayPayload
		signature string
		body      []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	transport := NewRelayTransport(server.URL, "s3cret", 0, zerolog.Nop())
	msg := testMessage()

	err := transport.Send(t.Context(), models.ChannelWhatsApp, "+573001112233", msg)

	require.NoError(t, err)
	assert.Equal(t, models.ChannelWhatsApp, payload.Channel)
	assert.Equal(t, "+573001112233", payload.Recipient)
	assert.Equal(t, msg.InvoiceID, payload.InvoiceID)
	assert.Equal(t, msg.Subject, payload.Subject)
	assert.Equal(t, Sign([]byte("s3cret"), body), signature)
}

func TestRelayTransport_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	transport := NewRelayTransport(server.URL, "s3cret", 0, zerolog.Nop())

	err := transport.Send(t.Context(), models.ChannelEmail, "ap@globex.test", testMessage())

	assert.True(t, errors.Is(err, common.ErrTransport), "got %v", err)
}

func TestRoutingTransport(t *testing.T) {
	email := newRecordingTransport()
	transport := NewRoutingTransport(map[models.Channel]NotificationTransport{models.ChannelEmail: email})

	require.NoError(t, transport.Send(t.Context(), models.ChannelEmail, "ap@globex.test", testMessage()))
	assert.Len(t, email.Sent(), 1)

	err := transport.Send(t.Context(), models.ChannelWhatsApp, "+57300", testMessage())
	assert.True(t, errors.Is(err, common.ErrTransport))
}

func TestSystemInbox_StoresNotification(t *testing.T) {
	repo := memory.NewNotificationStore()
	clock := clockwork.NewFakeClockAt(fixtureNow)
	inbox := NewSystemInbox(repo, clock)
	msg := testMessage()

	require.NoError(t, inbox.Send(t.Context(), models.ChannelSystem, "ap@globex.test", msg))

	stored, err := repo.ListNotifications(t.Context(), "ap@globex.test", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, msg.Subject, stored[0].Subject)
	require.NotNil(t, stored[0].InvoiceID)
	assert.Equal(t, msg.InvoiceID, *stored[0].InvoiceID)
	assert.Equal(t, fixtureNow, stored[0].CreatedAt)
}
