package outbox

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/events"
)

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(42, []byte(`{"a":1}`))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestBackoffDelayIsExponentialAndCapped(t *testing.T) {
	m := NewDLQManager(nil, 5, time.Minute, nil)
	require.Equal(t, time.Minute, m.backoffDelay(0))
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestSchemaCatalogCoversPublishedEvents(t *testing.T) {
	schema, ok := schemaCatalog[events.BackfillRequestedType]
	require.True(t, ok)
	require.Contains(t, schema, "connection_id")
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/backfill-value/versions/latest":
			http.NotFound(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/backfill-value/versions":
			registered = true
			w.Write([]byte(`{"id":7}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "backfill-value", backfillRequestedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.True(t, registered)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestGroupByTopicKeepsClaimOrder(t *testing.T) {
	groups := groupByTopic([]Envelope{
		{EventID: 1, Topic: "a"},
		{EventID: 2, Topic: "b"},
		{EventID: 3, Topic: "a"},
	})
	require.Len(t, groups, 2)
	require.Equal(t, []int64{1, 3}, []int64{groups["a"][0].EventID, groups["a"][1].EventID})
	require.Len(t, groups["b"], 1)
}
