package events

import (
	"context"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutURLIsNoop(t *testing.T) {
	p, err := New("", "library.events", zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.Publish(context.Background(), LoanIssued, map[string]int{"id": 1}))
	assert.NoError(t, p.Close())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), LoanIssued, 1))
	require.NoError(t, r.Publish(context.Background(), LoanReturned, 1))
	assert.Equal(t, []string{LoanIssued, LoanReturned}, r.Types())
	assert.Len(t, r.Events(), 2)
}

// TestAMQPPublish needs a broker; set LIBRARY_TEST_AMQP_URL to run it.
func TestAMQPPublish(t *testing.T) {
	url := os.Getenv("LIBRARY_TEST_AMQP_URL")
	if url == "" {
		t.Skip("skipping: LIBRARY_TEST_AMQP_URL not set")
	}
	const exchange = "library.events.test"

	p, err := Dial(url, exchange, zerolog.Nop())
	if err != nil {
		t.Skipf("skipping: could not connect to rabbitmq: %v", err)
	}
	defer p.Close()

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "loan.*", exchange, false, nil))
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), LoanIssued, map[string]int64{"loan_id": 9}))

	select {
	case m := <-msgs:
		assert.Equal(t, LoanIssued, m.RoutingKey)
		var ev Event
		require.NoError(t, json.Unmarshal(m.Body, &ev))
		assert.Equal(t, LoanIssued, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
	}
}
