package mqttcore_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqttcore/mqttcore"
	"github.com/mqttcore/mqttcore/internal/localrouter"
)

func startBroker(t *testing.T, opts ...mqttcore.ServerOption) (*mqttcore.Server, string) {
	t.Helper()

	listener, err := mqttcore.NewTCPListener("127.0.0.1:0")
	require.NoError(t, err)

	opts = append([]mqttcore.ServerOption{mqttcore.WithRouter(localrouter.New())}, opts...)
	srv := mqttcore.NewServer(opts...)
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(func() { _ = srv.Close() })

	return srv, listener.Addr().String()
}

func TestQoS0Echo(t *testing.T) {
	_, addr := startBroker(t)

	received := make(chan *mqttcore.Message, 1)
	endpoint, ack, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("cid1"),
		mqttcore.WithCleanStart(true),
		mqttcore.WithClientOnPublish(func(msg *mqttcore.Message) { received <- msg }),
	)
	require.NoError(t, err)
	defer endpoint.Close()

	assert.Equal(t, mqttcore.ReasonSuccess, ack.ReasonCode)
	assert.False(t, ack.SessionPresent)

	go func() { _ = endpoint.Run() }()

	require.NoError(t, endpoint.Subscribe([]mqttcore.Subscription{{TopicFilter: "topic1", QoS: 0}}))

	// Give the SUBACK a moment to land before publishing.
	require.Eventually(t, func() bool {
		_, ok := endpoint.Session().Subscriptions().Get("topic1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, endpoint.Publish(&mqttcore.Message{Topic: "topic1", Payload: []byte("hello")}))

	select {
	case msg := <-received:
		assert.Equal(t, "topic1", msg.Topic)
		assert.Equal(t, []byte("hello"), msg.Payload)
		assert.Equal(t, byte(0), msg.QoS)
	case <-time.After(3 * time.Second):
		t.Fatal("echo never arrived")
	}
}

func TestQoS1RoundTripBetweenTwoClients(t *testing.T) {
	_, addr := startBroker(t)

	received := make(chan *mqttcore.Message, 1)
	sub, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("subscriber"),
		mqttcore.WithClientOnPublish(func(msg *mqttcore.Message) { received <- msg }),
	)
	require.NoError(t, err)
	defer sub.Close()
	go func() { _ = sub.Run() }()

	require.NoError(t, sub.Subscribe([]mqttcore.Subscription{{TopicFilter: "jobs/+", QoS: 1}}))
	require.Eventually(t, func() bool {
		_, ok := sub.Session().Subscriptions().Get("jobs/+")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	pub, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("publisher"),
	)
	require.NoError(t, err)
	defer pub.Close()
	go func() { _ = pub.Run() }()

	require.NoError(t, pub.Publish(&mqttcore.Message{Topic: "jobs/1", Payload: []byte("work"), QoS: 1}))

	select {
	case msg := <-received:
		assert.Equal(t, "jobs/1", msg.Topic)
		assert.Equal(t, []byte("work"), msg.Payload)
		assert.Equal(t, byte(1), msg.QoS)
	case <-time.After(3 * time.Second):
		t.Fatal("message never routed between clients")
	}

	// The publisher's handshake completed: its id space drained again.
	require.Eventually(t, func() bool {
		return pub.Session().PacketIDs().InUse() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestEmptyClientIDWithoutCleanSessionRejected(t *testing.T) {
	_, addr := startBroker(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// The client-side encoder refuses this combination outright, so the
	// CONNECT is assembled by hand to exercise the server's check.
	raw := rawConnect311(t, "", false)
	_, err = conn.Write(raw)
	require.NoError(t, err)

	pkt, _, err := mqttcore.ReadPacket(conn, mqttcore.MQTT311, 0)
	require.NoError(t, err)
	ack := pkt.(*mqttcore.ConnackPacket)
	assert.Equal(t, mqttcore.ReasonClientIDNotValid, ack.ReasonCode)
	assert.False(t, ack.SessionPresent)

	// The connection is closed and no session was persisted.
	buf := make([]byte, 1)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(buf)
	assert.Error(t, err)
}

// rawConnect311 hand-assembles a v3.1.1 CONNECT so tests can produce
// combinations the packet encoder validates away.
func rawConnect311(t *testing.T, clientID string, cleanSession bool) []byte {
	t.Helper()

	var body []byte
	body = append(body, 0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04)
	var flags byte
	if cleanSession {
		flags |= 0x02
	}
	body = append(body, flags, 0x00, 0x0A)
	body = append(body, byte(len(clientID)>>8), byte(len(clientID)))
	body = append(body, clientID...)

	packet := []byte{0x10, byte(len(body))}
	return append(packet, body...)
}

func TestSessionResumeReportsSessionPresent(t *testing.T) {
	_, addr := startBroker(t)

	first, ack, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("resumer"),
		mqttcore.WithCleanStart(false),
	)
	require.NoError(t, err)
	assert.False(t, ack.SessionPresent)
	go func() { _ = first.Run() }()

	require.NoError(t, first.Subscribe([]mqttcore.Subscription{{TopicFilter: "keep/me", QoS: 1}}))
	require.Eventually(t, func() bool {
		_, ok := first.Session().Subscriptions().Get("keep/me")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_ = first.Close()

	second, ack2, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("resumer"),
		mqttcore.WithCleanStart(false),
	)
	require.NoError(t, err)
	defer second.Close()

	assert.True(t, ack2.SessionPresent, "non-clean reconnect resumes the session")
}

func TestCleanStartDropsPriorSession(t *testing.T) {
	_, addr := startBroker(t)

	first, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("cleaner"),
		mqttcore.WithCleanStart(false),
	)
	require.NoError(t, err)
	go func() { _ = first.Run() }()
	_ = first.Close()

	second, ack, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("cleaner"),
		mqttcore.WithCleanStart(true),
	)
	require.NoError(t, err)
	defer second.Close()

	assert.False(t, ack.SessionPresent, "clean start discards any prior session")
	assert.Equal(t, 0, second.Session().InFlight().Len(mqttcore.InFlightOutbound))
}

func TestRetainedMessageDeliveredOnSubscribe(t *testing.T) {
	_, addr := startBroker(t)

	pub, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("retainer"),
	)
	require.NoError(t, err)
	go func() { _ = pub.Run() }()
	require.NoError(t, pub.Publish(&mqttcore.Message{
		Topic:   "status/last",
		Payload: []byte("online"),
		Retain:  true,
	}))

	// QoS 0 has no ack to wait on; give the broker a beat to store it.
	time.Sleep(100 * time.Millisecond)

	received := make(chan *mqttcore.Message, 1)
	sub, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("late-subscriber"),
		mqttcore.WithClientOnPublish(func(msg *mqttcore.Message) { received <- msg }),
	)
	require.NoError(t, err)
	defer sub.Close()
	go func() { _ = sub.Run() }()

	require.NoError(t, sub.Subscribe([]mqttcore.Subscription{{TopicFilter: "status/#", QoS: 0}}))

	select {
	case msg := <-received:
		assert.Equal(t, "status/last", msg.Topic)
		assert.Equal(t, []byte("online"), msg.Payload)
		assert.True(t, msg.Retain)
	case <-time.After(3 * time.Second):
		t.Fatal("retained message never delivered")
	}
}

func TestWillPublishedOnUngracefulDrop(t *testing.T) {
	_, addr := startBroker(t)

	received := make(chan *mqttcore.Message, 1)
	watcher, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("watcher"),
		mqttcore.WithClientOnPublish(func(msg *mqttcore.Message) { received <- msg }),
	)
	require.NoError(t, err)
	defer watcher.Close()
	go func() { _ = watcher.Run() }()

	require.NoError(t, watcher.Subscribe([]mqttcore.Subscription{{TopicFilter: "obituary/#", QoS: 0}}))
	require.Eventually(t, func() bool {
		_, ok := watcher.Session().Subscriptions().Get("obituary/#")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	doomed, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("doomed"),
		mqttcore.WithClientWill(&mqttcore.WillMessage{
			Topic:   "obituary/doomed",
			Payload: []byte("died"),
		}),
	)
	require.NoError(t, err)
	go func() { _ = doomed.Run() }()

	// Drop the transport without a DISCONNECT.
	_ = doomed.Close()

	select {
	case msg := <-received:
		assert.Equal(t, "obituary/doomed", msg.Topic)
		assert.Equal(t, []byte("died"), msg.Payload)
	case <-time.After(3 * time.Second):
		t.Fatal("will never published")
	}
}

func TestGracefulDisconnectSuppressesWill(t *testing.T) {
	_, addr := startBroker(t)

	received := make(chan *mqttcore.Message, 1)
	watcher, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("watcher"),
		mqttcore.WithClientOnPublish(func(msg *mqttcore.Message) { received <- msg }),
	)
	require.NoError(t, err)
	defer watcher.Close()
	go func() { _ = watcher.Run() }()

	require.NoError(t, watcher.Subscribe([]mqttcore.Subscription{{TopicFilter: "obituary/#", QoS: 0}}))
	require.Eventually(t, func() bool {
		_, ok := watcher.Session().Subscriptions().Get("obituary/#")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	polite, _, err := mqttcore.DialTCP(context.Background(), addr, mqttcore.MQTT5,
		mqttcore.WithClientID("polite"),
		mqttcore.WithClientWill(&mqttcore.WillMessage{Topic: "obituary/polite", Payload: []byte("died")}),
	)
	require.NoError(t, err)
	go func() { _ = polite.Run() }()

	require.NoError(t, polite.Disconnect(mqttcore.ReasonSuccess, 500*time.Millisecond))

	select {
	case msg := <-received:
		t.Fatalf("will %q published despite graceful disconnect", msg.Topic)
	case <-time.After(700 * time.Millisecond):
	}
}

func TestServerRejectsSecondServeCall(t *testing.T) {
	srv, _ := startBroker(t)
	listener, err := mqttcore.NewTCPListener("127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	assert.ErrorIs(t, srv.Serve(listener), mqttcore.ErrServerClosed)
}
