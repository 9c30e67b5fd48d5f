// Package e2e runs end-to-end pub/sub and bridge scenarios against an
// embedded github.com/mochi-mqtt/server/v2 broker, driving the real actor
// stack rather than mocks.
package e2e

import (
	"fmt"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mqttServer "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// allowHook permits every connection and ACL check: these scenarios test
// forwarding and timing, not auth.
type allowHook struct {
	mqttServer.HookBase
}

func (h *allowHook) ID() string { return "allow-all" }

func (h *allowHook) Provides(b byte) bool {
	return b == mqttServer.OnConnectAuthenticate || b == mqttServer.OnACLCheck
}

func (h *allowHook) OnConnectAuthenticate(cl *mqttServer.Client, pk packets.Packet) bool {
	return true
}

func (h *allowHook) OnACLCheck(cl *mqttServer.Client, topic string, write bool) bool {
	return true
}

var nextPort = 21900

// startBroker brings up an embedded broker on 127.0.0.1:<port> and returns
// both the server and its TCP address. Each call claims a fresh port so
// parallel scenario tests don't collide.
func startBroker(t *testing.T) (*mqttServer.Server, string) {
	t.Helper()
	nextPort++
	addr := fmt.Sprintf("127.0.0.1:%d", nextPort)

	opts := &mqttServer.Options{
		InlineClient: true,
		Capabilities: mqttServer.NewDefaultServerCapabilities(),
	}
	opts.Capabilities.MaximumQos = 2
	opts.Capabilities.RetainAvailable = 1

	server := mqttServer.New(opts)
	if err := server.AddHook(new(allowHook), nil); err != nil {
		t.Fatalf("add allow hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp-" + addr, Address: addr})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("add listener: %v", err)
	}

	go func() {
		if err := server.Serve(); err != nil {
			t.Logf("broker %s stopped: %v", addr, err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() { _ = server.Close() })
	return server, addr
}

// connectPaho is a plain, non-actor MQTT client used to play the role of
// "the other side" in a scenario: whichever half isn't under test.
func connectPaho(t *testing.T, addr, clientID string) paho.Client {
	t.Helper()
	opts := paho.NewClientOptions()
	opts.AddBroker("tcp://" + addr)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(2 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		t.Fatalf("connect %s to %s: %v", clientID, addr, err)
	}
	t.Cleanup(func() { client.Disconnect(250) })
	return client
}
