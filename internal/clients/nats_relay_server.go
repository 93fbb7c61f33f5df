package clients

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const relayQueueGroup = "relay-devnet"

// NATSRelayServer serves a DevnetNetwork on NATS so several bridge processes share one relay
type NATSRelayServer struct {
	conn    *nats.Conn
	network *DevnetNetwork
	prefix  string
	subs    []*nats.Subscription
}

// NewNATSRelayServer creates a server; call Start to subscribe
func NewNATSRelayServer(conn *nats.Conn, prefix string, network *DevnetNetwork) *NATSRelayServer {
	return &NATSRelayServer{conn: conn, network: network, prefix: prefix}
}

// Start subscribes the publish, verify and observe handlers
func (s *NATSRelayServer) Start() error {
	pub, err := s.conn.QueueSubscribe(publishSubject(s.prefix), relayQueueGroup, s.handlePublish)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", publishSubject(s.prefix), err)
	}
	ver, err := s.conn.QueueSubscribe(verifySubject(s.prefix), relayQueueGroup, s.handleVerify)
	if err != nil {
		_ = pub.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", verifySubject(s.prefix), err)
	}
	obs, err := s.conn.QueueSubscribe(observeSubject(s.prefix), relayQueueGroup, s.handleObserve)
	if err != nil {
		_ = pub.Unsubscribe()
		_ = ver.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", observeSubject(s.prefix), err)
	}
	s.subs = []*nats.Subscription{pub, ver, obs}
	// make sure the server knows about the subscriptions before anyone requests
	if err := s.conn.Flush(); err != nil {
		s.Stop()
		return err
	}
	logrus.WithField("prefix", s.prefix).Info("✅ Devnet relay serving on NATS")
	return nil
}

// Stop unsubscribes
func (s *NATSRelayServer) Stop() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *NATSRelayServer) handlePublish(msg *nats.Msg) {
	var req relayPublishRequest
	var reply relayPublishReply
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply.Error = fmt.Sprintf("bad publish request: %v", err)
	} else {
		reply.Sequence = s.network.Publish(req.EmitterChain, req.Emitter, req.Payload, req.Nonce, req.ConsistencyLevel)
	}
	s.respond(msg, &reply)
}

func (s *NATSRelayServer) handleVerify(msg *nats.Msg) {
	var req relayVerifyRequest
	var reply relayVerifyReply
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply.Error = fmt.Sprintf("bad verify request: %v", err)
	} else {
		reply.Verification = s.network.Verify(req.Proof)
	}
	s.respond(msg, &reply)
}

func (s *NATSRelayServer) handleObserve(msg *nats.Msg) {
	var req relayObserveRequest
	var reply relayObserveReply
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply.Error = fmt.Sprintf("bad observe request: %v", err)
	} else if proof, err := s.network.Observe(req.EmitterChain, req.Emitter, req.Sequence); err != nil {
		reply.Error = err.Error()
	} else {
		reply.Proof = proof
	}
	s.respond(msg, &reply)
}

func (s *NATSRelayServer) respond(msg *nats.Msg, reply interface{}) {
	data, err := json.Marshal(reply)
	if err != nil {
		logrus.WithError(err).Error("relay server: marshal reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		logrus.WithError(err).Warn("relay server: respond failed")
	}
}
