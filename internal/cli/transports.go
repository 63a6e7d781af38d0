package cli

import (
	"fmt"

	"github.com/shivanshkc/streamlat/internal/config"
	"github.com/shivanshkc/streamlat/pkg/transport"
	"github.com/shivanshkc/streamlat/pkg/transport/kafka"
	"github.com/shivanshkc/streamlat/pkg/transport/memory"
	"github.com/shivanshkc/streamlat/pkg/transport/natsjs"
	"github.com/shivanshkc/streamlat/pkg/transport/rabbitstream"
	"github.com/shivanshkc/streamlat/pkg/transport/redisstream"
	"github.com/shivanshkc/streamlat/pkg/transport/zmq"
)

// dialer returns the DialFunc of the configured transport.
//
// Every call for the memory transport creates a fresh broker, so the writer and
// its thread readers must share the returned DialFunc.
func dialer(tc config.TransportConfig) (transport.DialFunc, error) {
	conn := transport.Connection{
		Host:        tc.Host,
		Port:        tc.Port,
		Credential:  tc.Credential,
		InitTimeout: tc.InitTimeout,
	}

	switch tc.Kind {
	case config.KindMemory:
		return memory.NewBroker(tc.MemoryDelay).Dial(), nil
	case config.KindRedis:
		return redisstream.Dial(conn), nil
	case config.KindKafka:
		return kafka.Dial(conn), nil
	case config.KindNATS:
		return natsjs.Dial(conn), nil
	case config.KindZMQ:
		return zmq.Dial(conn), nil
	case config.KindAMQP:
		return rabbitstream.Dial(conn), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", tc.Kind)
	}
}
