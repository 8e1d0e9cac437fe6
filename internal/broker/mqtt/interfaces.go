package mqtt

import (
	paho "github.com/eclipse/paho.mqtt.golang"

	"portal-bus/internal/broker"
)

// ClientFactory builds the paho client for one connection attempt
type ClientFactory func(opts *paho.ClientOptions) paho.Client

var _ broker.Adapter = (*Adapter)(nil)
