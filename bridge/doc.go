// Package bridge forwards messages published on a relay hub to an external transport.
//
// A bridge Handler is an ordinary relay.Handler: subscribe it to a Broker or an Events
// hub and every matching message is serialized into a JSON envelope and handed to a
// contract/relay.Forwarder. Delivery inside the process is unaffected; the bridge is
// egress only and nothing is consumed back.
//
// Envelope layout:
//
//	{"id":"<uuid v7>","type":"<TypeName>","payload":{...}}
//
// The id is also sent as the x-message-id header.
package bridge
