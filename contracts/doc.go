// Package contracts defines the messages exchanged between the shopping and
// customer services over the ONLINE_STORE exchange.
//
// Every message body is an Envelope:
//
//	{"event": "ADD_TO_CART", "data": {"userId": "u1", "product": {"_id": "p1"}, "qty": 2}}
//
// The event field selects one of a closed set of EventKinds; data carries the
// kind-specific payload (CartEventData or OrderEventData).
package contracts
