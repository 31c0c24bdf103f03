/*
Package relay provides an in-process publish/subscribe hub and a single-handler mediator.

A Broker owns the subscribers of one message type and fans a published message out to
every subscriber whose filter accepts it, waiting for asynchronous completions before
returning. Events routes messages to brokers by type, creating brokers lazily on first
subscribe. Mediator routes a request to exactly one registered handler and returns its
response.

All types are safe for concurrent use and hold no global state.
*/
package relay
