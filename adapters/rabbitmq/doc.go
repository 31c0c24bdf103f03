/*
Package rabbitmq forwards relay messages to RabbitMQ.
Subjects become routing keys on a topic exchange. It includes an auto-reconnect publisher
and supports optional header propagation via a relay.HeaderPropagator.
*/
package rabbitmq
