// Package intake accepts queue events from outside the process: an HTTP
// endpoint (chi) and a Kafka consumer (kafka-go). Both decode the same JSON
// Payload and hand it to an Acceptor, which appends to the queue store.
package intake
