/*
Package rabbitmq provides a RabbitMQ endpoint for the relay bus.
Requests travel over one queue per request type; replies come back on a
per-endpoint exclusive reply queue matched by CorrelationId.
*/
package rabbitmq
