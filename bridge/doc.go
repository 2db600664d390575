/*
Package bridge relays chain-data queries between a light-client consumer and a
chain-data provider that share nothing but an event bus. The request/response
event catalog, the provider-side relay, and the consumer-side facade live here;
concrete transports live in the adapters packages.
*/
package bridge
