package domain

// KeyPrefix namespaces every key the gateway writes to the KV store.
var KeyPrefix = "llmgate:"
