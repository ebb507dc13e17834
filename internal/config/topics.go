package config

const (
	// TopicIngestTask carries ingestion requests accepted by the async endpoint.
	TopicIngestTask = "ingest.task"

	// TopicIngestResult receives one event per finished ingestion (completed or failed).
	TopicIngestResult = "ingest.result"

	// ChannelIngestion is the consumer channel of the ingestion worker.
	ChannelIngestion = "ingestion"
)
