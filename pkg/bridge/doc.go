// Package bridge stores messages in hierarchical object storage.
//
// A message on an allow-listed topic such as "/galaxy/info" becomes the
// collections "/galaxy/" and "/galaxy/info/" followed by one object named
// after the receive time and the topic:
//
//	/galaxy/info/2026-01-02-15-04-05_galaxy_info
//
// The object body is a StoredRecord: the parsed JSON payload kept both as
// an encoded string and as structured metadata. Messages on other topics are
// received and ignored.
//
// The Dispatcher handles one message at a time. NewService puts it behind a
// single-worker messagepipeline.StreamingService and Connect prepares the
// storage session at startup.
package bridge
