package rediskey

import "fmt"

// Sequence counter keys (shared convention between the engine and the worker)
const (
	SequencePrefix = "seq"
	ExportSegment  = "export"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildDailySequenceKey returns "seq:{prefix}:{yymmdd}"
func BuildDailySequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", prefix, day))
}

// BuildExportSequenceKey returns "seq:export:{cycleID}"
func BuildExportSequenceKey(cycleID string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", ExportSegment, cycleID))
}
