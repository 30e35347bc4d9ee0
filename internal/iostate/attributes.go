package iostate

import "lttng_iostate/internal/statesystem"

// Attribute tree layout.
const (
	AttrDisks    = "Disks"
	AttrThreads  = "Threads"
	AttrSyscalls = "Syscalls"

	AttrSectorsRead        = "SectorsRead"
	AttrSectorsWritten     = "SectorsWritten"
	AttrDriverQueue        = "DriverQueue"
	AttrWaitingQueue       = "WaitingQueue"
	AttrDriverQueueLength  = "DriverQueueLength"
	AttrWaitingQueueLength = "WaitingQueueLength"
	AttrRequests           = "Requests"

	AttrStatus         = "Status"
	AttrCurrentRequest = "CurrentRequest"
	AttrRequestSize    = "RequestSize"

	AttrQueue           = "Queue"
	AttrPositionInQueue = "PositionInQueue"
	AttrMergedIn        = "MergedIn"

	AttrBytesRead    = "BytesRead"
	AttrBytesWritten = "BytesWritten"
	AttrSystemCall   = "SystemCall"
)

// Integer state values written to Status and Queue attributes.
const (
	StatusReadingRequest int64 = 9
	StatusWritingRequest int64 = 10

	QueueInWaitingQueue int64 = 13
	QueueInDriverQueue  int64 = 14
)

// Version of the attribute tree layout above.
const Version = 1

// ProviderID names the producer in statesystem.Info.
const ProviderID = "block-io"

// StoreInfo returns the Info a store built by this provider carries.
func StoreInfo() statesystem.Info {
	return statesystem.Info{ID: ProviderID, Version: Version}
}

// queueKind selects one of a disk's two visible queues.
type queueKind uint8

const (
	waitingQueue queueKind = iota
	driverQueue
)

func (q queueKind) attr() string {
	if q == driverQueue {
		return AttrDriverQueue
	}
	return AttrWaitingQueue
}

func (q queueKind) value() int64 {
	if q == driverQueue {
		return QueueInDriverQueue
	}
	return QueueInWaitingQueue
}

func requestStatus(write bool) int64 {
	if write {
		return StatusWritingRequest
	}
	return StatusReadingRequest
}
