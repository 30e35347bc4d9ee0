// Package trace defines the events the block I/O analysis consumes and the
// readers that produce them.
package trace

// Kind is the closed set of event kinds the analysis understands. Names are
// mapped to kinds once, when an event enters the program (see Layout).
type Kind uint8

const (
	KindUnknown Kind = iota
	KindStatedumpBlockDevice
	KindBioQueue
	KindGetRq
	KindRqInsert
	KindElvMergeRequests
	KindBioFrontMerge
	KindBioBackMerge
	KindRqIssue
	KindRqComplete
	KindSyscallEntry
	KindSyscallExit

	numKinds
)

// NumKinds is the number of kinds, KindUnknown included.
const NumKinds = int(numKinds)

var kindNames = [numKinds]string{
	KindUnknown:              "unknown",
	KindStatedumpBlockDevice: "statedump_block_device",
	KindBioQueue:             "bio_queue",
	KindGetRq:                "getrq",
	KindRqInsert:             "rq_insert",
	KindElvMergeRequests:     "elv_merge_requests",
	KindBioFrontMerge:        "bio_frontmerge",
	KindBioBackMerge:         "bio_backmerge",
	KindRqIssue:              "rq_issue",
	KindRqComplete:           "rq_complete",
	KindSyscallEntry:         "syscall_entry",
	KindSyscallExit:          "syscall_exit",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "unknown"
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}
