package types

// SnapshotFormat is the only snapshot encoding the ledger produces:
// the cramberry state export, cut into fixed-size chunks.
const SnapshotFormat uint32 = 1

// SnapshotDescriptor announces a ledger snapshot. A restoring node
// checks Hash against the reassembled chunks and AppHash against the
// decoded state before adopting it.
type SnapshotDescriptor struct {
	Height  uint64  `cramberry:"1"`
	Format  uint32  `cramberry:"2"`
	Chunks  uint32  `cramberry:"3"`
	Hash    Hash    `cramberry:"4"` // sha256 of the payload
	AppHash AppHash `cramberry:"5"`
}

type SnapshotChunk struct {
	Index uint32 `cramberry:"1"`
	Data  []byte `cramberry:"2"`
}

// ImportStatus is the verdict on an imported snapshot.
type ImportStatus uint8

const (
	ImportOK          ImportStatus = 1
	ImportReject      ImportStatus = 2 // try another snapshot
	ImportRetryChunks ImportStatus = 3 // resend RetryIndices
)

func (s ImportStatus) String() string {
	switch s {
	case ImportOK:
		return "ok"
	case ImportReject:
		return "reject"
	case ImportRetryChunks:
		return "retry_chunks"
	}
	return "unknown"
}

// ImportResult carries the restored app hash on success, the reason on
// rejection, or the chunk indices still needed.
type ImportResult struct {
	Status       ImportStatus `cramberry:"1"`
	AppHash      *AppHash     `cramberry:"2"`
	Reason       string       `cramberry:"3"`
	RetryIndices []uint32     `cramberry:"4"`
}
