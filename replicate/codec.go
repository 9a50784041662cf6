package replicate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tinylib/msgp/msgp"

	"github.com/arloliu/causeway/types"
)

// encodeArgs encodes []any arguments to msgp.Raw.
//
// msgp doesn't directly support []any, so we use msgp's AppendIntf which
// handles interface{} values by encoding them according to their underlying type.
// UUIDs are encoded as MessagePack extensions to preserve their type.
func encodeArgs(args []any) (msgp.Raw, error) {
	if len(args) == 0 {
		return nil, nil
	}

	if len(args) > int(^uint32(0)) {
		return nil, errors.New("causeway: too many arguments to encode")
	}

	var buf []byte
	//nolint:gosec // overflow checked above
	buf = msgp.AppendArrayHeader(buf, uint32(len(args)))

	for _, arg := range args {
		var err error
		buf, err = appendArg(buf, arg)
		if err != nil {
			return nil, fmt.Errorf("causeway: failed to encode argument: %w", err)
		}
	}

	return buf, nil
}

// appendArg encodes a single argument to the buffer.
func appendArg(buf []byte, arg any) ([]byte, error) {
	if u, ok := tryConvertToUUID(arg); ok {
		return msgp.AppendExtension(buf, &u)
	}

	return msgp.AppendIntf(buf, arg)
}

// decodeArgs decodes msgp.Raw back to []any arguments.
//
// UUID extensions decode to uuid.UUID, which database/sql drivers accept
// through its driver.Valuer implementation, matching what the primary saw.
func decodeArgs(raw msgp.Raw) ([]any, error) {
	if len(raw) == 0 || msgp.IsNil(raw) {
		return nil, nil
	}

	sz, buf, err := msgp.ReadArrayHeaderBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("causeway: failed to read array header: %w", err)
	}

	args := make([]any, sz)
	for i := uint32(0); i < sz; i++ {
		var val any
		val, buf, err = msgp.ReadIntfBytes(buf)
		if err != nil {
			return nil, fmt.Errorf("causeway: failed to decode argument %d: %w", i, err)
		}

		if u, ok := val.(*UUID); ok {
			val = uuid.UUID(*u)
		}

		args[i] = val
	}

	return args, nil
}

// encodeEntry serializes a commit entry for the wire.
func encodeEntry(entry types.CommitEntry) ([]byte, error) {
	args, err := encodeArgs(entry.Args)
	if err != nil {
		return nil, err
	}

	msg := commitMessage{
		Seq:         entry.Seq,
		Statement:   entry.Statement,
		Args:        args,
		CommittedAt: entry.CommittedAt,
	}

	data, err := msg.MarshalMsg(nil)
	if err != nil {
		return nil, fmt.Errorf("causeway: failed to marshal commit message: %w", err)
	}

	return data, nil
}

// decodeEntry parses a commit entry produced by encodeEntry.
func decodeEntry(data []byte) (types.CommitEntry, error) {
	var msg commitMessage
	if _, err := msg.UnmarshalMsg(data); err != nil {
		return types.CommitEntry{}, fmt.Errorf("causeway: failed to unmarshal commit message: %w", err)
	}

	args, err := decodeArgs(msg.Args)
	if err != nil {
		return types.CommitEntry{}, err
	}

	return types.CommitEntry{
		Seq:         msg.Seq,
		Statement:   msg.Statement,
		Args:        args,
		CommittedAt: msg.CommittedAt,
	}, nil
}
