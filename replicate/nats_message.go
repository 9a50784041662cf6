package replicate

import "github.com/tinylib/msgp/msgp"

// commitMessage is the MessagePack wire format of a commit entry.
type commitMessage struct {
	Seq         uint64   `msg:"seq"`
	Statement   string   `msg:"statement"`
	Args        msgp.Raw `msg:"args"`
	CommittedAt int64    `msg:"committed_at"`
}

// Compile-time assertions for the msgp interfaces.
var (
	_ msgp.Marshaler   = (*commitMessage)(nil)
	_ msgp.Unmarshaler = (*commitMessage)(nil)
	_ msgp.Sizer       = (*commitMessage)(nil)
)

// MarshalMsg implements msgp.Marshaler.
func (z *commitMessage) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, z.Msgsize())

	o = msgp.AppendMapHeader(o, 4)
	o = msgp.AppendString(o, "seq")
	o = msgp.AppendUint64(o, z.Seq)
	o = msgp.AppendString(o, "statement")
	o = msgp.AppendString(o, z.Statement)
	o = msgp.AppendString(o, "args")
	o, err := z.Args.MarshalMsg(o)
	if err != nil {
		return o, msgp.WrapError(err, "Args")
	}
	o = msgp.AppendString(o, "committed_at")
	o = msgp.AppendInt64(o, z.CommittedAt)

	return o, nil
}

// UnmarshalMsg implements msgp.Unmarshaler.
//
// Unknown fields are skipped so newer writers can add fields.
func (z *commitMessage) UnmarshalMsg(bts []byte) ([]byte, error) {
	fields, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}

	for fields > 0 {
		fields--

		var key []byte
		key, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, msgp.WrapError(err)
		}

		switch msgp.UnsafeString(key) {
		case "seq":
			z.Seq, bts, err = msgp.ReadUint64Bytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Seq")
			}
		case "statement":
			z.Statement, bts, err = msgp.ReadStringBytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Statement")
			}
		case "args":
			bts, err = z.Args.UnmarshalMsg(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "Args")
			}
		case "committed_at":
			z.CommittedAt, bts, err = msgp.ReadInt64Bytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, "CommittedAt")
			}
		default:
			bts, err = msgp.Skip(bts)
			if err != nil {
				return bts, msgp.WrapError(err)
			}
		}
	}

	return bts, nil
}

// Msgsize returns an upper bound estimate of the serialized size.
func (z *commitMessage) Msgsize() int {
	return 1 +
		4 + msgp.Uint64Size +
		10 + msgp.StringPrefixSize + len(z.Statement) +
		5 + z.Args.Msgsize() +
		13 + msgp.Int64Size
}
