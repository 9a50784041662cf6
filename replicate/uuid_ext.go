package replicate

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tinylib/msgp/msgp"
)

// UUIDExtensionType is the MessagePack extension type for UUIDs.
// We use type 10 which is in the user-defined range (0-127).
// Types 3, 4, 5 are used by msgp for complex64, complex128, and time.Time.
const UUIDExtensionType int8 = 10

// UUIDSize is the fixed size of a UUID (16 bytes).
const UUIDSize = 16

func init() {
	// Register the UUID extension so msgp can decode it back to the correct type
	msgp.RegisterExtension(UUIDExtensionType, func() msgp.Extension {
		return new(UUID)
	})
}

// UUID is a wrapper type for UUID byte arrays that implements msgp.Extension.
//
// Statement arguments of type uuid.UUID or [16]byte are encoded with this
// extension so they survive the trip through the commit log as UUIDs
// rather than as opaque binary.
type UUID [UUIDSize]byte

// ExtensionType returns the MessagePack extension type for UUID.
func (u *UUID) ExtensionType() int8 {
	return UUIDExtensionType
}

// Len returns the encoded length of a UUID (always 16 bytes).
func (u *UUID) Len() int {
	return UUIDSize
}

// MarshalBinaryTo copies the UUID bytes into the destination buffer.
func (u *UUID) MarshalBinaryTo(b []byte) error {
	copy(b, u[:])

	return nil
}

// UnmarshalBinary copies bytes from the source buffer into the UUID.
func (u *UUID) UnmarshalBinary(b []byte) error {
	if len(b) != UUIDSize {
		return fmt.Errorf("causeway: invalid UUID length %d", len(b))
	}
	copy(u[:], b)

	return nil
}

// String returns the UUID in standard hyphenated format.
func (u *UUID) String() string {
	return uuid.UUID(*u).String()
}

// tryConvertToUUID attempts to convert an argument to a UUID extension.
func tryConvertToUUID(arg any) (UUID, bool) {
	switch v := arg.(type) {
	case uuid.UUID:
		return UUID(v), true
	case *uuid.UUID:
		if v != nil {
			return UUID(*v), true
		}

		return UUID{}, false
	case [16]byte:
		return UUID(v), true
	case *[16]byte:
		if v != nil {
			return UUID(*v), true
		}

		return UUID{}, false
	case UUID:
		return v, true
	case *UUID:
		if v != nil {
			return *v, true
		}

		return UUID{}, false
	default:
		return UUID{}, false
	}
}
