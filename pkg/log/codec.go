package log

import (
	"github.com/fxamacker/cbor/v2"
)

// A log file is a bare concatenation of CBOR maps, one per event, with
// integer keys. Appending needs no framing or index, and a file cut off
// mid-write (crash, full disk) stays readable up to the truncation
// point.
//
// Encoding is canonical so identical events produce identical bytes,
// which keeps log diffs meaningful. Timestamps carry nanosecond
// precision; at 115200 baud two chunks can land within the same
// millisecond.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic("log: event encoder mode: " + err.Error())
	}

	// Events are flat maps with at most one nested payload struct, so
	// anything deeply nested in a file is corruption, not an event.
	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyQuiet,
		IndefLength:     cbor.IndefLengthAllowed,
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		panic("log: event decoder mode: " + err.Error())
	}
}

// EncodeEvent serializes a single event to its on-disk form.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent deserializes a single event from its on-disk form.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := decMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
