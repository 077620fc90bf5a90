package record

import "github.com/joshuapare/fusekit/fuse"

// Action tells Load what to do with a record a Handler accepted.
type Action int

const (
	// ActionKeep keeps the record as an opaque slot and continues the scan.
	ActionKeep Action = iota

	// ActionTruncate ends the usable record range at this slot. The slot
	// itself is kept as the boot marker.
	ActionTruncate
)

// Handler interprets records whose type is not TypeReplace. Returning an
// error fails Load with a ParseError.
type Handler interface {
	Handle(slot int, r fuse.Record) (Action, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(slot int, r fuse.Record) (Action, error)

// Handle calls f.
func (f HandlerFunc) Handle(slot int, r fuse.Record) (Action, error) { return f(slot, r) }

// HandlerFor returns the default handler for a geometry. Patch-capable and
// repair-generation parts recognize the boot marker; older parts reject every
// non-replace type.
func HandlerFor(g fuse.Geometry) Handler {
	if g.PatchSupported() || g.Variant == fuse.VariantRepair {
		return markerHandler{}
	}
	return strictHandler{}
}

// markerHandler recognizes the boot marker and nothing else.
type markerHandler struct{}

func (markerHandler) Handle(_ int, r fuse.Record) (Action, error) {
	if r.Type == fuse.TypeBootMarker {
		return ActionTruncate, nil
	}
	return ActionKeep, ErrUnknownRecordType
}

// strictHandler rejects every non-replace record.
type strictHandler struct{}

func (strictHandler) Handle(_ int, _ fuse.Record) (Action, error) {
	return ActionKeep, ErrUnknownRecordType
}
