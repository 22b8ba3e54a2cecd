package shiftbuffer

// Cloner is implemented by element types that need explicit duplication
// logic when they are copy-appended via Write. Types without external
// resources (a byte, an int, a plain value struct) do not need to
// implement this: ShiftBuffer falls back to a direct Go assignment, which
// is already a correct value copy for such types.
//
// Clone returns the duplicate that will occupy the new slot. Returning a
// non-nil error aborts the append at that element; ShiftBuffer restores its
// invariants (see Write) before propagating the error unchanged.
type Cloner[T any] interface {
	Clone() (T, error)
}

// Mover is implemented by element types that need explicit transfer logic
// when they are move-appended via Shove, or when ShiftBuffer itself
// relocates already-buffered elements during growth or compaction.
//
// Move returns the value that will occupy the new slot. The receiver keeps
// existing after Move returns; ShiftBuffer never assumes Move mutated its
// receiver into some "moved-from" state. Shove never calls Destroy on the
// caller's source elements. When growth or compaction relocates buffered
// elements, each old slot is destroyed once its value has been moved out
// of it; if a relocation fails, the not-yet-relocated elements of the old
// live window are destroyed as well.
type Mover[T any] interface {
	Move() (T, error)
}

// Overwriter is implemented by destination element types that need
// explicit logic when Read assigns a buffered value into a
// caller-supplied slot. Absent this interface, Read assigns directly.
//
// Overwrite receives the value being moved out of the buffer and applies
// it to the receiver, returning a non-nil error to abort the extraction at
// that element.
type Overwriter[T any] interface {
	Overwrite(T) error
}

// Destroyer is implemented by element types that hold resources needing
// release when a slot leaves the live window: after Read extracts it, when
// Close discards the buffer, or when a failed grow/compaction must give up
// on an element it could not relocate. Destroy never fails and is called
// at most once per logical element per such transition.
type Destroyer interface {
	Destroy()
}

// clone produces the value to store for a copy-append of src, consulting
// Cloner if the element type implements it.
func clone[T any](src T) (T, error) {
	if c, ok := any(src).(Cloner[T]); ok {
		return c.Clone()
	}
	return src, nil
}

// move produces the value to store for a move-append or an internal
// relocation of src, consulting Mover if the element type implements it.
func move[T any](src T) (T, error) {
	if m, ok := any(src).(Mover[T]); ok {
		return m.Move()
	}
	return src, nil
}

// overwrite applies val onto dst, consulting Overwriter if dst (a *T)
// implements it.
func overwrite[T any](dst *T, val T) error {
	if o, ok := any(dst).(Overwriter[T]); ok {
		return o.Overwrite(val)
	}
	*dst = val
	return nil
}

// destroy notifies the Destroyer of the value in slot, if it implements one, and then clears
// the slot to T's zero value so the backing array does not keep the old
// value's resources (e.g. pointers) alive past the live window.
func destroy[T any](slot *T) {
	if d, ok := any(*slot).(Destroyer); ok {
		d.Destroy()
	}
	var zero T
	*slot = zero
}
