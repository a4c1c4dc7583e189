package rpcstack

// ChannelArg is a single keyed configuration value.
type ChannelArg struct {
	Key   string
	Value any
}

// ChannelArgs is an immutable set of channel configuration values handed
// to every filter at channel initialization. A nil *ChannelArgs behaves
// as an empty set.
type ChannelArgs struct {
	list []ChannelArg
}

// NewChannelArgs builds an argument set from the given entries. Later
// entries with a duplicate key shadow earlier ones.
func NewChannelArgs(entries ...ChannelArg) *ChannelArgs {
	a := &ChannelArgs{list: make([]ChannelArg, len(entries))}
	copy(a.list, entries)
	return a
}

// With returns a new set extending a with the given entries. The receiver
// is not modified.
func (a *ChannelArgs) With(entries ...ChannelArg) *ChannelArgs {
	var base []ChannelArg
	if a != nil {
		base = a.list
	}
	next := &ChannelArgs{list: make([]ChannelArg, 0, len(base)+len(entries))}
	next.list = append(next.list, base...)
	next.list = append(next.list, entries...)
	return next
}

// Len reports the number of entries, counting shadowed duplicates.
func (a *ChannelArgs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.list)
}

// Value returns the latest value set for key.
func (a *ChannelArgs) Value(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	for i := len(a.list) - 1; i >= 0; i-- {
		if a.list[i].Key == key {
			return a.list[i].Value, true
		}
	}
	return nil, false
}

// Int returns the latest int value set for key. A value of another type
// reports false.
func (a *ChannelArgs) Int(key string) (int, bool) {
	v, ok := a.Value(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// String returns the latest string value set for key. A value of another
// type reports false.
func (a *ChannelArgs) String(key string) (string, bool) {
	v, ok := a.Value(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// All returns a copy of the entries in insertion order.
func (a *ChannelArgs) All() []ChannelArg {
	if a == nil {
		return nil
	}
	out := make([]ChannelArg, len(a.list))
	copy(out, a.list)
	return out
}
