package wire

// Table is the AMQP field-table type: a string-keyed bag of typed values
// (booleans, integers, strings, nested tables, …). The codec is responsible
// for the actual wire encoding; this module only needs something to carry
// client_properties and method arguments through the API.
type Table map[string]interface{}

// Clone returns a shallow copy, so callers can mutate client_properties
// without aliasing the caller's original map.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
